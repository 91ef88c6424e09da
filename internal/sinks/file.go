package sinks

import (
	"os"

	"github.com/AleksandrNi/token-agent/internal/model"
)

// filePermissions matches the mode tests enforce for written token files.
const filePermissions = 0o600

// fileWriter writes a sink's resolved value to its configured absolute
// path. The reference implementation writes in place; a production
// implementation should write-then-rename, which os.WriteFile does not
// do, so a temp-file swap is used here to avoid ever exposing a
// partially written token to a reader.
type fileWriter struct{}

func (fileWriter) kind() string { return "file" }

func (fileWriter) write(sink model.SinkSpec, value string) error {
	tmp := sink.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), filePermissions); err != nil {
		return err
	}
	return os.Rename(tmp, sink.Path)
}

func (fileWriter) remove(sink model.SinkSpec) error {
	err := os.Remove(sink.Path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
