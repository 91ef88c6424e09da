package sinks

import (
	"net"

	"github.com/AleksandrNi/token-agent/internal/model"
)

// udsWriter opens the sink's configured unix stream socket, writes the
// value, and shuts down the write side so the peer sees EOF.
type udsWriter struct{}

func (udsWriter) kind() string { return "uds" }

func (udsWriter) write(sink model.SinkSpec, value string) error {
	conn, err := net.Dial("unix", sink.Path)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(value)); err != nil {
		return err
	}

	if uc, ok := conn.(*net.UnixConn); ok {
		return uc.CloseWrite()
	}
	return nil
}
