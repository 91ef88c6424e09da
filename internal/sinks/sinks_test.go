package sinks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleksandrNi/token-agent/internal/eventbus"
	"github.com/AleksandrNi/token-agent/internal/model"
	"github.com/AleksandrNi/token-agent/internal/tokencache"
)

func TestFileWriterWritesValueWithRestrictivePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")

	w := fileWriter{}
	if err := w.write(model.SinkSpec{Path: path}, "tok-v1"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "tok-v1" {
		t.Errorf("got %q, want tok-v1", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != filePermissions {
		t.Errorf("got perm %v, want %v", info.Mode().Perm(), os.FileMode(filePermissions))
	}
}

func TestConsumerSkipsNoOpWriteOnUnchangedExpiry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")

	cache := tokencache.New(nil)
	cache.Set("src", []model.TokenRecord{{ID: "t", Token: model.Token{Value: "v1", ExpiresAt: 2000}}})

	sink := model.SinkSpec{ID: "s1", Kind: model.SinkFile, SourceID: "src", TokenID: "t", Path: path}
	c := &consumer{w: &fileWriter{}, sinks: []model.SinkSpec{sink}, cache: cache, memo: newMemo()}

	c.handle(context.Background(), eventbus.SourceChanged{SourceID: "src"})
	info1, _ := os.Stat(path)

	// Second notification with identical cache state must not rewrite.
	c.handle(context.Background(), eventbus.SourceChanged{SourceID: "src"})
	info2, _ := os.Stat(path)

	if info1.ModTime() != info2.ModTime() {
		t.Error("expected second notification with unchanged expiry to skip the write")
	}
}

func TestConsumerWritesStubWhenCacheEntryAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")

	cache := tokencache.New(nil)
	sink := model.SinkSpec{ID: "s1", Kind: model.SinkFile, SourceID: "src", TokenID: "missing", Path: path}
	c := &consumer{w: &fileWriter{}, sinks: []model.SinkSpec{sink}, cache: cache, memo: newMemo()}

	c.handle(context.Background(), eventbus.SourceChanged{SourceID: "src"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "" {
		t.Errorf("expected empty stub, got %q", data)
	}
}

func TestRenderHTTPResponseMissingTokenReturnsError(t *testing.T) {
	cache := tokencache.New(nil)
	sink := model.SinkSpec{SourceID: "src", TokenID: "missing"}

	_, err := RenderHTTPResponse(sink, cache, 1000)
	if err != ErrNoCacheEntry {
		t.Fatalf("got %v, want ErrNoCacheEntry", err)
	}
}

func TestRenderHTTPResponseFormats(t *testing.T) {
	cache := tokencache.New(nil)
	cache.Set("src", []model.TokenRecord{{ID: "t", Token: model.Token{Value: "tokval", ExpiresAt: 5000000000}}})

	sink := model.SinkSpec{
		SourceID: "src",
		TokenID:  "t",
		Response: &model.HTTPResponseSpec{
			Body: map[string]model.ResponseField{
				"seconds": {Kind: model.ResponseFieldExpiration, Format: model.ResponseFormatSeconds, TokenID: "t"},
				"unix":    {Kind: model.ResponseFieldExpiration, Format: model.ResponseFormatUnix, TokenID: "t"},
				"rfc3339": {Kind: model.ResponseFieldExpiration, Format: model.ResponseFormatRFC3339, TokenID: "t"},
				"token":   {Kind: model.ResponseFieldToken, TokenID: "t"},
			},
		},
	}

	resp, err := RenderHTTPResponse(sink, cache, 100)
	if err != nil {
		t.Fatal(err)
	}

	if resp.Body["seconds"] != "4999999900" {
		t.Errorf("seconds: got %q", resp.Body["seconds"])
	}
	if resp.Body["unix"] != "5000000000" {
		t.Errorf("unix: got %q", resp.Body["unix"])
	}
	if resp.Body["rfc3339"] != "2128-06-11T08:53:20Z" {
		t.Errorf("rfc3339: got %q", resp.Body["rfc3339"])
	}
	if resp.Body["token"] != "tokval" {
		t.Errorf("token: got %q", resp.Body["token"])
	}
}
