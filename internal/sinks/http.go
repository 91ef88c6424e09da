package sinks

import (
	"strconv"
	"time"

	"github.com/AleksandrNi/token-agent/internal/model"
	"github.com/AleksandrNi/token-agent/internal/tokencache"
)

// ErrNoCacheEntry is returned by RenderHTTPResponse when the sink's
// (source_id, token_id) has no cache entry; the HTTP surface maps this to
// a 404.
var ErrNoCacheEntry = &noCacheEntryError{}

type noCacheEntryError struct{}

func (*noCacheEntryError) Error() string { return "no cache entry for sink's source/token" }

// RenderedResponse is a rendered HTTP sink response, ready to be written
// by the HTTP surface.
type RenderedResponse struct {
	Headers map[string]string
	Body    map[string]string
}

// RenderHTTPResponse builds the response for one GET against an HTTP
// sink. It reads the sink's own (source_id, token_id) cache entry once and
// renders every header and body field from that record; a field's own
// TokenID is not consulted.
func RenderHTTPResponse(sink model.SinkSpec, cache *tokencache.Cache, now int64) (RenderedResponse, error) {
	rec, ok := cache.Get(sink.SourceID, sink.TokenID)
	if !ok {
		return RenderedResponse{}, ErrNoCacheEntry
	}

	out := RenderedResponse{Headers: map[string]string{}, Body: map[string]string{}}

	if sink.Response != nil {
		for name, field := range sink.Response.Headers {
			out.Headers[name] = renderField(field, rec, now)
		}
		for name, field := range sink.Response.Body {
			out.Body[name] = renderField(field, rec, now)
		}
	}

	return out, nil
}

func renderField(field model.ResponseField, rec model.TokenRecord, now int64) string {
	switch field.Kind {
	case model.ResponseFieldToken:
		return rec.Token.Value

	case model.ResponseFieldExpiration:
		switch field.Format {
		case model.ResponseFormatSeconds:
			remaining := rec.Token.ExpiresAt - now
			if remaining < 0 {
				remaining = 0
			}
			return strconv.FormatInt(remaining, 10)
		case model.ResponseFormatUnix:
			return strconv.FormatInt(rec.Token.ExpiresAt, 10)
		case model.ResponseFormatRFC3339:
			return time.Unix(rec.Token.ExpiresAt, 0).UTC().Format(time.RFC3339)
		}
		return ""

	case model.ResponseFieldLiteral:
		return field.Literal

	default:
		return ""
	}
}
