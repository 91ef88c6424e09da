// Package parser extracts tokens and their expiries from a source's HTTP
// response, per that source's parse descriptor.
package parser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AleksandrNi/token-agent/internal/model"
	"github.com/AleksandrNi/token-agent/pkg/metrics"
	"github.com/AleksandrNi/token-agent/pkg/tracing"
)

// Parser extracts TokenRecords from a response body and headers. Failure
// of any single token does not fail the whole parse: the token is logged
// and omitted from the result.
type Parser struct {
	log     *logrus.Entry
	metrics *metrics.Collector
	tracer  *tracing.TracerProvider
}

// New creates a Parser. tracer may be nil to disable span emission.
func New(log *logrus.Entry, collector *metrics.Collector, tracer *tracing.TracerProvider) *Parser {
	return &Parser{log: log, metrics: collector, tracer: tracer}
}

// Now returns the current unix time; isolated behind a var so tests can
// freeze it without depending on wall-clock time.
var Now = func() int64 { return time.Now().Unix() }

// Parse extracts every token field declared in spec from headers/body,
// skipping and logging any that fail, and returns the successfully parsed
// records. safetyMargin is the source's effective safety margin in
// seconds.
func (p *Parser) Parse(ctx context.Context, sourceID string, spec model.ParseSpec, headers http.Header, body []byte, safetyMargin int64) []model.TokenRecord {
	if p.tracer != nil {
		_, span := p.tracer.StartSpan(ctx, tracing.SpanSourceParse, tracing.AttributeSourceID.String(sourceID))
		defer span.End()
	}

	now := Now()

	var parsedBody map[string]json.RawMessage
	var bodyErr error
	bodyParsed := false

	records := make([]model.TokenRecord, 0, len(spec.Tokens))

	for _, field := range spec.Tokens {
		raw, err := p.locateRaw(field, headers, body, &parsedBody, &bodyParsed, &bodyErr)
		if err != nil {
			p.fail(sourceID, field.ID, err)
			continue
		}

		expiry, err := p.computeExpiry(field, raw, parsedBody, headers, now)
		if err != nil {
			p.fail(sourceID, field.ID, err)
			continue
		}

		refetchAt := model.ComputeRefetchAt(expiry, safetyMargin)
		records = append(records, model.TokenRecord{
			ID:        field.ID,
			Token:     model.Token{Value: raw, ExpiresAt: expiry},
			RefetchAt: refetchAt,
		})
	}

	return records
}

func (p *Parser) fail(sourceID, tokenID string, err error) {
	if p.log != nil {
		p.log.WithFields(logrus.Fields{
			"source": sourceID,
			"token":  tokenID,
			"error":  err,
		}).Warn("token parse failed")
	}
	if p.metrics != nil {
		p.metrics.RecordParseFailure(sourceID, tokenID, classify(err))
	}
}

func classify(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// locateRaw reads the field's raw string value from the header or the
// (lazily parsed, cached) JSON body.
func (p *Parser) locateRaw(field model.TokenFieldSpec, headers http.Header, body []byte, parsedBody *map[string]json.RawMessage, bodyParsed *bool, bodyErr *error) (string, error) {
	switch field.Parent {
	case model.ParentHeader:
		v := headers.Get(field.Pointer)
		if v == "" {
			return "", fmt.Errorf("header %q not present", field.Pointer)
		}
		return v, nil

	case model.ParentBody:
		if !*bodyParsed {
			*bodyParsed = true
			m := make(map[string]json.RawMessage)
			if err := json.Unmarshal(body, &m); err != nil {
				*bodyErr = fmt.Errorf("malformed JSON body: %w", err)
			} else {
				*parsedBody = m
			}
		}
		if *bodyErr != nil {
			return "", *bodyErr
		}
		raw, ok := (*parsedBody)[field.Pointer]
		if !ok {
			return "", fmt.Errorf("body field %q not present", field.Pointer)
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("body field %q is not a string: %w", field.Pointer, err)
		}
		return s, nil

	default:
		return "", fmt.Errorf("unknown parent kind %q", field.Parent)
	}
}

func (p *Parser) computeExpiry(field model.TokenFieldSpec, raw string, parsedBody map[string]json.RawMessage, headers http.Header, now int64) (int64, error) {
	switch field.TokenType {
	case model.TokenJWT:
		return expiryFromJWT(raw, now)

	case model.TokenPlainText:
		if field.Expiration == nil {
			return 0, fmt.Errorf("plain_text token %q missing expiration spec", field.ID)
		}
		return expiryFromPlainText(*field.Expiration, parsedBody, headers, now)

	default:
		return 0, fmt.Errorf("unknown token_type %q", field.TokenType)
	}
}

// expiryFromJWT splits the token on ".", requires exactly three parts, and
// base64-decodes the middle part using the standard alphabet with
// optional padding (not base64url — this is a deliberate, non-standard
// decode contract, not a JWT-library-compatible one).
func expiryFromJWT(value string, now int64) (int64, error) {
	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed JWT: expected 3 parts, got %d", len(parts))
	}

	decoded, err := decodeStandardNoPadFirst(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed JWT payload: %w", err)
	}

	var claims struct {
		Exp uint64 `json:"exp"`
	}
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return 0, fmt.Errorf("malformed JWT claims: %w", err)
	}

	expiry := int64(claims.Exp)
	if expiry <= now {
		return 0, fmt.Errorf("JWT already expired: exp=%d now=%d", expiry, now)
	}
	return expiry, nil
}

// decodeStandardNoPadFirst tries unpadded standard-alphabet decoding
// first, falling back to padded, since padding is optional per the parse
// contract.
func decodeStandardNoPadFirst(s string) ([]byte, error) {
	if decoded, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func expiryFromPlainText(spec model.ExpirationSpec, body map[string]json.RawMessage, headers http.Header, now int64) (int64, error) {
	var raw int64

	switch spec.Source {
	case model.ExpirationJSONBodyField:
		field, ok := body[spec.Pointer]
		if !ok {
			return 0, fmt.Errorf("expiration body field %q not present", spec.Pointer)
		}
		var n uint64
		if err := json.Unmarshal(field, &n); err != nil {
			return 0, fmt.Errorf("expiration body field %q is not an unsigned integer: %w", spec.Pointer, err)
		}
		raw = int64(n)

	case model.ExpirationHeaderField:
		v := headers.Get(spec.Pointer)
		if v == "" {
			return 0, fmt.Errorf("expiration header %q not present", spec.Pointer)
		}
		var n uint64
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return 0, fmt.Errorf("expiration header %q is not an unsigned integer: %w", spec.Pointer, err)
		}
		raw = int64(n)

	case model.ExpirationManual:
		raw = spec.ManualTTLSeconds

	case model.ExpirationSelf:
		return 0, fmt.Errorf("expiration.source=self is not valid for plain_text tokens")

	default:
		return 0, fmt.Errorf("unknown expiration source %q", spec.Source)
	}

	switch spec.Format {
	case model.ExpirationFormatSeconds:
		return now + raw, nil
	case model.ExpirationFormatUnix:
		return raw, nil
	default:
		return 0, fmt.Errorf("unknown expiration format %q", spec.Format)
	}
}
