package parser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/AleksandrNi/token-agent/internal/model"
)

func withFrozenNow(unix int64, fn func()) {
	old := Now
	Now = func() int64 { return unix }
	defer func() { Now = old }()
	fn()
}

func makeJWT(t *testing.T, exp uint64) string {
	t.Helper()
	claims, err := json.Marshal(struct {
		Exp uint64 `json:"exp"`
	}{Exp: exp})
	if err != nil {
		t.Fatal(err)
	}
	payload := base64.StdEncoding.EncodeToString(claims)
	return "hdr." + payload + ".sig"
}

func TestParseJWTRoundTrip(t *testing.T) {
	now := int64(1000)
	jwt := makeJWT(t, uint64(now+3600))

	body, _ := json.Marshal(map[string]string{"access_token": jwt})
	spec := model.ParseSpec{Tokens: []model.TokenFieldSpec{
		{ID: "access_token", Parent: model.ParentBody, Pointer: "access_token", TokenType: model.TokenJWT},
	}}

	p := New(nil, nil, nil)
	var records []model.TokenRecord
	withFrozenNow(now, func() {
		records = p.Parse(context.Background(), "src", spec, http.Header{}, body, 10)
	})

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Token.Value != jwt {
		t.Errorf("got value %q, want %q", records[0].Token.Value, jwt)
	}
	if records[0].Token.ExpiresAt != now+3600 {
		t.Errorf("got expiry %d, want %d", records[0].Token.ExpiresAt, now+3600)
	}
	wantRefetch := now + 3600 - 10
	if records[0].RefetchAt != wantRefetch {
		t.Errorf("got refetch_at %d, want %d", records[0].RefetchAt, wantRefetch)
	}
}

func TestParseExpiredJWTIsOmitted(t *testing.T) {
	now := int64(1000)
	jwt := makeJWT(t, uint64(now-1))

	body, _ := json.Marshal(map[string]string{"access_token": jwt})
	spec := model.ParseSpec{Tokens: []model.TokenFieldSpec{
		{ID: "access_token", Parent: model.ParentBody, Pointer: "access_token", TokenType: model.TokenJWT},
	}}

	p := New(nil, nil, nil)
	var records []model.TokenRecord
	withFrozenNow(now, func() {
		records = p.Parse(context.Background(), "src", spec, http.Header{}, body, 10)
	})

	if len(records) != 0 {
		t.Fatalf("expected expired JWT to be omitted, got %d records", len(records))
	}
}

func TestParsePlainTextManualTTL(t *testing.T) {
	now := int64(1000)
	body, _ := json.Marshal(map[string]string{"plain_token": "opaque-value"})

	spec := model.ParseSpec{Tokens: []model.TokenFieldSpec{
		{
			ID:        "plain_token",
			Parent:    model.ParentBody,
			Pointer:   "plain_token",
			TokenType: model.TokenPlainText,
			Expiration: &model.ExpirationSpec{
				Source:           model.ExpirationManual,
				Format:           model.ExpirationFormatSeconds,
				ManualTTLSeconds: 60,
			},
		},
	}}

	p := New(nil, nil, nil)
	var records []model.TokenRecord
	withFrozenNow(now, func() {
		records = p.Parse(context.Background(), "src", spec, http.Header{}, body, 10)
	})

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Token.ExpiresAt != 1060 {
		t.Errorf("got expiry %d, want 1060", records[0].Token.ExpiresAt)
	}
	if records[0].RefetchAt != 1050 {
		t.Errorf("got refetch_at %d, want 1050", records[0].RefetchAt)
	}
}

func TestParseHeaderFieldMissingIsSkippedNotFatal(t *testing.T) {
	spec := model.ParseSpec{Tokens: []model.TokenFieldSpec{
		{ID: "a", Parent: model.ParentHeader, Pointer: "X-Missing", TokenType: model.TokenPlainText,
			Expiration: &model.ExpirationSpec{Source: model.ExpirationManual, Format: model.ExpirationFormatSeconds, ManualTTLSeconds: 10}},
		{ID: "b", Parent: model.ParentHeader, Pointer: "X-Present", TokenType: model.TokenPlainText,
			Expiration: &model.ExpirationSpec{Source: model.ExpirationManual, Format: model.ExpirationFormatSeconds, ManualTTLSeconds: 10}},
	}}

	headers := http.Header{}
	headers.Set("X-Present", "abc")

	p := New(nil, nil, nil)
	records := p.Parse(context.Background(), "src", spec, headers, nil, 5)

	if len(records) != 1 {
		t.Fatalf("expected 1 surviving record, got %d", len(records))
	}
	if records[0].ID != "b" {
		t.Errorf("expected surviving token to be 'b', got %q", records[0].ID)
	}
}

func TestExpirationFormatsUnixAndSeconds(t *testing.T) {
	now := int64(100)
	body, _ := json.Marshal(map[string]interface{}{"tok_seconds": "s-val", "tok_unix": "u-val", "ttl": 50, "exp_raw": 5000000000})

	spec := model.ParseSpec{Tokens: []model.TokenFieldSpec{
		{ID: "seconds", Parent: model.ParentBody, Pointer: "tok_seconds", TokenType: model.TokenPlainText,
			Expiration: &model.ExpirationSpec{Source: model.ExpirationJSONBodyField, Format: model.ExpirationFormatSeconds, Pointer: "ttl"}},
		{ID: "unix", Parent: model.ParentBody, Pointer: "tok_unix", TokenType: model.TokenPlainText,
			Expiration: &model.ExpirationSpec{Source: model.ExpirationJSONBodyField, Format: model.ExpirationFormatUnix, Pointer: "exp_raw"}},
	}}

	p := New(nil, nil, nil)
	var records []model.TokenRecord
	withFrozenNow(now, func() {
		records = p.Parse(context.Background(), "src", spec, http.Header{}, body, 0)
	})

	bySourceID := map[string]model.TokenRecord{}
	for _, r := range records {
		bySourceID[r.ID] = r
	}

	if got := bySourceID["seconds"].Token.ExpiresAt; got != now+50 {
		t.Errorf("seconds format: got expiry %d, want %d", got, now+50)
	}
	if got := bySourceID["unix"].Token.ExpiresAt; got != 5000000000 {
		t.Errorf("unix format: got expiry %d, want 5000000000", got)
	}
}
