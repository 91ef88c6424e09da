package valueref

import (
	"os"
	"testing"

	"github.com/AleksandrNi/token-agent/internal/model"
	"github.com/AleksandrNi/token-agent/internal/tokencache"
)

func TestResolveLiteral(t *testing.T) {
	got, err := Resolve(model.Value{Kind: model.ValueLiteral, Literal: "x"}, tokencache.New(nil))
	if err != nil || got != "x" {
		t.Fatalf("got %q, %v; want x, nil", got, err)
	}
}

func TestResolveFromEnv(t *testing.T) {
	os.Setenv("VALUEREF_TEST_VAR", "secret")
	defer os.Unsetenv("VALUEREF_TEST_VAR")

	got, err := Resolve(model.Value{Kind: model.ValueFromEnv, FromEnv: "VALUEREF_TEST_VAR"}, tokencache.New(nil))
	if err != nil || got != "secret" {
		t.Fatalf("got %q, %v; want secret, nil", got, err)
	}
}

func TestResolveFromEnvMissing(t *testing.T) {
	_, err := Resolve(model.Value{Kind: model.ValueFromEnv, FromEnv: "VALUEREF_DOES_NOT_EXIST"}, tokencache.New(nil))
	if err == nil {
		t.Fatal("expected error for missing env var")
	}
}

func TestResolveRefEmitsPrefixPlusTokenValue(t *testing.T) {
	cache := tokencache.New(nil)
	cache.Set("A", []model.TokenRecord{{ID: "t", Token: model.Token{Value: "abc", ExpiresAt: 2000}}})

	got, err := Resolve(model.Value{Kind: model.ValueRef, RefSource: "A", RefToken: "t", RefPrefix: "Bearer "}, cache)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Bearer abc" {
		t.Errorf("got %q, want %q", got, "Bearer abc")
	}
}

func TestResolveRefNoPrefixEmitsTokenValue(t *testing.T) {
	cache := tokencache.New(nil)
	cache.Set("A", []model.TokenRecord{{ID: "t", Token: model.Token{Value: "abc", ExpiresAt: 2000}}})

	got, err := Resolve(model.Value{Kind: model.ValueRef, RefSource: "A", RefToken: "t"}, cache)
	if err != nil {
		t.Fatal(err)
	}
	if got != "abc" {
		t.Errorf("got %q, want %q", got, "abc")
	}
}

func TestResolveRefMissingFails(t *testing.T) {
	_, err := Resolve(model.Value{Kind: model.ValueRef, RefSource: "A", RefToken: "t"}, tokencache.New(nil))
	if err == nil {
		t.Fatal("expected error for missing ref")
	}
}

func TestResolveTemplate(t *testing.T) {
	cache := tokencache.New(nil)
	cache.Set("A", []model.TokenRecord{{ID: "t", Token: model.Token{Value: "abc", ExpiresAt: 2000}}})

	got, err := Resolve(model.Value{Kind: model.ValueTemplate, Template: "prefix-{{A.t}}-suffix", TemplateRequired: true}, cache)
	if err != nil {
		t.Fatal(err)
	}
	if got != "prefix-abc-suffix" {
		t.Errorf("got %q, want %q", got, "prefix-abc-suffix")
	}
}

func TestResolveTemplateRequiredMissingFails(t *testing.T) {
	_, err := Resolve(model.Value{Kind: model.ValueTemplate, Template: "{{A.t}}", TemplateRequired: true}, tokencache.New(nil))
	if err == nil {
		t.Fatal("expected error for required but missing template placeholder")
	}
}

func TestResolveTemplateOptionalMissingIsEmpty(t *testing.T) {
	got, err := Resolve(model.Value{Kind: model.ValueTemplate, Template: "[{{A.t}}]", TemplateRequired: false}, tokencache.New(nil))
	if err != nil {
		t.Fatal(err)
	}
	if got != "[]" {
		t.Errorf("got %q, want []", got)
	}
}
