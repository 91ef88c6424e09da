package refresh

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleksandrNi/token-agent/internal/dag"
	"github.com/AleksandrNi/token-agent/internal/eventbus"
	"github.com/AleksandrNi/token-agent/internal/model"
	"github.com/AleksandrNi/token-agent/internal/parser"
	"github.com/AleksandrNi/token-agent/internal/source"
	"github.com/AleksandrNi/token-agent/internal/tokencache"
)

func newTestLoop(t *testing.T, sources map[string]model.SourceSpec) (*Loop, *tokencache.Cache, *eventbus.Bus) {
	t.Helper()
	nodes, err := dag.Order(sources)
	if err != nil {
		t.Fatal(err)
	}

	cache := tokencache.New(nil)
	bus := eventbus.New(nil)
	exec := source.New(cache, parser.New(nil, nil, nil), nil, nil, nil)

	settings := model.Settings{
		Retry: model.RetrySettings{Attempts: 3, BaseDelayMS: 1, MaxDelayMS: 2},
	}

	loop := New(nodes, cache, exec, bus, settings, nil, nil)
	return loop, cache, bus
}

func TestRunCycleFetchesDueSourceAndPublishes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"plain_token":"v1","ttl":60}`))
	}))
	defer server.Close()

	sources := map[string]model.SourceSpec{
		"src": {
			ID:      "src",
			Request: model.RequestSpec{URL: server.URL, Method: model.MethodGET},
			Parse: model.ParseSpec{Tokens: []model.TokenFieldSpec{
				{ID: "plain_token", Parent: model.ParentBody, Pointer: "plain_token", TokenType: model.TokenPlainText,
					Expiration: &model.ExpirationSpec{Source: model.ExpirationJSONBodyField, Format: model.ExpirationFormatSeconds, Pointer: "ttl"}},
			}},
		},
	}

	loop, cache, bus := newTestLoop(t, sources)
	ch := bus.Subscribe("test")

	loop.runCycle(context.Background())

	if _, ok := cache.Get("src", "plain_token"); !ok {
		t.Fatal("expected token to be cached after due fetch")
	}

	select {
	case evt := <-ch:
		if evt.SourceID != "src" {
			t.Errorf("got %q, want src", evt.SourceID)
		}
	default:
		t.Fatal("expected SourceChanged to be published")
	}
}

func TestRunCycleSkipsNotDueSource(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"plain_token":"v1","ttl":60}`))
	}))
	defer server.Close()

	sources := map[string]model.SourceSpec{
		"src": {
			ID:      "src",
			Request: model.RequestSpec{URL: server.URL, Method: model.MethodGET},
			Parse: model.ParseSpec{Tokens: []model.TokenFieldSpec{
				{ID: "plain_token", Parent: model.ParentBody, Pointer: "plain_token", TokenType: model.TokenPlainText,
					Expiration: &model.ExpirationSpec{Source: model.ExpirationJSONBodyField, Format: model.ExpirationFormatSeconds, Pointer: "ttl"}},
			}},
		},
	}

	loop, cache, _ := newTestLoop(t, sources)

	// Pre-seed a fresh, not-yet-due record so the cycle should skip the fetch.
	far := loop.now() + 10000
	cache.Set("src", []model.TokenRecord{{ID: "plain_token", Token: model.Token{Value: "cached", ExpiresAt: far + 100}, RefetchAt: far}})

	loop.runCycle(context.Background())

	if calls != 0 {
		t.Fatalf("expected source not to be fetched, got %d calls", calls)
	}
}

func TestDAGOrderingWithinCycle(t *testing.T) {
	var fetchedOrder []string
	serverA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetchedOrder = append(fetchedOrder, "A")
		w.Write([]byte(`{"t":"abc","ttl":60}`))
	}))
	defer serverA.Close()
	serverB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetchedOrder = append(fetchedOrder, "B")
		w.Write([]byte(`{}`))
	}))
	defer serverB.Close()

	sources := map[string]model.SourceSpec{
		"A": {
			ID:      "A",
			Request: model.RequestSpec{URL: serverA.URL, Method: model.MethodGET},
			Parse: model.ParseSpec{Tokens: []model.TokenFieldSpec{
				{ID: "t", Parent: model.ParentBody, Pointer: "t", TokenType: model.TokenPlainText,
					Expiration: &model.ExpirationSpec{Source: model.ExpirationJSONBodyField, Format: model.ExpirationFormatSeconds, Pointer: "ttl"}},
			}},
		},
		"B": {
			ID:     "B",
			Inputs: []string{"A"},
			Request: model.RequestSpec{
				URL:    serverB.URL,
				Method: model.MethodGET,
				Headers: map[string]model.Value{
					"Authorization": {Kind: model.ValueRef, RefSource: "A", RefToken: "t", RefPrefix: "Bearer "},
				},
			},
		},
	}

	loop, _, _ := newTestLoop(t, sources)
	loop.runCycle(context.Background())

	// B depends on A; A must be visited (and thus cached) before B's
	// request is built, or B's Ref would fail to resolve.
	if len(fetchedOrder) != 2 || fetchedOrder[0] != "A" || fetchedOrder[1] != "B" {
		t.Fatalf("expected A to be fetched before B, got %v", fetchedOrder)
	}
}
