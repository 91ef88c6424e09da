package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleksandrNi/token-agent/internal/model"
	"github.com/AleksandrNi/token-agent/internal/tokencache"
)

func newTestRouter(t *testing.T, httpSinks []model.SinkSpec, cache *tokencache.Cache) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	for _, sink := range httpSinks {
		sink := sink
		router.GET(sink.Path, func(c *gin.Context) {
			handleSinkRequest(c, sink, cache)
		})
	}
	return router
}

func TestHandleSinkRequestReturns404WhenAbsent(t *testing.T) {
	cache := tokencache.New(nil)
	sink := model.SinkSpec{ID: "s", Kind: model.SinkHTTP, SourceID: "src", TokenID: "missing", Path: "/tokens/x"}
	router := newTestRouter(t, []model.SinkSpec{sink}, cache)

	req := httptest.NewRequest(http.MethodGet, "/tokens/x", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
}

func TestHandleSinkRequestRendersJSONBody(t *testing.T) {
	cache := tokencache.New(nil)
	cache.Set("src", []model.TokenRecord{{ID: "t", Token: model.Token{Value: "jwt-value", ExpiresAt: 2000000000}}})

	sink := model.SinkSpec{
		ID: "s", Kind: model.SinkHTTP, SourceID: "src", TokenID: "t", Path: "/tokens/x",
		Response: &model.HTTPResponseSpec{
			Body: map[string]model.ResponseField{
				"access_token": {Kind: model.ResponseFieldToken, TokenID: "t"},
			},
		},
	}
	router := newTestRouter(t, []model.SinkSpec{sink}, cache)

	req := httptest.NewRequest(http.MethodGet, "/tokens/x", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if rec.Header().Get("Content-Type") == "" {
		t.Error("expected a Content-Type header")
	}
}
