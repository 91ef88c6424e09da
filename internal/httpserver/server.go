// Package httpserver implements the HTTP surface (C10): a dynamic-route
// server with one GET route per HTTP sink, plus a Prometheus metrics
// endpoint.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/AleksandrNi/token-agent/internal/model"
	"github.com/AleksandrNi/token-agent/internal/sinks"
	"github.com/AleksandrNi/token-agent/internal/tokencache"
	"github.com/AleksandrNi/token-agent/pkg/metrics"
)

// Server binds one GET route per configured HTTP sink and, if enabled,
// the metrics exposition route. Startup is skipped entirely when there
// are no routes to serve.
type Server struct {
	httpServer *http.Server
	hasRoutes  bool
}

// New builds the gin engine and registers every route. cache is read once
// per request, for the sink's own token; nothing here holds a long-lived reference
// to sink state beyond the SinkSpec values themselves.
func New(settings model.ServerSettings, metricsSettings model.MetricsSettings, httpSinks []model.SinkSpec, cache *tokencache.Cache, log *logrus.Entry) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.GinMiddleware())

	hasRoutes := false

	for _, sink := range httpSinks {
		sink := sink
		router.GET(sink.Path, func(c *gin.Context) {
			handleSinkRequest(c, sink, cache)
		})
		hasRoutes = true
	}

	if metricsSettings.IsEnabled {
		path := metricsSettings.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.Handler()))
		hasRoutes = true
	}

	addr := fmt.Sprintf("%s:%d", settings.Host, settings.Port)
	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: router},
		hasRoutes:  hasRoutes,
	}
}

func handleSinkRequest(c *gin.Context, sink model.SinkSpec, cache *tokencache.Cache) {
	now := time.Now().Unix()
	resp, err := sinks.RenderHTTPResponse(sink, cache, now)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	for name, value := range resp.Headers {
		c.Header(name, value)
	}

	contentType := "application/json"
	if ct, ok := resp.Headers["Content-Type"]; ok && ct != "" {
		contentType = ct
	}

	if contentType == "application/json" {
		c.JSON(http.StatusOK, resp.Body)
		return
	}

	c.Status(http.StatusOK)
	for _, v := range resp.Body {
		c.Writer.WriteString(v)
	}
}

// Start runs the server in the background. It is a no-op, returning a nil
// error immediately, if no routes were configured.
func (s *Server) Start() error {
	if !s.hasRoutes {
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- model.NewKindError(model.ErrServerBind, "http surface failed to bind", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
		return nil
	}
}

// Shutdown gracefully stops the server, if it was started.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.hasRoutes {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
