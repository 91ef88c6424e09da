// Package agent is the composition root: it wires the config validator,
// DAG builder, token cache, notification bus, sink manager, refresh loop,
// sweeper, and HTTP surface into one running process.
package agent

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/AleksandrNi/token-agent/internal/config"
	"github.com/AleksandrNi/token-agent/internal/dag"
	"github.com/AleksandrNi/token-agent/internal/eventbus"
	"github.com/AleksandrNi/token-agent/internal/httpserver"
	"github.com/AleksandrNi/token-agent/internal/logging"
	"github.com/AleksandrNi/token-agent/internal/model"
	"github.com/AleksandrNi/token-agent/internal/parser"
	"github.com/AleksandrNi/token-agent/internal/refresh"
	"github.com/AleksandrNi/token-agent/internal/sinks"
	"github.com/AleksandrNi/token-agent/internal/source"
	"github.com/AleksandrNi/token-agent/internal/sweeper"
	"github.com/AleksandrNi/token-agent/internal/tokencache"
	"github.com/AleksandrNi/token-agent/pkg/metrics"
	"github.com/AleksandrNi/token-agent/pkg/tracing"
)

// Agent owns every long-lived task and can be started and stopped as one
// unit.
type Agent struct {
	log *logrus.Entry

	cache   *tokencache.Cache
	bus     *eventbus.Bus
	sinks   *sinks.Manager
	refresh *refresh.Loop
	sweeper *sweeper.Sweeper
	server  *httpserver.Server
	tracer  *tracing.TracerProvider
}

// Options overrides the log level resolved from config, per the CLI's
// --log-level/LOG_LEVEL contract.
type Options struct {
	ConfigPath       string
	LogLevelOverride string
}

// Build loads, validates, and wires a complete Agent from opts. The
// config validator runs before any runtime state is constructed; a
// config error here is always fatal.
func Build(opts Options) (*Agent, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, model.NewKindError(model.ErrConfigInvalid, "loading config", err)
	}

	if opts.LogLevelOverride != "" {
		cfg.Settings.Logging.Level = opts.LogLevelOverride
	}

	metrics.Register()
	collector := metrics.NewCollector()

	if err := config.Validate(cfg, collector); err != nil {
		return nil, err
	}

	logger := logging.New(cfg.Settings.Logging)
	log := logger.WithField("component", "agent")

	nodes, err := dag.Order(cfg.Sources)
	if err != nil {
		// The validator's reference checks should make this
		// unreachable in practice, but a cycle is still possible
		// through a config the validator's dependency scan didn't
		// reject, so it is handled as a fatal startup error here too.
		return nil, model.NewKindError(model.ErrConfigInvalid, "ordering source DAG", err)
	}

	tracer, err := tracing.NewTracerProvider(tracing.Config{
		ServiceName:    "token-agent",
		ServiceVersion: "dev",
		Environment:    "production",
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tracer: %w", err)
	}

	cache := tokencache.New(collector)
	bus := eventbus.New(collector)
	p := parser.New(log, collector, tracer)
	executor := source.New(cache, p, log, collector, tracer)

	refreshLoop := refresh.New(nodes, cache, executor, bus, cfg.Settings, log, tracer)
	sweepLoop := sweeper.New(nodes, cache, bus, cfg.Settings, tracer)
	sinkManager := sinks.New(cfg.Sinks, cache, bus, log, collector, tracer)
	server := httpserver.New(cfg.Settings.Server, cfg.Settings.Metrics, sinkManager.HTTPSinks(), cache, log)

	return &Agent{
		log:     log,
		cache:   cache,
		bus:     bus,
		sinks:   sinkManager,
		refresh: refreshLoop,
		sweeper: sweepLoop,
		server:  server,
		tracer:  tracer,
	}, nil
}

// Run starts every long-lived task and blocks until ctx is canceled, then
// drains them in the order the shutdown contract requires: the HTTP
// surface stops accepting new requests, the sink manager removes the
// files it owns, the token cache is cleared, and the tracer flushes
// pending spans.
func (a *Agent) Run(ctx context.Context) error {
	a.sinks.Start(ctx)
	go a.refresh.Run(ctx)
	go a.sweeper.Run(ctx)

	if err := a.server.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	a.log.Info("shutting down")

	shutdownCtx := context.Background()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("http surface shutdown error")
	}

	a.sinks.Shutdown(shutdownCtx)
	a.cache.Clear()

	if err := a.tracer.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("tracer shutdown error")
	}

	return nil
}
