// Package sinks implements the sink manager (C9): per-kind consumer tasks
// that propagate cached tokens to file, unix-socket, and HTTP consumers.
package sinks

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleksandrNi/token-agent/internal/eventbus"
	"github.com/AleksandrNi/token-agent/internal/model"
	"github.com/AleksandrNi/token-agent/internal/tokencache"
	"github.com/AleksandrNi/token-agent/pkg/metrics"
	"github.com/AleksandrNi/token-agent/pkg/tracing"
)

// writer abstracts the one thing file and uds sinks do differently: how
// a resolved value reaches its destination.
type writer interface {
	write(spec model.SinkSpec, value string) error
	kind() string
}

// consumer runs the common per-message protocol for one sink kind: on
// every SourceChanged event, it re-checks every sink of that kind bound
// to the changed source and writes through w if the cached value changed.
type consumer struct {
	w       writer
	sinks   []model.SinkSpec
	cache   *tokencache.Cache
	memo    *memo
	log     *logrus.Entry
	metrics *metrics.Collector
	tracer  *tracing.TracerProvider
}

func (c *consumer) run(ctx context.Context, events <-chan eventbus.SourceChanged) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.handle(ctx, evt)
		}
	}
}

func (c *consumer) handle(ctx context.Context, evt eventbus.SourceChanged) {
	for _, sink := range c.sinks {
		if sink.SourceID != evt.SourceID {
			continue
		}
		c.propagate(ctx, sink)
	}
}

func (c *consumer) propagate(ctx context.Context, sink model.SinkSpec) {
	var span trace.Span
	if c.tracer != nil {
		_, span = c.tracer.StartSpan(ctx, tracing.SpanSinkPropagate,
			tracing.AttributeSinkID.String(sink.ID),
			tracing.AttributeTokenID.String(sink.TokenID),
		)
		defer span.End()
	}

	timer := metrics.NewTimer()

	rec, ok := c.cache.Get(sink.SourceID, sink.TokenID)
	if !ok {
		if err := c.w.write(sink, ""); err != nil {
			c.recordFailure(span, sink, err)
			return
		}
		c.memo.forget(sink.SourceID, sink.TokenID)
		c.recordSuccess(span, sink, "remove", timer)
		return
	}

	if c.memo.unchanged(sink.SourceID, sink.TokenID, rec.Token.ExpiresAt) {
		if c.log != nil {
			c.log.WithFields(logrus.Fields{
				"sink": sink.ID, "source_id": sink.SourceID, "token_id": sink.TokenID,
			}).Debug("sink write skipped, expiry unchanged")
		}
		return
	}

	if err := c.w.write(sink, rec.Token.Value); err != nil {
		c.recordFailure(span, sink, err)
		return
	}
	c.memo.record(sink.SourceID, sink.TokenID, rec.Token.ExpiresAt)
	c.recordSuccess(span, sink, "write", timer)
}

func (c *consumer) recordSuccess(span trace.Span, sink model.SinkSpec, action string, timer metrics.Timer) {
	if c.log != nil {
		c.log.WithFields(logrus.Fields{
			"sink": sink.ID, "source_id": sink.SourceID, "token_id": sink.TokenID, "action": action,
		}).Info("sink propagation succeeded")
	}
	if c.metrics != nil {
		c.metrics.RecordSinkPropagation(sink.ID, c.w.kind(), "ok", timer.Elapsed())
	}
	if span != nil {
		span.SetAttributes(tracing.AttributeStatus.String(action))
	}
}

func (c *consumer) recordFailure(span trace.Span, sink model.SinkSpec, err error) {
	if c.log != nil {
		c.log.WithFields(logrus.Fields{
			"sink": sink.ID, "source_id": sink.SourceID, "token_id": sink.TokenID, "error": err,
		}).Warn("sink write failed")
	}
	if c.metrics != nil {
		c.metrics.RecordSinkPropagation(sink.ID, c.w.kind(), "error", 0)
	}
	if span != nil {
		span.SetAttributes(
			tracing.AttributeStatus.String("error"),
			tracing.AttributeError.String(err.Error()),
		)
	}
}

// Manager owns every configured sink and the per-kind consumer tasks that
// propagate to them.
type Manager struct {
	cache   *tokencache.Cache
	bus     *eventbus.Bus
	log     *logrus.Entry
	metrics *metrics.Collector
	tracer  *tracing.TracerProvider

	fileSinks []model.SinkSpec
	udsSinks  []model.SinkSpec
	httpSinks []model.SinkSpec

	fileWriter *fileWriter
}

// New partitions sinks by kind. tracer may be nil to disable span emission.
func New(allSinks []model.SinkSpec, cache *tokencache.Cache, bus *eventbus.Bus, log *logrus.Entry, collector *metrics.Collector, tracer *tracing.TracerProvider) *Manager {
	m := &Manager{cache: cache, bus: bus, log: log, metrics: collector, tracer: tracer}
	for _, s := range allSinks {
		switch s.Kind {
		case model.SinkFile:
			m.fileSinks = append(m.fileSinks, s)
		case model.SinkUDS:
			m.udsSinks = append(m.udsSinks, s)
		case model.SinkHTTP:
			m.httpSinks = append(m.httpSinks, s)
		}
	}
	m.fileWriter = &fileWriter{}
	return m
}

// HTTPSinks returns the sinks the HTTP surface must install routes for.
func (m *Manager) HTTPSinks() []model.SinkSpec { return m.httpSinks }

// Start spawns the file and uds consumer tasks. Each subscribes to its
// own bus channel so a slow file-write never delays uds propagation.
func (m *Manager) Start(ctx context.Context) {
	if len(m.fileSinks) > 0 {
		events := m.bus.Subscribe("sink-file")
		c := &consumer{w: m.fileWriter, sinks: m.fileSinks, cache: m.cache, memo: newMemo(), log: m.log, metrics: m.metrics, tracer: m.tracer}
		go c.run(ctx, events)
	}
	if len(m.udsSinks) > 0 {
		events := m.bus.Subscribe("sink-uds")
		c := &consumer{w: &udsWriter{}, sinks: m.udsSinks, cache: m.cache, memo: newMemo(), log: m.log, metrics: m.metrics, tracer: m.tracer}
		go c.run(ctx, events)
	}
}

// Shutdown deletes every file this manager wrote, per the graceful
// shutdown contract: on SIGINT/SIGTERM the file-sink task removes its
// files before the process exits.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, sink := range m.fileSinks {
		if err := m.fileWriter.remove(sink); err != nil && m.log != nil {
			m.log.WithFields(logrus.Fields{"sink": sink.ID, "path": sink.Path, "error": err}).
				Warn("failed to remove sink file during shutdown")
		}
	}
}
