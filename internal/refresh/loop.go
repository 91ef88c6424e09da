// Package refresh implements the refresh loop (C6): the long-lived task
// that walks sources in DAG order, fetches those due for refresh, and
// publishes change notifications.
package refresh

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AleksandrNi/token-agent/internal/eventbus"
	"github.com/AleksandrNi/token-agent/internal/model"
	"github.com/AleksandrNi/token-agent/internal/source"
	"github.com/AleksandrNi/token-agent/internal/tokencache"
	"github.com/AleksandrNi/token-agent/pkg/resilience"
	"github.com/AleksandrNi/token-agent/pkg/tracing"
)

// minSleep is the floor on the inter-cycle sleep, even when next_wake is
// already in the past.
const minSleep = 1 * time.Second

// Loop drives the refresh cycle described in the component design: for
// every node in DAG order, fetch-if-due through the retry engine, store
// successful results, and publish a change notification.
type Loop struct {
	nodes    []model.Node
	cache    *tokencache.Cache
	executor *source.Executor
	bus      *eventbus.Bus
	retry    resilience.RetryStrategy
	settings model.Settings
	log      *logrus.Entry
	tracer   *tracing.TracerProvider

	now func() int64
}

// New builds a Loop over sources already ordered by dag.Order. tracer may
// be nil to disable span emission.
func New(nodes []model.Node, cache *tokencache.Cache, executor *source.Executor, bus *eventbus.Bus, settings model.Settings, log *logrus.Entry, tracer *tracing.TracerProvider) *Loop {
	return &Loop{
		nodes:    nodes,
		cache:    cache,
		executor: executor,
		bus:      bus,
		retry: resilience.RetryStrategy{
			Attempts:  settings.Retry.Attempts,
			BaseDelay: time.Duration(settings.Retry.BaseDelayMS) * time.Millisecond,
			MaxDelay:  time.Duration(settings.Retry.MaxDelayMS) * time.Millisecond,
		},
		settings: settings,
		log:      log,
		tracer:   tracer,
		now:      func() int64 { return time.Now().Unix() },
	}
}

// Run drives cycles until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	for {
		sleep := l.runCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// runCycle executes one pass over every node in DAG order and returns how
// long to sleep before the next pass.
func (l *Loop) runCycle(ctx context.Context) time.Duration {
	if l.tracer != nil {
		var end func()
		ctx, end = l.startCycleSpan(ctx)
		defer end()
	}

	now := l.now()
	nextWake := int64(-1) // sentinel for "+infinity"

	for _, node := range l.nodes {
		margin := node.Spec.EffectiveSafetyMargin(l.settings.SafetyMarginSeconds)
		due, earliest := l.dueness(node, now)

		if !due {
			if earliest >= 0 {
				nextWake = trackEarliest(nextWake, earliest)
			}
			continue
		}

		records, err := l.fetchWithRetry(ctx, node.Spec, margin)
		if err != nil {
			if l.log != nil {
				l.log.WithFields(logrus.Fields{"source": node.ID, "error": err}).
					Warn("source refresh exhausted retries; cycle continues with stale values")
			}
			continue
		}

		l.cache.Set(node.ID, records)
		l.bus.Publish(eventbus.SourceChanged{SourceID: node.ID})
	}

	if nextWake < 0 {
		return minSleep
	}

	wait := time.Duration(nextWake-now) * time.Second
	if wait < minSleep {
		wait = minSleep
	}
	return wait
}

// dueness reports whether any declared token is due (absent, or its
// refetch_at <= now), and the earliest future refetch_at among the tokens
// that are not due.
func (l *Loop) dueness(node model.Node, now int64) (due bool, earliestNotDue int64) {
	earliestNotDue = -1

	tokenIDs := tokencache.TokensFor(node.Spec)
	if len(tokenIDs) == 0 {
		// A source declaring no tokens is never due on its own, but it
		// still needs to run at least once if it has no prior record.
		return !l.cache.ContainsSource(node.ID), earliestNotDue
	}

	for _, id := range tokenIDs {
		rec, ok := l.cache.Get(node.ID, id)
		if !ok || rec.DueToRefetch(now) {
			due = true
			continue
		}
		earliestNotDue = trackEarliest(earliestNotDue, rec.RefetchAt)
	}
	return due, earliestNotDue
}

func trackEarliest(current, candidate int64) int64 {
	if current < 0 || candidate < current {
		return candidate
	}
	return current
}

func (l *Loop) startCycleSpan(ctx context.Context) (context.Context, func()) {
	spanCtx, span := l.tracer.StartSpan(ctx, tracing.SpanRefreshCycle)
	return spanCtx, func() { span.End() }
}

func (l *Loop) fetchWithRetry(ctx context.Context, spec model.SourceSpec, margin int64) ([]model.TokenRecord, error) {
	var result []model.TokenRecord
	err := l.retry.Run(ctx, func(ctx context.Context) error {
		records, err := l.executor.Fetch(ctx, spec, margin)
		if err != nil {
			return err
		}
		result = records
		return nil
	})
	return result, err
}
