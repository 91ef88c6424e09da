// Package sweeper implements the expiry sweeper (C7): an independent
// deadline-driven loop that evicts tokens past their eviction deadline and
// publishes change notifications, separately from the refresh loop.
//
// The sweeper's deadline (expiry - 1) and the refresh loop's deadline
// (expiry - safety_margin) differ and can drift arbitrarily far apart
// under clock or network latency, which is why eviction runs on its own
// timer instead of piggybacking on the refresh cycle.
package sweeper

import (
	"context"
	"time"

	"github.com/AleksandrNi/token-agent/internal/eventbus"
	"github.com/AleksandrNi/token-agent/internal/model"
	"github.com/AleksandrNi/token-agent/internal/tokencache"
	"github.com/AleksandrNi/token-agent/pkg/tracing"
)

// Sweeper evicts expired tokens and publishes notifications about it.
type Sweeper struct {
	nodes    []model.Node
	cache    *tokencache.Cache
	bus      *eventbus.Bus
	settings model.Settings
	tracer   *tracing.TracerProvider

	now func() int64
}

// New builds a Sweeper over the same DAG-ordered node list the refresh
// loop uses. tracer may be nil to disable span emission.
func New(nodes []model.Node, cache *tokencache.Cache, bus *eventbus.Bus, settings model.Settings, tracer *tracing.TracerProvider) *Sweeper {
	return &Sweeper{
		nodes:    nodes,
		cache:    cache,
		bus:      bus,
		settings: settings,
		tracer:   tracer,
		now:      func() int64 { return time.Now().Unix() },
	}
}

// Run drives sweep cycles until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		sleep := s.runCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func (s *Sweeper) runCycle(ctx context.Context) time.Duration {
	if s.tracer != nil {
		_, span := s.tracer.StartSpan(ctx, tracing.SpanSweeperCycle)
		defer span.End()
	}

	now := s.now()
	nextWake := int64(-1)

	for _, node := range s.nodes {
		margin := node.Spec.EffectiveSafetyMargin(s.settings.SafetyMarginSeconds)
		tokenIDs := tokencache.TokensFor(node.Spec)

		anyDue := false
		for _, id := range tokenIDs {
			rec, ok := s.cache.Get(node.ID, id)
			if ok {
				deadline := rec.Token.ExpiresAt - 1
				nextWake = trackEarliest(nextWake, deadline)
				if now >= deadline {
					anyDue = true
				}
			} else {
				nextWake = trackEarliest(nextWake, now+margin)
			}
		}

		if anyDue {
			s.cache.EvictExpired(node.ID, now)
			s.bus.Publish(eventbus.SourceChanged{SourceID: node.ID})
		}
	}

	s.cache.SnapshotForMetrics()

	if nextWake < 0 {
		return 0
	}
	wait := time.Duration(nextWake-now) * time.Second
	if wait < 0 {
		wait = 0
	}
	return wait
}

func trackEarliest(current, candidate int64) int64 {
	if current < 0 || candidate < current {
		return candidate
	}
	return current
}
