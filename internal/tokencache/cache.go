// Package tokencache implements the process-wide token cache: a two-level
// mapping of source_id -> token_id -> TokenRecord, guarded by a single
// reader/writer lock.
package tokencache

import (
	"sync"

	"github.com/AleksandrNi/token-agent/internal/model"
	"github.com/AleksandrNi/token-agent/pkg/metrics"
)

// Cache is the engine's single source of truth for live tokens. It is
// constructed once at startup and shared by the refresh loop, the
// sweeper, the source executor, and every sink.
type Cache struct {
	mu      sync.RWMutex
	sources map[string]map[string]model.TokenRecord
	metrics *metrics.Collector
}

// New creates an empty cache. metrics may be nil in tests.
func New(collector *metrics.Collector) *Cache {
	return &Cache{
		sources: make(map[string]map[string]model.TokenRecord),
		metrics: collector,
	}
}

// Set atomically replaces the records under source_id with the supplied
// set. Records present in the cache but absent from records are retained:
// this is insert-or-update only, never delete — eviction is the sweeper's
// exclusive job. Returns the token IDs written.
func (c *Cache) Set(sourceID string, records []model.TokenRecord) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.sources[sourceID]
	if !ok {
		bucket = make(map[string]model.TokenRecord, len(records))
		c.sources[sourceID] = bucket
	}

	touched := make([]string, 0, len(records))
	for _, rec := range records {
		bucket[rec.ID] = rec
		touched = append(touched, rec.ID)
	}
	return touched
}

// Get returns the record for (sourceID, tokenID) and whether it was
// present. The returned record is a copy; TokenRecord holds no pointers so
// a value copy is sufficient to prevent external mutation of cache state.
func (c *Cache) Get(sourceID, tokenID string) (model.TokenRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bucket, ok := c.sources[sourceID]
	if !ok {
		return model.TokenRecord{}, false
	}
	rec, ok := bucket[tokenID]
	return rec, ok
}

// ContainsSource reports whether a source has ever had Set called for it.
func (c *Cache) ContainsSource(sourceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.sources[sourceID]
	return ok
}

// EvictExpired removes every record under sourceID whose eviction deadline
// (expiry - 1) has passed as of now. Returns whether the source existed.
func (c *Cache) EvictExpired(sourceID string, now int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.sources[sourceID]
	if !ok {
		return false
	}

	for id, rec := range bucket {
		if rec.DueToEvict(now) {
			delete(bucket, id)
			if c.metrics != nil {
				c.metrics.DeleteTokenExpiry(sourceID, id)
			}
		}
	}
	return true
}

// Clear drops every entry. Used only on shutdown.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sources = make(map[string]map[string]model.TokenRecord)
}

// SnapshotForMetrics publishes cached_tokens{source} and
// token_expiry_unix{source,token} gauges for every entry currently cached.
func (c *Cache) SnapshotForMetrics() {
	if c.metrics == nil {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for sourceID, bucket := range c.sources {
		c.metrics.SetCachedTokens(sourceID, float64(len(bucket)))
		for tokenID, rec := range bucket {
			c.metrics.SetTokenExpiry(sourceID, tokenID, float64(rec.Token.ExpiresAt))
		}
	}
}

// TokensFor returns the set of token IDs a source declares, per its spec,
// regardless of whether they are currently cached. Used by the sweeper and
// refresh loop to decide due-ness without holding the cache lock open
// across spec lookups.
func TokensFor(spec model.SourceSpec) []string {
	ids := make([]string, 0, len(spec.Parse.Tokens))
	for _, t := range spec.Parse.Tokens {
		ids = append(ids, t.ID)
	}
	return ids
}
