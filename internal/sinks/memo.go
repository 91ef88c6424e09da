package sinks

import "sync"

// memoKey identifies one (source_id, token_id) pair within a sink-local
// memo.
type memoKey struct {
	sourceID string
	tokenID  string
}

// memo records the expiry last written for a given (source_id, token_id)
// so a later notification carrying the same value is a no-op. Each
// consumer task (one per sink kind) owns exactly one memo, shared by every
// sink of that kind: sinks of the same kind bound to the same token use
// one entry.
type memo struct {
	mu      sync.Mutex
	written map[memoKey]int64
}

func newMemo() *memo {
	return &memo{written: make(map[memoKey]int64)}
}

// unchanged reports whether the memo already recorded this exact expiry
// for this token, meaning the write may be skipped.
func (m *memo) unchanged(sourceID, tokenID string, expiry int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.written[memoKey{sourceID, tokenID}]
	return ok && last == expiry
}

// record stores the expiry just written for this token.
func (m *memo) record(sourceID, tokenID string, expiry int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.written[memoKey{sourceID, tokenID}] = expiry
}

// forget removes a token's memo entry, used when the cache entry
// disappears and the sink writes its stub value.
func (m *memo) forget(sourceID, tokenID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.written, memoKey{sourceID, tokenID})
}
