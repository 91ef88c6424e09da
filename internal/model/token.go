// Package model holds the shared types that flow between the token agent's
// engine components: tokens, cache records, and the declarative shape of
// sources and sinks parsed from configuration.
package model

// Token is immutable after construction: a value and its absolute expiry.
type Token struct {
	Value     string
	ExpiresAt int64 // unix seconds
}

// TokenRecord is a cache entry: a token plus the deadline at which it
// becomes eligible for refresh.
//
// Invariant: RefetchAt <= Token.ExpiresAt. RefetchAt is computed as
// max(0, expiry - safetyMargin) where safetyMargin is the per-source value
// if set, otherwise the global default, otherwise 10 seconds.
type TokenRecord struct {
	ID       string
	Token    Token
	RefetchAt int64 // unix seconds
}

// DueToRefetch reports whether the record is due to be refetched at the
// given time.
func (r TokenRecord) DueToRefetch(now int64) bool {
	return now >= r.RefetchAt
}

// DueToEvict reports whether the record is due to be evicted at the given
// time. Eviction happens one second before expiry to avoid handing out a
// token mid-expiry.
func (r TokenRecord) DueToEvict(now int64) bool {
	return now >= r.Token.ExpiresAt-1
}

// ComputeRefetchAt computes the effective refetch deadline for a token given an
// expiry and a safety margin, enforcing RefetchAt <= expiry.
func ComputeRefetchAt(expiry int64, safetyMargin int64) int64 {
	at := expiry - safetyMargin
	if at < 0 {
		at = 0
	}
	return at
}
