package expiration

import (
	"math/rand/v2"
	"time"
)

// ExpirationPolicy reports whether an entry whose TTL ends at expiresAt is
// stale at now.
type ExpirationPolicy interface {
	IsExpired(now, expiresAt time.Time) bool
}

// ExpiresAt returns the instant an entry created at start with the given ttl
// stops being fresh. A non-positive ttl yields the zero time.
func ExpiresAt(start time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return start.Add(ttl)
}

// GeneralExpirationPolicy treats an entry as stale strictly after its
// deadline: an entry read exactly at createdAt+ttl is still fresh.
type GeneralExpirationPolicy struct{}

var _ ExpirationPolicy = GeneralExpirationPolicy{}

func (GeneralExpirationPolicy) IsExpired(now, expiresAt time.Time) bool {
	return now.After(expiresAt)
}

// NeverExpirationPolicy keeps every entry fresh regardless of its TTL. TTLs
// are still recorded, so RemainingTTL keeps reporting them.
type NeverExpirationPolicy struct{}

var _ ExpirationPolicy = NeverExpirationPolicy{}

func (NeverExpirationPolicy) IsExpired(now, expiresAt time.Time) bool {
	return false
}

// EarlyExpirationPolicy lets an entry go stale up to Duration before its
// deadline with probability Percentage. Spreading the moment entries go stale
// spreads the revalidation fetches they trigger.
type EarlyExpirationPolicy struct {
	// Duration is how far ahead of the deadline an entry may go stale.
	Duration time.Duration

	// Percentage is the chance, between 0 and 1, that a single check uses
	// the early deadline.
	Percentage float64

	// Random decides each check. The global source is used when nil.
	Random *rand.Rand
}

var _ ExpirationPolicy = (*EarlyExpirationPolicy)(nil)

func (p *EarlyExpirationPolicy) IsExpired(now, expiresAt time.Time) bool {
	if p.randFloat64() >= p.Percentage {
		return now.After(expiresAt)
	}
	return now.Add(p.Duration).After(expiresAt)
}

func (p *EarlyExpirationPolicy) randFloat64() float64 {
	if p.Random == nil {
		return rand.Float64()
	}
	return p.Random.Float64()
}
