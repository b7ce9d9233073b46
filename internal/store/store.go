// Package store defines where rate limit records live between checks.
//
// A Store maps record keys ("<policy>:<identifier>") to Records. The rate
// limiter treats records as immutable values: a record handed to Set is never
// modified afterwards, and a record returned by Get or Scan must be treated as
// read-only. Callers that need to change a record Clone it first.
//
// Implementations in this repository:
//
//   - Memory: sharded in-process store, the authoritative state of the limiter
//   - redis.Client: shared Redis mirror (internal/redis)
//   - storage.SQLStore: SQLite or PostgreSQL mirror (internal/storage)
//
// Durable implementations are written to best-effort and provide no
// cross-process coordination.
package store

import (
	"context"
	"strings"
	"time"
)

// Record is the per-(policy, identifier) state of one algorithm.
// Only the fields of the owning strategy are populated. Times are unix nanoseconds.
type Record struct {
	Policy   string `json:"policy"`
	Strategy string `json:"strategy"`

	// fixed window
	Count       int   `json:"count,omitempty"`
	WindowStart int64 `json:"window_start,omitempty"`

	// sliding window, ascending
	Timestamps []int64 `json:"timestamps,omitempty"`

	// token bucket
	Tokens     float64 `json:"tokens,omitempty"`
	LastRefill int64   `json:"last_refill,omitempty"`

	// leaky bucket
	Volume   float64 `json:"volume,omitempty"`
	LastLeak int64   `json:"last_leak,omitempty"`

	Capacity  float64 `json:"capacity,omitempty"`
	UpdatedAt int64   `json:"updated_at"`
}

// Clone returns a deep copy of r
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Timestamps != nil {
		c.Timestamps = make([]int64, len(r.Timestamps))
		copy(c.Timestamps, r.Timestamps)
	}
	return &c
}

// Store is the record persistence contract
type Store interface {
	// Get returns the record stored under key. ok is false when there is none.
	Get(ctx context.Context, key string) (rec *Record, ok bool, err error)
	// Set stores rec under key. A positive ttl expires the record after ttl.
	Set(ctx context.Context, key string, rec *Record, ttl time.Duration) error
	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// DeletePrefix removes every key starting with prefix and returns how many were removed.
	// An empty prefix removes everything.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Scan calls fn for every live key starting with prefix until fn returns false.
	Scan(ctx context.Context, prefix string, fn func(key string, rec *Record) bool) error
	// Len returns the number of stored records.
	Len(ctx context.Context) (int, error)
	// Close releases resources held by the store.
	Close() error
}

// KeySeparator joins a policy key and an identifier
const KeySeparator = ":"

// Key builds the record key for a policy and identifier
func Key(policy, identifier string) string {
	return policy + KeySeparator + identifier
}

// PolicyPrefix returns the prefix shared by every record of policy
func PolicyPrefix(policy string) string {
	return policy + KeySeparator
}

// SplitKey separates a record key into policy and identifier.
// Identifiers may contain the separator; policy keys may not.
func SplitKey(key string) (policy, identifier string, ok bool) {
	return strings.Cut(key, KeySeparator)
}

// Purger is implemented by stores that keep expired rows until asked to drop them
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}
