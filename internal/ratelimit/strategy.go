package ratelimit

import (
	"math"
	"time"

	"rate-limiter/internal/store"
)

// epsilon absorbs float drift in bucket arithmetic
const epsilon = 1e-9

// outcome is what a strategy reports for one check or projection
type outcome struct {
	allowed    bool
	remaining  int
	reset      time.Time
	retryAfter int
	metadata   map[string]any
}

// strategy is implemented only by the four algorithms in this package and is
// chosen once, when a policy is registered.
type strategy interface {
	// check decides one admission of weight units at now. next is the record to
	// store, or nil when the decision leaves the state unchanged.
	check(p *policy, prev *store.Record, now time.Time, weight int) (next *store.Record, out outcome)
	// peek projects prev to now without producing a new record
	peek(p *policy, prev *store.Record, now time.Time) outcome
	// idleAt is the instant from which rec answers exactly like an absent record
	idleAt(p *policy, rec *store.Record) time.Time
}

var (
	fixedWindowStrategy   strategy = fixedWindow{}
	slidingWindowStrategy strategy = slidingWindow{}
	tokenBucketStrategy   strategy = tokenBucket{}
	leakyBucketStrategy   strategy = leakyBucket{}
)

func strategyFor(s Strategy) strategy {
	switch s {
	case StrategyFixedWindow:
		return fixedWindowStrategy
	case StrategySlidingWindow:
		return slidingWindowStrategy
	case StrategyTokenBucket:
		return tokenBucketStrategy
	case StrategyLeakyBucket:
		return leakyBucketStrategy
	default:
		// Validate rejects unknown strategies before compile gets here
		panic("ratelimit: unknown strategy " + string(s))
	}
}

// ceilSeconds rounds d up to whole seconds, never below one
func ceilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// secondsToDuration converts fractional seconds, saturating instead of overflowing
func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	if s >= math.MaxInt64/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(s * float64(time.Second))
}

func floorInt(v float64) int {
	f := math.Floor(v + epsilon)
	if f < 0 {
		return 0
	}
	return int(f)
}

// oversized rejects a weight larger than the policy's capacity. Waiting cannot
// make room for it, so RetryAfter is one full window.
func oversized(p *policy, prev *store.Record, now time.Time) outcome {
	out := p.strategy.peek(p, prev, now)
	out.allowed = false
	out.retryAfter = ceilSeconds(p.cfg.Window)
	return out
}

func newRecord(p *policy, now time.Time) *store.Record {
	return &store.Record{
		Policy:    p.cfg.Key,
		Strategy:  string(p.cfg.Strategy),
		UpdatedAt: now.UnixNano(),
	}
}
