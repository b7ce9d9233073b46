package ratelimit

import (
	"math"
	"time"

	"rate-limiter/internal/store"
)

// tokenBucket starts full at Burst tokens and refills at RefillRate per second.
// Bursts up to capacity pass; sustained traffic is held to the refill rate.
type tokenBucket struct{}

// refill projects prev to now. A missing record is a full bucket.
func (tokenBucket) refill(p *policy, prev *store.Record, now time.Time) (tokens float64, last time.Time) {
	capacity := float64(p.cfg.Burst)
	if prev == nil {
		return capacity, now
	}

	tokens = prev.Tokens
	last = time.Unix(0, prev.LastRefill)
	if elapsed := now.Sub(last).Seconds(); elapsed > 0 {
		tokens += elapsed * p.cfg.RefillRate
		last = now
	}
	return math.Min(tokens, capacity), last
}

func (tokenBucket) metadata(p *policy, tokens float64) map[string]any {
	return map[string]any{
		"tokens":      tokens,
		"capacity":    p.cfg.Burst,
		"refill_rate": p.cfg.RefillRate,
	}
}

func (b tokenBucket) check(p *policy, prev *store.Record, now time.Time, weight int) (*store.Record, outcome) {
	tokens, last := b.refill(p, prev, now)
	capacity := float64(p.cfg.Burst)
	rate := p.cfg.RefillRate
	w := float64(weight)

	if tokens+epsilon < w {
		return nil, outcome{
			remaining:  floorInt(tokens),
			reset:      now.Add(secondsToDuration((capacity - tokens) / rate)),
			retryAfter: ceilSeconds(secondsToDuration((w - tokens) / rate)),
			metadata:   b.metadata(p, tokens),
		}
	}

	tokens = math.Max(tokens-w, 0)
	next := newRecord(p, now)
	next.Tokens = tokens
	next.LastRefill = last.UnixNano()
	next.Capacity = capacity

	return next, outcome{
		allowed:   true,
		remaining: floorInt(tokens),
		reset:     now.Add(secondsToDuration((capacity - tokens) / rate)),
		metadata:  b.metadata(p, tokens),
	}
}

func (b tokenBucket) peek(p *policy, prev *store.Record, now time.Time) outcome {
	tokens, _ := b.refill(p, prev, now)
	return outcome{
		allowed:   tokens+epsilon >= 1,
		remaining: floorInt(tokens),
		reset:     now.Add(secondsToDuration((float64(p.cfg.Burst) - tokens) / p.cfg.RefillRate)),
		metadata:  b.metadata(p, tokens),
	}
}

func (tokenBucket) idleAt(p *policy, rec *store.Record) time.Time {
	missing := float64(p.cfg.Burst) - rec.Tokens
	return time.Unix(0, rec.LastRefill).Add(secondsToDuration(missing / p.cfg.RefillRate))
}
