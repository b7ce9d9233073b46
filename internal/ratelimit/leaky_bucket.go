package ratelimit

import (
	"math"
	"time"

	"rate-limiter/internal/store"
)

// leakyBucket fills by weight and drains at Limit/Window per second. Capacity
// is Burst, which defaults to Limit, so there is no allowance beyond it.
type leakyBucket struct{}

// leak projects prev to now. A missing record is an empty bucket.
func (leakyBucket) leak(p *policy, prev *store.Record, now time.Time) (volume float64, last time.Time) {
	if prev == nil {
		return 0, now
	}

	volume = prev.Volume
	last = time.Unix(0, prev.LastLeak)
	if elapsed := now.Sub(last).Seconds(); elapsed > 0 {
		volume = math.Max(volume-elapsed*p.leakRate, 0)
		last = now
	}
	return volume, last
}

func (leakyBucket) metadata(p *policy, volume float64) map[string]any {
	return map[string]any{
		"volume":    volume,
		"capacity":  p.cfg.Burst,
		"leak_rate": p.leakRate,
	}
}

func (b leakyBucket) check(p *policy, prev *store.Record, now time.Time, weight int) (*store.Record, outcome) {
	volume, last := b.leak(p, prev, now)
	capacity := float64(p.cfg.Burst)
	w := float64(weight)

	if volume+w > capacity+epsilon {
		return nil, outcome{
			remaining:  floorInt(capacity - volume),
			reset:      now.Add(secondsToDuration(volume / p.leakRate)),
			retryAfter: ceilSeconds(secondsToDuration((volume + w - capacity) / p.leakRate)),
			metadata:   b.metadata(p, volume),
		}
	}

	volume += w
	next := newRecord(p, now)
	next.Volume = volume
	next.LastLeak = last.UnixNano()
	next.Capacity = capacity

	return next, outcome{
		allowed:   true,
		remaining: floorInt(capacity - volume),
		reset:     now.Add(secondsToDuration(volume / p.leakRate)),
		metadata:  b.metadata(p, volume),
	}
}

func (b leakyBucket) peek(p *policy, prev *store.Record, now time.Time) outcome {
	volume, _ := b.leak(p, prev, now)
	capacity := float64(p.cfg.Burst)
	return outcome{
		allowed:   volume+1 <= capacity+epsilon,
		remaining: floorInt(capacity - volume),
		reset:     now.Add(secondsToDuration(volume / p.leakRate)),
		metadata:  b.metadata(p, volume),
	}
}

func (leakyBucket) idleAt(p *policy, rec *store.Record) time.Time {
	return time.Unix(0, rec.LastLeak).Add(secondsToDuration(rec.Volume / p.leakRate))
}
