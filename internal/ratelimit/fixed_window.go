package ratelimit

import (
	"time"

	"rate-limiter/internal/store"
)

// fixedWindow counts weight in epoch-aligned windows. Every identifier of a
// policy rolls over at the same instant, so a client can spend Limit at the
// end of one window and Limit again at the start of the next.
type fixedWindow struct{}

func windowStart(now time.Time, window time.Duration) int64 {
	n := now.UnixNano()
	return n - n%int64(window)
}

func (fixedWindow) current(p *policy, prev *store.Record, now time.Time) (start int64, count int) {
	start = windowStart(now, p.cfg.Window)
	if prev != nil && prev.WindowStart == start {
		count = prev.Count
	}
	return start, count
}

func (f fixedWindow) check(p *policy, prev *store.Record, now time.Time, weight int) (*store.Record, outcome) {
	start, count := f.current(p, prev, now)
	reset := time.Unix(0, start).Add(p.cfg.Window)

	if weight > p.cfg.Limit-count {
		return nil, outcome{
			remaining:  max(p.cfg.Limit-count, 0),
			reset:      reset,
			retryAfter: ceilSeconds(reset.Sub(now)),
		}
	}

	next := newRecord(p, now)
	next.Count = count + weight
	next.WindowStart = start

	return next, outcome{
		allowed:   true,
		remaining: p.cfg.Limit - next.Count,
		reset:     reset,
	}
}

func (f fixedWindow) peek(p *policy, prev *store.Record, now time.Time) outcome {
	start, count := f.current(p, prev, now)
	return outcome{
		allowed:   count < p.cfg.Limit,
		remaining: max(p.cfg.Limit-count, 0),
		reset:     time.Unix(0, start).Add(p.cfg.Window),
		metadata: map[string]any{
			"count":        count,
			"window_start": time.Unix(0, start).UTC(),
		},
	}
}

func (fixedWindow) idleAt(p *policy, rec *store.Record) time.Time {
	return time.Unix(0, rec.WindowStart).Add(p.cfg.Window)
}
