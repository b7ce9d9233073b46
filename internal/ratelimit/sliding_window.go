package ratelimit

import (
	"sort"
	"time"

	"rate-limiter/internal/store"
)

// slidingWindow keeps one timestamp per unit of admitted weight and counts
// those no older than now-Window. Memory per identifier grows with
// Limit, so very large limits on long windows are better served by a bucket.
type slidingWindow struct{}

// live returns the suffix of ts that is still inside the window ending at now.
// The result aliases ts and must not be appended to.
func (slidingWindow) live(p *policy, prev *store.Record, now time.Time) []int64 {
	if prev == nil || len(prev.Timestamps) == 0 {
		return nil
	}
	cutoff := now.UnixNano() - int64(p.cfg.Window)
	ts := prev.Timestamps
	i := sort.Search(len(ts), func(i int) bool { return ts[i] >= cutoff })
	return ts[i:]
}

// expiry is the first instant at which ts no longer counts
func expiry(ts int64, window time.Duration) time.Time {
	return time.Unix(0, ts).Add(window + time.Nanosecond)
}

func (s slidingWindow) check(p *policy, prev *store.Record, now time.Time, weight int) (*store.Record, outcome) {
	ts := s.live(p, prev, now)
	n := len(ts)
	limit := p.cfg.Limit

	if weight > limit-n {
		retry := p.cfg.Window
		if weight <= limit {
			// the entry whose expiry frees enough room for weight
			retry = expiry(ts[n+weight-limit-1], p.cfg.Window).Sub(now)
		}
		reset := now
		if n > 0 {
			reset = expiry(ts[0], p.cfg.Window)
		}
		return nil, outcome{
			remaining:  max(limit-n, 0),
			reset:      reset,
			retryAfter: ceilSeconds(retry),
		}
	}

	stamp := now.UnixNano()
	next := newRecord(p, now)
	next.Timestamps = make([]int64, n, n+weight)
	copy(next.Timestamps, ts)
	for i := 0; i < weight; i++ {
		next.Timestamps = append(next.Timestamps, stamp)
	}

	return next, outcome{
		allowed:   true,
		remaining: limit - len(next.Timestamps),
		reset:     expiry(next.Timestamps[0], p.cfg.Window),
	}
}

func (s slidingWindow) peek(p *policy, prev *store.Record, now time.Time) outcome {
	ts := s.live(p, prev, now)
	out := outcome{
		allowed:   len(ts) < p.cfg.Limit,
		remaining: max(p.cfg.Limit-len(ts), 0),
		reset:     now,
		metadata:  map[string]any{"requests_in_window": len(ts)},
	}
	if len(ts) > 0 {
		out.reset = expiry(ts[0], p.cfg.Window)
		out.metadata["oldest"] = time.Unix(0, ts[0]).UTC()
	}
	return out
}

func (slidingWindow) idleAt(p *policy, rec *store.Record) time.Time {
	if len(rec.Timestamps) == 0 {
		return time.Time{}
	}
	return expiry(rec.Timestamps[len(rec.Timestamps)-1], p.cfg.Window)
}
