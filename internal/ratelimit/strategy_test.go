package ratelimit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rate-limiter/internal/store"
)

func TestFixedWindow_LimitAndRollover(t *testing.T) {
	clock := newManualClock()
	e := newTestEngine(t, clock)
	mustSet(t, e, RateLimitConfig{Key: "forms", Strategy: StrategyFixedWindow, Tier: TierIP, Limit: 3, Window: time.Minute, Enabled: true})

	for want := 2; want >= 0; want-- {
		res := e.Check("forms", "1.1.1.1", 1)
		assert.True(t, res.Allowed)
		assert.Equal(t, want, res.Remaining)
		assert.Equal(t, 3, res.Limit)
		assert.Equal(t, epoch.Add(time.Minute), res.ResetTime)
	}

	res := e.Check("forms", "1.1.1.1", 1)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 60, res.RetryAfter)

	clock.Advance(30 * time.Second)
	res = e.Check("forms", "1.1.1.1", 1)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30, res.RetryAfter)

	clock.Advance(30 * time.Second)
	res = e.Check("forms", "1.1.1.1", 1)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, epoch.Add(2*time.Minute), res.ResetTime)
	assert.Zero(t, res.RetryAfter)
}

func TestFixedWindow_WeightedRejectionLeavesCount(t *testing.T) {
	clock := newManualClock()
	e := newTestEngine(t, clock)
	mustSet(t, e, RateLimitConfig{Key: "upload", Strategy: StrategyFixedWindow, Tier: TierIP, Limit: 5, Window: time.Minute, Enabled: true})

	assert.True(t, e.Check("upload", "a", 3).Allowed)

	res := e.Check("upload", "a", 3)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)

	res = e.Check("upload", "a", 2)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestSlidingWindow_Precision(t *testing.T) {
	clock := newManualClock()
	e := newTestEngine(t, clock)
	mustSet(t, e, RateLimitConfig{Key: "contact", Strategy: StrategySlidingWindow, Tier: TierIP, Limit: 3, Window: 10 * time.Second, Enabled: true})

	assert.True(t, e.Check("contact", "a", 1).Allowed)
	assert.True(t, e.Check("contact", "a", 1).Allowed)

	clock.Advance(5 * time.Second)
	res := e.Check("contact", "a", 1)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res = e.Check("contact", "a", 1)
	assert.False(t, res.Allowed)
	assert.Equal(t, 6, res.RetryAfter)

	// both t=0 entries still count at exactly t=10
	clock.Advance(5 * time.Second)
	assert.False(t, e.Check("contact", "a", 1).Allowed)

	clock.Advance(time.Second)
	res = e.Check("contact", "a", 1)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
}

func TestSlidingWindow_WeightAboveLimit(t *testing.T) {
	clock := newManualClock()
	e := newTestEngine(t, clock)
	mustSet(t, e, RateLimitConfig{Key: "contact", Strategy: StrategySlidingWindow, Tier: TierIP, Limit: 3, Window: 10 * time.Second, Enabled: true})

	res := e.Check("contact", "a", 4)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)
	assert.Equal(t, 10, res.RetryAfter)
}

func TestTokenBucket_BurstThrottleRefill(t *testing.T) {
	clock := newManualClock()
	e := newTestEngine(t, clock)
	mustSet(t, e, RateLimitConfig{Key: "search", Strategy: StrategyTokenBucket, Tier: TierIP, Limit: 10, Window: 10 * time.Second, Burst: 5, Enabled: true})

	for want := 4; want >= 0; want-- {
		res := e.Check("search", "a", 1)
		assert.True(t, res.Allowed)
		assert.Equal(t, want, res.Remaining)
		assert.Equal(t, 5, res.Limit)
	}

	res := e.Check("search", "a", 1)
	assert.False(t, res.Allowed)
	assert.Equal(t, 1, res.RetryAfter)
	assert.Equal(t, epoch.Add(5*time.Second), res.ResetTime)

	clock.Advance(2 * time.Second)
	assert.True(t, e.Check("search", "a", 1).Allowed)
	assert.True(t, e.Check("search", "a", 1).Allowed)
	assert.False(t, e.Check("search", "a", 1).Allowed)

	// refill stops at capacity
	clock.Advance(time.Hour)
	res = e.Check("search", "a", 1)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
}

func TestTokenBucket_DefaultsToLimit(t *testing.T) {
	clock := newManualClock()
	e := newTestEngine(t, clock)
	mustSet(t, e, RateLimitConfig{Key: "bulk", Strategy: StrategyTokenBucket, Tier: TierUser, Limit: 4, Window: 4 * time.Second, Enabled: true})

	cfg, err := e.GetConfig("bulk")
	assert.NoError(t, err)
	assert.Equal(t, 4, cfg.Burst)
	assert.InDelta(t, 1.0, cfg.RefillRate, 1e-9)
	assert.Equal(t, FailOpen, cfg.FailMode)

	res := e.Check("bulk", "u", 4)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res = e.Check("bulk", "u", 2)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.RetryAfter)
}

func TestLeakyBucket_Smoothing(t *testing.T) {
	clock := newManualClock()
	e := newTestEngine(t, clock)
	mustSet(t, e, RateLimitConfig{Key: "upload", Strategy: StrategyLeakyBucket, Tier: TierUser, Limit: 10, Window: 10 * time.Second, Enabled: true})

	for i := 0; i < 10; i++ {
		assert.True(t, e.Check("upload", "u", 1).Allowed)
	}
	res := e.Check("upload", "u", 1)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 1, res.RetryAfter)

	clock.Advance(3 * time.Second)
	for i := 0; i < 3; i++ {
		assert.True(t, e.Check("upload", "u", 1).Allowed)
	}
	assert.False(t, e.Check("upload", "u", 1).Allowed)

	clock.Advance(10 * time.Second)
	res = e.Check("upload", "u", 1)
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, res.Remaining)
}

func TestStrategies_IdleAtMatchesFreshState(t *testing.T) {
	configs := []RateLimitConfig{
		{Key: "fw", Strategy: StrategyFixedWindow, Tier: TierIP, Limit: 2, Window: 10 * time.Second, Enabled: true},
		{Key: "sw", Strategy: StrategySlidingWindow, Tier: TierIP, Limit: 2, Window: 10 * time.Second, Enabled: true},
		{Key: "tb", Strategy: StrategyTokenBucket, Tier: TierIP, Limit: 2, Window: 10 * time.Second, Enabled: true},
		{Key: "lb", Strategy: StrategyLeakyBucket, Tier: TierIP, Limit: 2, Window: 10 * time.Second, Enabled: true},
	}

	for _, cfg := range configs {
		t.Run(string(cfg.Strategy), func(t *testing.T) {
			p, err := compile(cfg)
			assert.NoError(t, err)

			rec, out := p.strategy.check(p, nil, epoch, 1)
			assert.True(t, out.allowed)
			assert.NotNil(t, rec)

			idle := p.strategy.idleAt(p, rec)
			assert.True(t, idle.After(epoch))

			fresh := p.strategy.peek(p, nil, idle)
			projected := p.strategy.peek(p, rec, idle)
			assert.Equal(t, fresh.remaining, projected.remaining)
		})
	}
}

func TestWindows_HugeWeightDoesNotWrap(t *testing.T) {
	fixed, err := compile(RateLimitConfig{Key: "fixed", Strategy: StrategyFixedWindow, Tier: TierIP, Limit: 5, Window: time.Minute, Enabled: true})
	require.NoError(t, err)
	prev := &store.Record{Policy: "fixed", Strategy: string(StrategyFixedWindow), WindowStart: windowStart(epoch, time.Minute), Count: 1}

	next, out := fixed.strategy.check(fixed, prev, epoch, math.MaxInt)
	assert.Nil(t, next)
	assert.False(t, out.allowed)
	assert.Equal(t, 4, out.remaining)

	sliding, err := compile(RateLimitConfig{Key: "sliding", Strategy: StrategySlidingWindow, Tier: TierIP, Limit: 5, Window: time.Minute, Enabled: true})
	require.NoError(t, err)
	prev = &store.Record{Policy: "sliding", Strategy: string(StrategySlidingWindow), Timestamps: []int64{epoch.UnixNano()}}

	assert.NotPanics(t, func() {
		next, out = sliding.strategy.check(sliding, prev, epoch, math.MaxInt)
	})
	assert.Nil(t, next)
	assert.False(t, out.allowed)
	assert.Equal(t, 60, out.retryAfter)
}
