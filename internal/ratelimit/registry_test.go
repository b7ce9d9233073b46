package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "rate-limiter/internal/common/errors"
)

func TestRateLimitConfig_Validate(t *testing.T) {
	valid := RateLimitConfig{Key: "api.general", Strategy: StrategySlidingWindow, Tier: TierIP, Limit: 100, Window: time.Minute}

	tests := []struct {
		name    string
		mutate  func(*RateLimitConfig)
		wantErr bool
	}{
		{"valid", func(*RateLimitConfig) {}, false},
		{"empty key", func(c *RateLimitConfig) { c.Key = "" }, true},
		{"key with separator", func(c *RateLimitConfig) { c.Key = "api:general" }, true},
		{"key with space", func(c *RateLimitConfig) { c.Key = "api general" }, true},
		{"unknown strategy", func(c *RateLimitConfig) { c.Strategy = "gcra" }, true},
		{"unknown tier", func(c *RateLimitConfig) { c.Tier = "tenant" }, true},
		{"zero limit", func(c *RateLimitConfig) { c.Limit = 0 }, true},
		{"zero window", func(c *RateLimitConfig) { c.Window = 0 }, true},
		{"negative burst", func(c *RateLimitConfig) { c.Burst = -1 }, true},
		{"negative refill", func(c *RateLimitConfig) { c.RefillRate = -0.5 }, true},
		{"bad fail mode", func(c *RateLimitConfig) { c.FailMode = "sometimes" }, true},
		{"closed fail mode", func(c *RateLimitConfig) { c.FailMode = FailClosed }, false},
		{"burst below limit", func(c *RateLimitConfig) { c.Burst = 10 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.Len())

	require.NoError(t, r.Set(RateLimitConfig{Key: "z", Strategy: StrategyLeakyBucket, Tier: TierUser, Limit: 10, Window: 20 * time.Second, Enabled: true}))
	require.NoError(t, r.Set(RateLimitConfig{Key: "a", Strategy: StrategyFixedWindow, Tier: TierIP, Limit: 1, Window: time.Second}))

	cfg, err := r.Get("z")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Burst)
	assert.InDelta(t, 0.5, cfg.RefillRate, 1e-9)

	p, ok := r.lookup("z")
	require.True(t, ok)
	assert.InDelta(t, 0.5, p.leakRate, 1e-9)
	assert.Equal(t, 10, p.capacity())

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Key)
	assert.Equal(t, "z", list[1].Key)

	// a rejected update keeps the old policy
	err = r.Set(RateLimitConfig{Key: "a", Strategy: StrategyFixedWindow, Tier: TierIP, Limit: -1, Window: time.Second})
	assert.Error(t, err)
	cfg, err = r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Limit)

	assert.True(t, r.Delete("a"))
	assert.False(t, r.Delete("a"))
	assert.Equal(t, 1, r.Len())

	_, err = r.Get("a")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestDefaultPolicies(t *testing.T) {
	policies := DefaultPolicies()
	require.Len(t, policies, 12)

	r := NewRegistry()
	for _, cfg := range policies {
		require.NoError(t, r.Set(cfg), cfg.Key)
	}

	search, err := r.Get("search.query")
	require.NoError(t, err)
	assert.Equal(t, 20, search.Burst)
	assert.InDelta(t, 1.0, search.RefillRate, 1e-9)

	suspicious, err := r.Get("security.suspicious")
	require.NoError(t, err)
	assert.Equal(t, FailClosed, suspicious.FailMode)

	login, err := r.Get("auth.login")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, login.Window)

	// callers get their own copy
	policies[0].Limit = 1
	assert.Equal(t, 100, DefaultPolicies()[0].Limit)
}
