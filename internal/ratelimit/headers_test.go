package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildHeaders(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   map[string]string
	}{
		{
			name: "allowed",
			result: Result{
				Allowed: true, Limit: 100, Remaining: 99,
				ResetTime: time.Unix(1700000100, 0),
				Strategy:  StrategySlidingWindow, Tier: TierIP,
			},
			want: map[string]string{
				HeaderLimit:     "100",
				HeaderRemaining: "99",
				HeaderReset:     "1700000100",
				HeaderStrategy:  "sliding_window",
				HeaderTier:      "ip",
			},
		},
		{
			name: "rejected rounds reset up",
			result: Result{
				Allowed: false, Limit: 5, Remaining: 0,
				ResetTime:  time.Unix(1700000100, 1),
				RetryAfter: 42,
				Strategy:   StrategyTokenBucket, Tier: TierUser,
			},
			want: map[string]string{
				HeaderLimit:      "5",
				HeaderRemaining:  "0",
				HeaderReset:      "1700000101",
				HeaderStrategy:   "token_bucket",
				HeaderTier:       "user",
				HeaderRetryAfter: "42",
			},
		},
		{
			name:   "unknown policy has no strategy",
			result: Result{Allowed: true, Limit: 999, Remaining: 999, ResetTime: time.Unix(10, 0)},
			want: map[string]string{
				HeaderLimit:     "999",
				HeaderRemaining: "999",
				HeaderReset:     "10",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildHeaders(tt.result))
		})
	}
}

func TestApplyHeaders(t *testing.T) {
	h := http.Header{}
	ApplyHeaders(h, Result{Allowed: false, Limit: 1, ResetTime: time.Unix(5, 0), RetryAfter: 0})

	assert.Equal(t, "1", h.Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", h.Get("Retry-After"))
}
