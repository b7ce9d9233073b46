package ratelimit

import "time"

// DefaultPolicies returns the built-in policy set. Each call returns fresh values.
func DefaultPolicies() []RateLimitConfig {
	return []RateLimitConfig{
		{Key: "api.general", Strategy: StrategySlidingWindow, Tier: TierIP, Limit: 100, Window: time.Minute, Enabled: true},
		{Key: "forms.submission", Strategy: StrategyFixedWindow, Tier: TierIP, Limit: 5, Window: time.Minute, Enabled: true},
		{Key: "search.query", Strategy: StrategyTokenBucket, Tier: TierIP, Limit: 60, Window: time.Minute, Burst: 20, Enabled: true},

		// authentication
		{Key: "auth.login", Strategy: StrategyFixedWindow, Tier: TierIP, Limit: 5, Window: 15 * time.Minute, Enabled: true},
		{Key: "auth.register", Strategy: StrategyFixedWindow, Tier: TierIP, Limit: 3, Window: time.Hour, Enabled: true},
		{Key: "auth.password_reset", Strategy: StrategyFixedWindow, Tier: TierIP, Limit: 3, Window: time.Hour, Enabled: true},

		{Key: "admin.content_create", Strategy: StrategySlidingWindow, Tier: TierUser, Limit: 50, Window: time.Hour, Enabled: true},
		{Key: "admin.bulk_operations", Strategy: StrategyTokenBucket, Tier: TierUser, Limit: 10, Window: time.Hour, Burst: 5, Enabled: true},

		{Key: "public.newsletter", Strategy: StrategyFixedWindow, Tier: TierIP, Limit: 3, Window: 24 * time.Hour, Enabled: true},
		{Key: "public.contact", Strategy: StrategySlidingWindow, Tier: TierIP, Limit: 5, Window: time.Hour, Enabled: true},

		{Key: "upload.files", Strategy: StrategyLeakyBucket, Tier: TierUser, Limit: 100, Window: time.Hour, Enabled: true},
		{Key: "security.suspicious", Strategy: StrategyFixedWindow, Tier: TierIP, Limit: 10, Window: time.Hour, Enabled: true, FailMode: FailClosed},
	}
}
