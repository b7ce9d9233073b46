package ratelimit

import (
	"encoding/json"
	"time"
)

// Strategy names an admission algorithm
type Strategy string

const (
	StrategyFixedWindow   Strategy = "fixed_window"
	StrategySlidingWindow Strategy = "sliding_window"
	StrategyTokenBucket   Strategy = "token_bucket"
	StrategyLeakyBucket   Strategy = "leaky_bucket"
)

// Strategies lists every supported algorithm
var Strategies = []Strategy{StrategyFixedWindow, StrategySlidingWindow, StrategyTokenBucket, StrategyLeakyBucket}

func (s Strategy) Valid() bool {
	for _, known := range Strategies {
		if s == known {
			return true
		}
	}
	return false
}

// Tier selects how a request is mapped to an identifier
type Tier string

const (
	TierGlobal   Tier = "global"
	TierIP       Tier = "ip"
	TierUser     Tier = "user"
	TierAPIKey   Tier = "api_key"
	TierEndpoint Tier = "endpoint"
)

// Tiers lists every supported tier
var Tiers = []Tier{TierGlobal, TierIP, TierUser, TierAPIKey, TierEndpoint}

func (t Tier) Valid() bool {
	for _, known := range Tiers {
		if t == known {
			return true
		}
	}
	return false
}

// FailMode decides what a disabled policy, or a missing one, answers
type FailMode string

const (
	FailOpen   FailMode = "open"
	FailClosed FailMode = "closed"
)

func (m FailMode) Valid() bool {
	return m == FailOpen || m == FailClosed
}

// UnknownPolicyRemaining is reported when a check names a policy that is not registered
const UnknownPolicyRemaining = 999

// Result is the outcome of one admission check. It is a value; nothing mutates it after return.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
	// RetryAfter is in whole seconds and zero when allowed
	RetryAfter int            `json:"retry_after,omitempty"`
	Strategy   Strategy       `json:"strategy,omitempty"`
	Tier       Tier           `json:"tier,omitempty"`
	Identifier string         `json:"identifier"`
	Policy     string         `json:"policy"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ResetTimeMillis returns ResetTime as unix milliseconds
func (r Result) ResetTimeMillis() int64 {
	return r.ResetTime.UnixMilli()
}

// MarshalJSON writes reset_time as unix milliseconds, the same encoding the
// rejection body uses.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	return json.Marshal(struct {
		plain
		ResetTime int64 `json:"reset_time"`
	}{plain(r), r.ResetTimeMillis()})
}

// Status is a read-only projection of one identifier's state at a point in time
type Status struct {
	Policy     string         `json:"policy"`
	Identifier string         `json:"identifier"`
	Strategy   Strategy       `json:"strategy"`
	Tier       Tier           `json:"tier"`
	Enabled    bool           `json:"enabled"`
	Tracked    bool           `json:"tracked"`
	Limit      int            `json:"limit"`
	Remaining  int            `json:"remaining"`
	ResetTime  time.Time      `json:"reset_time"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (s Status) MarshalJSON() ([]byte, error) {
	type plain Status
	return json.Marshal(struct {
		plain
		ResetTime int64 `json:"reset_time"`
	}{plain(s), s.ResetTime.UnixMilli()})
}

// Stats summarizes the engine
type Stats struct {
	TotalConfigs   int            `json:"total_configs"`
	EnabledConfigs int            `json:"enabled_configs"`
	CacheSize      int            `json:"cache_size"`
	Strategies     []Strategy     `json:"strategies"`
	Tiers          []Tier         `json:"tiers"`
	Checks         uint64         `json:"checks"`
	Allowed        uint64         `json:"allowed"`
	Rejected       uint64         `json:"rejected"`
	Durable        map[string]any `json:"durable,omitempty"`
}
