package ratelimit

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"rate-limiter/internal/common/errors"
	"rate-limiter/internal/common/validation"
)

// RateLimitConfig is one named admission policy.
//
// Burst is the capacity of both bucket strategies and defaults to Limit.
// A Burst below Limit is accepted; keeping Burst >= Limit is the caller's call.
// RefillRate is tokens per second for the token bucket and defaults to Limit/Window.
// FailMode only matters while Enabled is false: open admits everything, closed rejects everything.
type RateLimitConfig struct {
	Key        string        `json:"key" yaml:"key" validate:"required,policy_key"`
	Strategy   Strategy      `json:"strategy" yaml:"strategy" validate:"required,strategy"`
	Tier       Tier          `json:"tier" yaml:"tier" validate:"required,tier"`
	Limit      int           `json:"limit" yaml:"limit" validate:"gt=0"`
	Window     time.Duration `json:"window" yaml:"window" validate:"gt=0"`
	Burst      int           `json:"burst,omitempty" yaml:"burst,omitempty" validate:"gte=0"`
	RefillRate float64       `json:"refill_rate,omitempty" yaml:"refill_rate,omitempty" validate:"gte=0"`
	Enabled    bool          `json:"enabled" yaml:"enabled"`
	FailMode   FailMode      `json:"fail_mode,omitempty" yaml:"fail_mode,omitempty" validate:"omitempty,fail_mode"`
}

func init() {
	v := validation.Global()
	mustRegister(v.RegisterTag("strategy", func(fl validator.FieldLevel) bool {
		return Strategy(fl.Field().String()).Valid()
	}, "field '%s' must be one of: fixed_window, sliding_window, token_bucket, leaky_bucket"))
	mustRegister(v.RegisterTag("tier", func(fl validator.FieldLevel) bool {
		return Tier(fl.Field().String()).Valid()
	}, "field '%s' must be one of: global, ip, user, api_key, endpoint"))
	mustRegister(v.RegisterTag("fail_mode", func(fl validator.FieldLevel) bool {
		return FailMode(fl.Field().String()).Valid()
	}, "field '%s' must be open or closed"))
	mustRegister(v.RegisterTag("policy_key", func(fl validator.FieldLevel) bool {
		return validPolicyKey(fl.Field().String())
	}, "field '%s' must be 1-128 characters without ':' or whitespace"))
}

func mustRegister(err error) {
	if err != nil {
		panic(err)
	}
}

// Record keys are "<policy>:<identifier>", so a policy key must not contain the separator
func validPolicyKey(key string) bool {
	if key == "" || len(key) > 128 {
		return false
	}
	return !strings.ContainsAny(key, ": \t\r\n")
}

// Validate checks cfg without modifying it
func (cfg RateLimitConfig) Validate() error {
	if err := validation.ValidateStruct(cfg); err != nil {
		return errors.ConfigError(err.Error()).WithContext("policy", cfg.Key)
	}
	return nil
}

// normalized returns cfg with every optional field resolved to its effective value
func (cfg RateLimitConfig) normalized() RateLimitConfig {
	if cfg.Burst == 0 {
		cfg.Burst = cfg.Limit
	}
	if cfg.RefillRate == 0 {
		cfg.RefillRate = float64(cfg.Limit) / cfg.Window.Seconds()
	}
	if cfg.FailMode == "" {
		cfg.FailMode = FailOpen
	}
	return cfg
}

// policy is a registered, normalized config with its compiled strategy
type policy struct {
	cfg      RateLimitConfig
	strategy strategy
	// leakRate is Limit/Window in units per second
	leakRate float64
}

func compile(cfg RateLimitConfig) (*policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	return &policy{
		cfg:      cfg,
		strategy: strategyFor(cfg.Strategy),
		leakRate: float64(cfg.Limit) / cfg.Window.Seconds(),
	}, nil
}

// capacity is the ceiling Remaining is measured against
func (p *policy) capacity() int {
	switch p.cfg.Strategy {
	case StrategyTokenBucket, StrategyLeakyBucket:
		return p.cfg.Burst
	default:
		return p.cfg.Limit
	}
}
