package ratelimit

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rate-limiter/internal/common/errors"
)

// Duration accepts either a Go duration string ("90s", "1h") or a bare number of seconds
type Duration time.Duration

func parseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return Duration(d), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	parsed, err := parseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = parsed
	return nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(v * float64(time.Second))
		return nil
	case string:
		parsed, err := parseDuration(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
}

// MarshalJSON writes the duration as seconds
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).Seconds())
}

// PolicySpec is the file and API form of a policy
type PolicySpec struct {
	Key        string   `json:"key" yaml:"key"`
	Strategy   Strategy `json:"strategy" yaml:"strategy"`
	Tier       Tier     `json:"tier" yaml:"tier"`
	Limit      int      `json:"limit" yaml:"limit"`
	Window     Duration `json:"window" yaml:"window"`
	Burst      int      `json:"burst,omitempty" yaml:"burst,omitempty"`
	RefillRate float64  `json:"refill_rate,omitempty" yaml:"refill_rate,omitempty"`
	// Enabled defaults to true when omitted
	Enabled  *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	FailMode FailMode `json:"fail_mode,omitempty" yaml:"fail_mode,omitempty"`
}

// Config converts the spec to a RateLimitConfig. It does not validate.
func (s PolicySpec) Config() RateLimitConfig {
	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}
	return RateLimitConfig{
		Key:        s.Key,
		Strategy:   s.Strategy,
		Tier:       s.Tier,
		Limit:      s.Limit,
		Window:     time.Duration(s.Window),
		Burst:      s.Burst,
		RefillRate: s.RefillRate,
		Enabled:    enabled,
		FailMode:   s.FailMode,
	}
}

// SpecFromConfig is the inverse of PolicySpec.Config
func SpecFromConfig(cfg RateLimitConfig) PolicySpec {
	enabled := cfg.Enabled
	return PolicySpec{
		Key:        cfg.Key,
		Strategy:   cfg.Strategy,
		Tier:       cfg.Tier,
		Limit:      cfg.Limit,
		Window:     Duration(cfg.Window),
		Burst:      cfg.Burst,
		RefillRate: cfg.RefillRate,
		Enabled:    &enabled,
		FailMode:   cfg.FailMode,
	}
}

type policyFile struct {
	Policies []PolicySpec `yaml:"policies"`
}

// ParsePolicies decodes a YAML policy document and validates every entry
func ParsePolicies(data []byte) ([]RateLimitConfig, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.ConfigError("invalid policy file").WithContext("error", err.Error())
	}

	seen := make(map[string]struct{}, len(file.Policies))
	configs := make([]RateLimitConfig, 0, len(file.Policies))
	for i, spec := range file.Policies {
		cfg := spec.Config()
		if err := cfg.Validate(); err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("policy %d: %v", i, err))
		}
		if _, dup := seen[cfg.Key]; dup {
			return nil, errors.ConfigError(fmt.Sprintf("policy %s is defined twice", cfg.Key))
		}
		seen[cfg.Key] = struct{}{}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// LoadPolicies reads a YAML policy file:
//
//	policies:
//	  - key: auth.login
//	    strategy: fixed_window
//	    tier: ip
//	    limit: 5
//	    window: 15m
func LoadPolicies(path string) ([]RateLimitConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigError("cannot read policy file").WithContext("path", path).WithContext("error", err.Error())
	}
	return ParsePolicies(data)
}
