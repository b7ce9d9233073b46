package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"rate-limiter/internal/common/errors"
)

// Registry holds the named policies. Lookups read an immutable snapshot and
// never block; writers copy the map and swap the snapshot.
type Registry struct {
	mu       sync.Mutex // serializes writers
	policies atomic.Pointer[map[string]*policy]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	r := &Registry{}
	empty := make(map[string]*policy)
	r.policies.Store(&empty)
	return r
}

func (r *Registry) snapshot() map[string]*policy {
	return *r.policies.Load()
}

func (r *Registry) lookup(key string) (*policy, bool) {
	p, ok := r.snapshot()[key]
	return p, ok
}

// Set validates, normalizes and inserts cfg, replacing any policy with the same key
func (r *Registry) Set(cfg RateLimitConfig) error {
	p, err := compile(cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.snapshot()
	next := make(map[string]*policy, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[p.cfg.Key] = p
	r.policies.Store(&next)
	return nil
}

// Get returns the normalized config registered under key
func (r *Registry) Get(key string) (RateLimitConfig, error) {
	p, ok := r.lookup(key)
	if !ok {
		return RateLimitConfig{}, errors.NotFoundError(fmt.Sprintf("rate limit policy %s", key))
	}
	return p.cfg, nil
}

// Delete removes key and reports whether it was registered
func (r *Registry) Delete(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.snapshot()
	if _, ok := current[key]; !ok {
		return false
	}
	next := make(map[string]*policy, len(current))
	for k, v := range current {
		if k != key {
			next[k] = v
		}
	}
	r.policies.Store(&next)
	return true
}

// List returns every config sorted by key
func (r *Registry) List() []RateLimitConfig {
	current := r.snapshot()
	out := make([]RateLimitConfig, 0, len(current))
	for _, p := range current {
		out = append(out, p.cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of registered policies
func (r *Registry) Len() int {
	return len(r.snapshot())
}
