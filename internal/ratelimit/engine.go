// Package ratelimit decides whether a unit of work is admitted under a named
// policy, using one of four algorithms: fixed window, sliding window, token
// bucket or leaky bucket. Policies key their state by a tier (global, client
// IP, user, API key or IP plus endpoint).
//
// State lives in process memory. An Engine may mirror it to a durable store
// (Redis, SQLite, PostgreSQL) for warm restarts, but the mirror is written
// behind the admission decision and is never consulted on the hot path. Two
// processes sharing a durable store do NOT share limits: each admits against
// its own memory. Exact cross-node limits are not provided.
//
// Example:
//
//	engine := ratelimit.NewEngine(ratelimit.WithLogger(logger))
//	defer engine.Close()
//
//	for _, cfg := range ratelimit.DefaultPolicies() {
//		engine.SetConfig(cfg)
//	}
//
//	result := engine.CheckRequest("auth.login", ratelimit.HTTPRequest(r), "", 1)
//	ratelimit.ApplyHeaders(w.Header(), result)
//	if !result.Allowed {
//		w.WriteHeader(http.StatusTooManyRequests)
//		return
//	}
package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"rate-limiter/internal/common/errors"
	"rate-limiter/internal/common/logging"
	"rate-limiter/internal/locks"
	"rate-limiter/internal/store"
)

const (
	// ttlSlack keeps a record in the store a little past its idle horizon
	ttlSlack = time.Second
	// unknownPolicyRetry is the Retry-After answered for missing policies in closed mode
	unknownPolicyRetry = time.Minute
)

// Engine evaluates admission checks. It is safe for concurrent use.
type Engine struct {
	registry *Registry
	store    store.Store
	durable  store.Store
	locks    *locks.Striped
	now      func() time.Time
	logger   logging.Logger
	metrics  *Metrics

	unknownMode      FailMode
	lockStripes      int
	persistQueueSize int
	persister        *persister

	checks   atomic.Uint64
	allowed  atomic.Uint64
	rejected atomic.Uint64

	unknownWarn rate.Sometimes
	storeWarn   rate.Sometimes

	janitorMu sync.Mutex
	janitor   *Janitor
	closeOnce sync.Once
}

// Option configures an Engine
type Option func(*Engine)

// WithStore replaces the in-memory record store
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithDurableStore mirrors every state change to s through a bounded write-behind queue
func WithDurableStore(s store.Store) Option {
	return func(e *Engine) { e.durable = s }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLockStripes sets how many mutexes guard record keys
func WithLockStripes(n int) Option {
	return func(e *Engine) { e.lockStripes = n }
}

// WithUnknownPolicyMode decides what checks against unregistered policies answer.
// The default, FailOpen, admits them.
func WithUnknownPolicyMode(mode FailMode) Option {
	return func(e *Engine) { e.unknownMode = mode }
}

func WithPersistQueueSize(n int) Option {
	return func(e *Engine) { e.persistQueueSize = n }
}

// WithRegistry shares an existing policy registry
func WithRegistry(r *Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// NewEngine creates an engine with an empty registry and a sharded in-memory store
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:         time.Now,
		unknownMode: FailOpen,
		unknownWarn: rate.Sometimes{Interval: 30 * time.Second},
		storeWarn:   rate.Sometimes{Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.store == nil {
		e.store = store.NewMemory(store.DefaultShards, store.DefaultSweepInterval)
	}
	if e.logger == nil {
		e.logger = logging.GetGlobalLogger()
	}
	if !e.unknownMode.Valid() {
		e.unknownMode = FailOpen
	}
	e.locks = locks.NewStriped(e.lockStripes)

	if e.durable != nil {
		e.persister = newPersister(e.durable, e.persistQueueSize, e.logger, e.metrics)
	}
	e.metrics.registerRecordGauge(func() float64 {
		n, _ := e.store.Len(context.Background())
		return float64(n)
	})

	return e
}

// Registry returns the policy registry backing the engine
func (e *Engine) Registry() *Registry {
	return e.registry
}

// SetConfig registers or replaces a policy
func (e *Engine) SetConfig(cfg RateLimitConfig) error {
	return e.registry.Set(cfg)
}

// GetConfig returns the normalized policy registered under key
func (e *Engine) GetConfig(key string) (RateLimitConfig, error) {
	return e.registry.Get(key)
}

// Configs lists every registered policy sorted by key
func (e *Engine) Configs() []RateLimitConfig {
	return e.registry.List()
}

// DeleteConfig unregisters a policy and removes its records
func (e *Engine) DeleteConfig(ctx context.Context, key string) error {
	if !e.registry.Delete(key) {
		return errors.NotFoundError(fmt.Sprintf("rate limit policy %s", key))
	}
	_, err := e.resetPolicy(ctx, key)
	return err
}

// Check admits weight units for identifier under the policy configKey.
// A weight below one counts as one. Check never blocks on I/O.
func (e *Engine) Check(configKey, identifier string, weight int) Result {
	p, ok := e.registry.lookup(configKey)
	return e.check(configKey, p, ok, identifier, weight)
}

// CheckRequest resolves the identifier from req through the policy's tier and checks it.
// userID feeds the user tier; pass "" for anonymous requests.
func (e *Engine) CheckRequest(configKey string, req RequestLike, userID string, weight int) Result {
	p, ok := e.registry.lookup(configKey)
	var identifier string
	if ok {
		identifier = ResolveIdentifier(req, p.cfg.Tier, userID)
	} else {
		identifier = ClientIP(req)
	}
	return e.check(configKey, p, ok, identifier, weight)
}

func (e *Engine) check(configKey string, p *policy, ok bool, identifier string, weight int) Result {
	e.checks.Add(1)
	now := e.now()

	var res Result
	switch {
	case !ok:
		res = e.unknownPolicy(configKey, identifier, now)
		e.metrics.observeCheck("unknown", "", "", resultLabel(res))
	case !p.cfg.Enabled:
		res = e.disabledPolicy(p, identifier, now)
		e.metrics.observeCheck(p.cfg.Key, p.cfg.Strategy, p.cfg.Tier, "disabled")
	default:
		if weight < 1 {
			weight = 1
		}
		res = e.admit(p, identifier, weight, now)
		e.metrics.observeCheck(p.cfg.Key, p.cfg.Strategy, p.cfg.Tier, resultLabel(res))
	}

	if res.Allowed {
		e.allowed.Add(1)
	} else {
		e.rejected.Add(1)
	}
	return res
}

func resultLabel(res Result) string {
	if res.Allowed {
		return "allowed"
	}
	return "rejected"
}

// admit runs the strategy under the key's stripe lock
func (e *Engine) admit(p *policy, identifier string, weight int, now time.Time) Result {
	return e.result(p, identifier, e.apply(p, store.Key(p.cfg.Key, identifier), weight, now))
}

func (e *Engine) apply(p *policy, key string, weight int, now time.Time) outcome {
	ctx := context.Background()

	unlock := e.locks.Lock(key)
	defer unlock()

	prev := e.load(ctx, p, key)
	if weight > p.capacity() {
		return oversized(p, prev, now)
	}

	next, out := p.strategy.check(p, prev, now, weight)
	if next != nil {
		ttl := e.ttl(p, next, now)
		if err := e.store.Set(ctx, key, next, ttl); err != nil {
			e.warnStore("set", key, err)
		}
		if e.persister != nil {
			e.persister.offer(persistOp{kind: persistSet, key: key, rec: next, ttl: ttl})
		}
	}
	return out
}

// load fetches the current record, discarding one left behind by a different strategy
func (e *Engine) load(ctx context.Context, p *policy, key string) *store.Record {
	prev, ok, err := e.store.Get(ctx, key)
	if err != nil {
		e.warnStore("get", key, err)
		return nil
	}
	if !ok || prev.Strategy != string(p.cfg.Strategy) {
		return nil
	}
	return prev
}

func (e *Engine) warnStore(op, key string, err error) {
	e.storeWarn.Do(func() {
		e.logger.Error("Rate limit store operation failed", err,
			logging.Field{Key: "operation", Value: op},
			logging.Field{Key: "key", Value: key},
		)
	})
}

// ttl is the record's idle horizon plus slack, so eviction never changes a decision
func (e *Engine) ttl(p *policy, rec *store.Record, now time.Time) time.Duration {
	ttl := p.strategy.idleAt(p, rec).Sub(now)
	if ttl < 0 {
		ttl = 0
	}
	return ttl + ttlSlack
}

func (e *Engine) result(p *policy, identifier string, out outcome) Result {
	res := Result{
		Allowed:    out.allowed,
		Limit:      p.capacity(),
		Remaining:  out.remaining,
		ResetTime:  out.reset,
		Strategy:   p.cfg.Strategy,
		Tier:       p.cfg.Tier,
		Identifier: identifier,
		Policy:     p.cfg.Key,
		Metadata:   out.metadata,
	}
	if !out.allowed {
		res.RetryAfter = out.retryAfter
	}
	return res
}

func (e *Engine) unknownPolicy(configKey, identifier string, now time.Time) Result {
	e.unknownWarn.Do(func() {
		e.logger.Warn("Rate limit policy not found",
			logging.Field{Key: "policy", Value: configKey},
			logging.Field{Key: "mode", Value: string(e.unknownMode)},
		)
	})

	if e.unknownMode == FailClosed {
		return Result{
			Allowed:    false,
			Limit:      0,
			Remaining:  0,
			ResetTime:  now.Add(unknownPolicyRetry),
			RetryAfter: ceilSeconds(unknownPolicyRetry),
			Identifier: identifier,
			Policy:     configKey,
		}
	}
	return Result{
		Allowed:    true,
		Limit:      UnknownPolicyRemaining,
		Remaining:  UnknownPolicyRemaining,
		ResetTime:  now,
		Identifier: identifier,
		Policy:     configKey,
	}
}

func (e *Engine) disabledPolicy(p *policy, identifier string, now time.Time) Result {
	res := Result{
		Allowed:    true,
		Limit:      p.capacity(),
		Remaining:  p.capacity(),
		ResetTime:  now.Add(p.cfg.Window),
		Strategy:   p.cfg.Strategy,
		Tier:       p.cfg.Tier,
		Identifier: identifier,
		Policy:     p.cfg.Key,
	}
	if p.cfg.FailMode == FailClosed {
		res.Allowed = false
		res.Remaining = 0
		res.RetryAfter = ceilSeconds(p.cfg.Window)
	}
	return res
}

// GetStatus projects the identifier's state to now without changing it
func (e *Engine) GetStatus(configKey, identifier string) (Status, error) {
	p, ok := e.registry.lookup(configKey)
	if !ok {
		return Status{}, errors.NotFoundError(fmt.Sprintf("rate limit policy %s", configKey))
	}

	key := store.Key(p.cfg.Key, identifier)
	now := e.now()

	var prev *store.Record
	e.locks.With(key, func() {
		prev = e.load(context.Background(), p, key)
	})

	out := p.strategy.peek(p, prev, now)
	return Status{
		Policy:     p.cfg.Key,
		Identifier: identifier,
		Strategy:   p.cfg.Strategy,
		Tier:       p.cfg.Tier,
		Enabled:    p.cfg.Enabled,
		Tracked:    prev != nil,
		Limit:      p.capacity(),
		Remaining:  out.remaining,
		ResetTime:  out.reset,
		Metadata:   out.metadata,
	}, nil
}

// Reset removes the records of one identifier, or of every identifier when
// identifier is empty, and returns how many in-memory records were removed.
// The durable mirror is cleared best-effort.
func (e *Engine) Reset(ctx context.Context, configKey, identifier string) (int, error) {
	if _, ok := e.registry.lookup(configKey); !ok {
		return 0, errors.NotFoundError(fmt.Sprintf("rate limit policy %s", configKey))
	}
	if identifier == "" {
		return e.resetPolicy(ctx, configKey)
	}

	key := store.Key(configKey, identifier)
	var (
		existed, queued bool
		err             error
	)
	e.locks.With(key, func() {
		existed, err = e.store.Delete(ctx, key)
		queued = e.persister == nil || e.persister.offer(persistOp{kind: persistDelete, key: key})
	})

	if err != nil {
		return 0, errors.StoreError("delete", err).WithContext("key", key)
	}
	if !queued {
		e.durableFallback(ctx, persistOp{kind: persistDelete, key: key})
	}
	if existed {
		return 1, nil
	}
	return 0, nil
}

func (e *Engine) resetPolicy(ctx context.Context, configKey string) (int, error) {
	prefix := store.PolicyPrefix(configKey)

	var keys []string
	if err := e.store.Scan(ctx, prefix, func(key string, _ *store.Record) bool {
		keys = append(keys, key)
		return true
	}); err != nil {
		return 0, errors.StoreError("scan", err).WithContext("policy", configKey)
	}

	removed := 0
	for _, key := range keys {
		var (
			existed bool
			err     error
		)
		e.locks.With(key, func() {
			existed, err = e.store.Delete(ctx, key)
		})
		if err != nil {
			return removed, errors.StoreError("delete", err).WithContext("key", key)
		}
		if existed {
			removed++
		}
	}

	op := persistOp{kind: persistDeletePrefix, key: prefix}
	if e.persister != nil && !e.persister.offer(op) {
		e.durableFallback(ctx, op)
	}

	e.logger.Info("Rate limit policy reset",
		logging.Field{Key: "policy", Value: configKey},
		logging.Field{Key: "removed", Value: removed},
	)
	return removed, nil
}

// durableFallback applies a delete directly when the queue refused it
func (e *Engine) durableFallback(ctx context.Context, op persistOp) {
	var err error
	switch op.kind {
	case persistDelete:
		_, err = e.durable.Delete(ctx, op.key)
	case persistDeletePrefix:
		_, err = e.durable.DeletePrefix(ctx, op.key)
	}
	if err != nil {
		e.logger.Error("Durable rate limit delete failed", err, logging.Field{Key: "key", Value: op.key})
	}
}

// Clear removes every record
func (e *Engine) Clear(ctx context.Context) (int, error) {
	n, err := e.store.DeletePrefix(ctx, "")
	if err != nil {
		return n, errors.StoreError("clear", err)
	}

	op := persistOp{kind: persistDeletePrefix, key: ""}
	if e.persister != nil && !e.persister.offer(op) {
		e.durableFallback(ctx, op)
	}

	e.logger.Info("Rate limit records cleared", logging.Field{Key: "removed", Value: n})
	return n, nil
}

// idle reports whether rec can be dropped without changing any future decision
func (e *Engine) idle(rec *store.Record, now time.Time) bool {
	p, ok := e.registry.lookup(rec.Policy)
	if !ok || rec.Strategy != string(p.cfg.Strategy) {
		return true
	}
	return !now.Before(p.strategy.idleAt(p, rec))
}

// Cleanup removes idle and orphaned records. Each removal re-checks the record
// under its stripe lock, so a record updated meanwhile survives.
func (e *Engine) Cleanup(ctx context.Context) (int, error) {
	now := e.now()

	var candidates []string
	if err := e.store.Scan(ctx, "", func(key string, rec *store.Record) bool {
		if e.idle(rec, now) {
			candidates = append(candidates, key)
		}
		return true
	}); err != nil {
		return 0, errors.StoreError("scan", err)
	}

	removed := 0
	for _, key := range candidates {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		e.locks.With(key, func() {
			rec, ok, err := e.store.Get(ctx, key)
			if err == nil && ok && e.idle(rec, e.now()) {
				if existed, derr := e.store.Delete(ctx, key); derr == nil && existed {
					removed++
				}
			}
		})
	}
	e.metrics.cleanedUp(removed)

	if purger, ok := e.durable.(store.Purger); ok {
		purged, err := purger.PurgeExpired(ctx)
		if err != nil {
			e.logger.Error("Durable rate limit purge failed", err)
		} else if purged > 0 {
			e.logger.Debug("Purged expired durable records", logging.Field{Key: "purged", Value: purged})
		}
	}

	if removed > 0 {
		e.logger.Debug("Rate limit cleanup finished",
			logging.Field{Key: "removed", Value: removed},
			logging.Field{Key: "candidates", Value: len(candidates)},
		)
	}
	return removed, nil
}

// Restore loads live records from the durable store into memory. Records already
// in memory win. It is meant for startup, before traffic arrives.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.durable == nil {
		return 0, nil
	}

	now := e.now()
	restored := 0
	var storeErr error
	err := e.durable.Scan(ctx, "", func(key string, rec *store.Record) bool {
		p, ok := e.registry.lookup(rec.Policy)
		if !ok || rec.Strategy != string(p.cfg.Strategy) || e.idle(rec, now) {
			return true
		}

		e.locks.With(key, func() {
			if _, exists, _ := e.store.Get(ctx, key); exists {
				return
			}
			if err := e.store.Set(ctx, key, rec, e.ttl(p, rec, now)); err != nil {
				storeErr = err
				return
			}
			restored++
		})
		return storeErr == nil
	})
	if err != nil {
		return restored, errors.StoreError("restore", err)
	}
	if storeErr != nil {
		return restored, errors.StoreError("restore", storeErr)
	}

	e.logger.Info("Restored rate limit records", logging.Field{Key: "restored", Value: restored})
	return restored, nil
}

// GetStats summarizes registered policies and traffic seen so far
func (e *Engine) GetStats() Stats {
	configs := e.registry.List()
	strategies := make(map[Strategy]struct{})
	tiers := make(map[Tier]struct{})
	enabled := 0
	for _, cfg := range configs {
		if cfg.Enabled {
			enabled++
		}
		strategies[cfg.Strategy] = struct{}{}
		tiers[cfg.Tier] = struct{}{}
	}

	size, _ := e.store.Len(context.Background())
	stats := Stats{
		TotalConfigs:   len(configs),
		EnabledConfigs: enabled,
		CacheSize:      size,
		Strategies:     make([]Strategy, 0, len(strategies)),
		Tiers:          make([]Tier, 0, len(tiers)),
		Checks:         e.checks.Load(),
		Allowed:        e.allowed.Load(),
		Rejected:       e.rejected.Load(),
	}
	for s := range strategies {
		stats.Strategies = append(stats.Strategies, s)
	}
	for t := range tiers {
		stats.Tiers = append(stats.Tiers, t)
	}
	sort.Slice(stats.Strategies, func(i, j int) bool { return stats.Strategies[i] < stats.Strategies[j] })
	sort.Slice(stats.Tiers, func(i, j int) bool { return stats.Tiers[i] < stats.Tiers[j] })

	if e.persister != nil {
		durable := map[string]any{
			"queue_depth":    e.persister.depth(),
			"write_failures": e.persister.failures.Load(),
			"writes_dropped": e.persister.dropped.Load(),
		}
		if g, ok := e.durable.(*store.Guarded); ok {
			durable["breaker"] = g.Breaker().Stats()
		}
		stats.Durable = durable
	}
	return stats
}

// StartCleanup runs Cleanup on a cron schedule until Close
func (e *Engine) StartCleanup(schedule string) error {
	e.janitorMu.Lock()
	defer e.janitorMu.Unlock()

	if e.janitor != nil {
		return errors.ConfigError("cleanup is already scheduled")
	}
	j, err := NewJanitor(e, schedule, e.logger)
	if err != nil {
		return err
	}
	j.Start()
	e.janitor = j
	return nil
}

// Close stops scheduled cleanup and flushes queued durable writes. It does not close the stores.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.janitorMu.Lock()
		if e.janitor != nil {
			e.janitor.Stop()
		}
		e.janitorMu.Unlock()

		if e.persister != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if cerr := e.persister.close(ctx); cerr != nil {
				err = errors.InternalError("timed out flushing durable writes", cerr)
			}
		}
	})
	return err
}
