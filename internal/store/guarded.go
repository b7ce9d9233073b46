package store

import (
	"context"
	"time"

	"rate-limiter/internal/circuitbreaker"
)

// Guarded routes every call to a durable Store through a circuit breaker, so an
// unreachable backend fails fast instead of stalling the write-behind queue.
type Guarded struct {
	inner   Store
	breaker *circuitbreaker.Breaker
}

var _ Store = (*Guarded)(nil)

// NewGuarded wraps inner with breaker
func NewGuarded(inner Store, breaker *circuitbreaker.Breaker) *Guarded {
	return &Guarded{inner: inner, breaker: breaker}
}

// Breaker exposes the breaker for health reporting
func (g *Guarded) Breaker() *circuitbreaker.Breaker {
	return g.breaker
}

func (g *Guarded) Get(ctx context.Context, key string) (rec *Record, ok bool, err error) {
	err = g.breaker.Execute(ctx, func() error {
		var innerErr error
		rec, ok, innerErr = g.inner.Get(ctx, key)
		return innerErr
	})
	return rec, ok, err
}

func (g *Guarded) Set(ctx context.Context, key string, rec *Record, ttl time.Duration) error {
	return g.breaker.Execute(ctx, func() error {
		return g.inner.Set(ctx, key, rec, ttl)
	})
}

func (g *Guarded) Delete(ctx context.Context, key string) (existed bool, err error) {
	err = g.breaker.Execute(ctx, func() error {
		var innerErr error
		existed, innerErr = g.inner.Delete(ctx, key)
		return innerErr
	})
	return existed, err
}

func (g *Guarded) DeletePrefix(ctx context.Context, prefix string) (n int, err error) {
	err = g.breaker.Execute(ctx, func() error {
		var innerErr error
		n, innerErr = g.inner.DeletePrefix(ctx, prefix)
		return innerErr
	})
	return n, err
}

func (g *Guarded) Scan(ctx context.Context, prefix string, fn func(key string, rec *Record) bool) error {
	return g.breaker.Execute(ctx, func() error {
		return g.inner.Scan(ctx, prefix, fn)
	})
}

func (g *Guarded) Len(ctx context.Context) (n int, err error) {
	err = g.breaker.Execute(ctx, func() error {
		var innerErr error
		n, innerErr = g.inner.Len(ctx)
		return innerErr
	})
	return n, err
}

func (g *Guarded) Close() error {
	return g.inner.Close()
}

// PurgeExpired forwards to the wrapped store when it supports purging
func (g *Guarded) PurgeExpired(ctx context.Context) (n int, err error) {
	purger, ok := g.inner.(Purger)
	if !ok {
		return 0, nil
	}
	err = g.breaker.Execute(ctx, func() error {
		var innerErr error
		n, innerErr = purger.PurgeExpired(ctx)
		return innerErr
	})
	return n, err
}
