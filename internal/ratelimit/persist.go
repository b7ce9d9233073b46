package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"rate-limiter/internal/common/errors"
	"rate-limiter/internal/common/logging"
	"rate-limiter/internal/store"
)

const (
	// DefaultPersistQueueSize bounds the write-behind queue
	DefaultPersistQueueSize = 4096
	persistTimeout          = 5 * time.Second
)

type persistKind int

const (
	persistSet persistKind = iota
	persistDelete
	persistDeletePrefix
)

func (k persistKind) String() string {
	switch k {
	case persistSet:
		return "set"
	case persistDelete:
		return "delete"
	default:
		return "delete_prefix"
	}
}

type persistOp struct {
	kind persistKind
	key  string
	rec  *store.Record
	ttl  time.Duration
}

// persister copies in-memory state to a durable store from a single
// goroutine. Offers never block: when the queue is full the write is dropped.
type persister struct {
	durable store.Store
	logger  logging.Logger
	metrics *Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan persistOp
	done   chan struct{}

	failures atomic.Uint64
	dropped  atomic.Uint64

	dropWarn rate.Sometimes
	failWarn rate.Sometimes
}

func newPersister(durable store.Store, size int, logger logging.Logger, metrics *Metrics) *persister {
	if size <= 0 {
		size = DefaultPersistQueueSize
	}
	p := &persister{
		durable:  durable,
		logger:   logger,
		metrics:  metrics,
		queue:    make(chan persistOp, size),
		done:     make(chan struct{}),
		dropWarn: rate.Sometimes{Interval: 10 * time.Second},
		failWarn: rate.Sometimes{Interval: 10 * time.Second},
	}
	go p.run()
	return p
}

func (p *persister) run() {
	defer close(p.done)
	for op := range p.queue {
		p.apply(op)
	}
}

func (p *persister) apply(op persistOp) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var err error
	switch op.kind {
	case persistSet:
		err = p.durable.Set(ctx, op.key, op.rec, op.ttl)
	case persistDelete:
		_, err = p.durable.Delete(ctx, op.key)
	case persistDeletePrefix:
		_, err = p.durable.DeletePrefix(ctx, op.key)
	}

	if err != nil {
		p.failures.Add(1)
		p.metrics.persistFailed()
		p.failWarn.Do(func() {
			if errors.IsType(err, errors.ErrTypeUnavailable) {
				p.logger.Warn("Durable store unavailable, dropping rate limit write",
					logging.Field{Key: "operation", Value: op.kind.String()},
					logging.Field{Key: "failures_total", Value: p.failures.Load()},
				)
				return
			}
			p.logger.Error("Durable rate limit write failed", err,
				logging.Field{Key: "operation", Value: op.kind.String()},
				logging.Field{Key: "key", Value: op.key},
				logging.Field{Key: "failures_total", Value: p.failures.Load()},
			)
		})
	}
}

// offer queues op without blocking and reports whether it was accepted
func (p *persister) offer(op persistOp) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.queue <- op:
		return true
	default:
		p.dropped.Add(1)
		p.metrics.persistDropped()
		p.dropWarn.Do(func() {
			p.logger.Warn("Durable write queue full, dropping write",
				logging.Field{Key: "operation", Value: op.kind.String()},
				logging.Field{Key: "key", Value: op.key},
				logging.Field{Key: "dropped_total", Value: p.dropped.Load()},
			)
		})
		return false
	}
}

func (p *persister) depth() int {
	return len(p.queue)
}

// close stops accepting work and waits until queued writes are applied or ctx ends
func (p *persister) close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
