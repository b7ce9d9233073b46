package ratelimit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "rate-limiter/internal/common/errors"
	"rate-limiter/internal/common/logging"
	"rate-limiter/internal/redis"
	"rate-limiter/internal/store"
)

// blockingStore holds every Set until release is closed
type blockingStore struct {
	store.Store
	release chan struct{}
}

func (b *blockingStore) Set(ctx context.Context, key string, rec *store.Record, ttl time.Duration) error {
	<-b.release
	return b.Store.Set(ctx, key, rec, ttl)
}

func TestPersister_DropsWhenFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	inner := &blockingStore{Store: store.NewMemory(1, time.Minute), release: make(chan struct{})}
	p := newPersister(inner, 1, logging.NewNopLogger(), metrics)

	rec := &store.Record{Policy: "p", Strategy: string(StrategyFixedWindow), Count: 1}
	accepted := 0
	for i := 0; i < 3; i++ {
		if p.offer(persistOp{kind: persistSet, key: "p:a", rec: rec, ttl: time.Minute}) {
			accepted++
		}
	}

	assert.LessOrEqual(t, accepted, 2)
	assert.GreaterOrEqual(t, p.dropped.Load(), uint64(1))
	assert.Equal(t, float64(p.dropped.Load()), testutil.ToFloat64(metrics.persistDrops))

	close(inner.release)
	require.NoError(t, p.close(context.Background()))
	assert.False(t, p.offer(persistOp{kind: persistDelete, key: "p:a"}))
	assert.Equal(t, 0, p.depth())
}

// openBreakerStore refuses every write the way store.Guarded does while its breaker is open
type openBreakerStore struct {
	store.Store
}

func (openBreakerStore) Set(context.Context, string, *store.Record, time.Duration) error {
	return apperrors.UnavailableError("durable-store", errBackend)
}

func TestPersister_UnavailableStoreLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.DebugLevel, Output: &buf})
	require.NoError(t, err)

	metrics := NewMetrics(prometheus.NewRegistry())
	p := newPersister(openBreakerStore{Store: store.NewMemory(1, time.Minute)}, 4, logger, metrics)

	rec := &store.Record{Policy: "p", Strategy: string(StrategyFixedWindow), Count: 1}
	require.True(t, p.offer(persistOp{kind: persistSet, key: "p:a", rec: rec, ttl: time.Minute}))
	require.NoError(t, p.close(context.Background()))

	assert.Equal(t, uint64(1), p.failures.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.persistFailures))
	assert.Contains(t, buf.String(), "Durable store unavailable")
	assert.NotContains(t, buf.String(), "Durable rate limit write failed")
}

func TestEngine_RedisMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(&redis.Config{Address: mr.Addr(), KeyPrefix: "test:"})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	clock := newManualClock()
	cfg := RateLimitConfig{Key: "api.general", Strategy: StrategySlidingWindow, Tier: TierIP, Limit: 3, Window: time.Minute, Enabled: true}

	e := NewEngine(WithClock(clock.Now), WithLogger(logging.NewNopLogger()), WithDurableStore(client))
	mustSet(t, e, cfg)
	e.Check("api.general", "1.1.1.1", 1)
	e.Check("api.general", "1.1.1.1", 1)
	require.NoError(t, e.Close())

	assert.True(t, mr.Exists("test:api.general:1.1.1.1"))

	restored := NewEngine(WithClock(clock.Now), WithLogger(logging.NewNopLogger()), WithDurableStore(client))
	defer restored.Close()
	mustSet(t, restored, cfg)

	n, err := restored.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res := restored.Check("api.general", "1.1.1.1", 1)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	e := newTestEngine(t, newManualClock(), WithMetrics(metrics))
	mustSet(t, e, RateLimitConfig{Key: "p", Strategy: StrategyFixedWindow, Tier: TierIP, Limit: 1, Window: time.Minute, Enabled: true})

	e.Check("p", "a", 1)
	e.Check("p", "a", 1)
	e.Check("missing", "a", 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.checks.WithLabelValues("p", "fixed_window", "ip", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.checks.WithLabelValues("p", "fixed_window", "ip", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.checks.WithLabelValues("unknown", "", "", "allowed")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var records float64 = -1
	for _, mf := range families {
		if mf.GetName() == "ratelimit_records" {
			records = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 1.0, records)

	var nilMetrics *Metrics
	nilMetrics.cleanedUp(3)
	nilMetrics.persistFailed()
}
