package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rate-limiter/internal/common/logging"
)

// epoch is aligned to every window used in these tests
var epoch = time.Unix(1700000040, 0)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: epoch}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestEngine(t *testing.T, clock *manualClock, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now), WithLogger(logging.NewNopLogger())}, opts...)
	e := NewEngine(opts...)
	t.Cleanup(func() { e.Close() })
	return e
}

func mustSet(t *testing.T, e *Engine, cfg RateLimitConfig) {
	t.Helper()
	require.NoError(t, e.SetConfig(cfg))
}
