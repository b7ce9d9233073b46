package store

import (
	"context"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	gocache "github.com/patrickmn/go-cache"
)

const (
	// DefaultShards is the shard count used when a non-positive count is requested
	DefaultShards = 16
	// DefaultSweepInterval is how often each shard evicts expired records
	DefaultSweepInterval = time.Minute
)

// Memory is an in-process Store split into go-cache shards selected by key hash,
// so operations on keys in different shards never contend on the same mutex.
type Memory struct {
	shards []*gocache.Cache
	mask   uint64
}

var _ Store = (*Memory)(nil)

// NewMemory creates a sharded in-memory store. shards is rounded up to a power of two.
func NewMemory(shards int, sweepInterval time.Duration) *Memory {
	if shards <= 0 {
		shards = DefaultShards
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	size := 1
	for size < shards {
		size <<= 1
	}

	m := &Memory{
		shards: make([]*gocache.Cache, size),
		mask:   uint64(size - 1),
	}
	for i := range m.shards {
		m.shards[i] = gocache.New(gocache.NoExpiration, sweepInterval)
	}
	return m
}

func (m *Memory) shard(key string) *gocache.Cache {
	return m.shards[xxhash.Sum64String(key)&m.mask]
}

func (m *Memory) Get(ctx context.Context, key string) (*Record, bool, error) {
	v, ok := m.shard(key).Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.(*Record), true, nil
}

func (m *Memory) Set(ctx context.Context, key string, rec *Record, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.shard(key).Set(key, rec, ttl)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) (bool, error) {
	c := m.shard(key)
	if _, ok := c.Get(key); !ok {
		return false, nil
	}
	c.Delete(key)
	return true, nil
}

func (m *Memory) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	removed := 0
	for _, c := range m.shards {
		if prefix == "" {
			removed += len(c.Items())
			c.Flush()
			continue
		}
		for key := range c.Items() {
			if strings.HasPrefix(key, prefix) {
				c.Delete(key)
				removed++
			}
		}
	}
	return removed, nil
}

func (m *Memory) Scan(ctx context.Context, prefix string, fn func(key string, rec *Record) bool) error {
	for _, c := range m.shards {
		if err := ctx.Err(); err != nil {
			return err
		}
		for key, item := range c.Items() {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			if !fn(key, item.Object.(*Record)) {
				return nil
			}
		}
	}
	return nil
}

// Len counts stored records. Expired records still waiting for the shard sweep are included.
func (m *Memory) Len(ctx context.Context) (int, error) {
	n := 0
	for _, c := range m.shards {
		n += c.ItemCount()
	}
	return n, nil
}

// Shards returns the number of shards
func (m *Memory) Shards() int {
	return len(m.shards)
}

func (m *Memory) Close() error {
	for _, c := range m.shards {
		c.Flush()
	}
	return nil
}
