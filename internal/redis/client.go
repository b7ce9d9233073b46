// Package redis mirrors rate limit records into Redis.
//
// Records are stored as JSON strings under "<KeyPrefix><policy>:<identifier>"
// with the record's idle horizon as TTL. The mirror is written behind the
// in-memory state and offers no cross-process atomicity: two limiter
// processes sharing one Redis each admit against their own memory and
// overwrite each other's mirror entries.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"rate-limiter/internal/common/errors"
	"rate-limiter/internal/store"
)

const (
	defaultKeyPrefix = "ratelimit:"
	scanBatch        = 500
)

type Client struct {
	rdb    *redis.Client
	config *Config
}

var _ store.Store = (*Client)(nil)

type Config struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	PoolSize  int    `json:"pool_size"`
	KeyPrefix string `json:"key_prefix"`
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaultKeyPrefix
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		rdb:    rdb,
		config: config,
	}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) key(k string) string {
	return c.config.KeyPrefix + k
}

func (c *Client) Get(ctx context.Context, key string) (*store.Record, bool, error) {
	data, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.StoreError("get", err).WithContext("key", key)
	}

	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, errors.StoreError("decode", err).WithContext("key", key)
	}
	return &rec, true, nil
}

func (c *Client) Set(ctx context.Context, key string, rec *store.Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.StoreError("encode", err).WithContext("key", key)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := c.rdb.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		return errors.StoreError("set", err).WithContext("key", key)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Del(ctx, c.key(key)).Result()
	if err != nil {
		return false, errors.StoreError("delete", err).WithContext("key", key)
	}
	return n > 0, nil
}

// DeletePrefix scans for matching keys and deletes them in batches
func (c *Client) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	iter := c.rdb.Scan(ctx, 0, c.pattern(prefix), scanBatch).Iterator()

	removed := 0
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.rdb.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return removed, errors.StoreError("delete prefix", err).WithContext("prefix", prefix)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, errors.StoreError("scan", err).WithContext("prefix", prefix)
	}
	if err := flush(); err != nil {
		return removed, errors.StoreError("delete prefix", err).WithContext("prefix", prefix)
	}
	return removed, nil
}

// Scan walks matching keys, fetching values with MGET per batch.
// Keys that expire between SCAN and MGET are skipped.
func (c *Client) Scan(ctx context.Context, prefix string, fn func(key string, rec *store.Record) bool) error {
	iter := c.rdb.Scan(ctx, 0, c.pattern(prefix), scanBatch).Iterator()

	batch := make([]string, 0, scanBatch)
	stopped := false
	visit := func() error {
		if len(batch) == 0 || stopped {
			return nil
		}
		values, err := c.rdb.MGet(ctx, batch...).Result()
		if err != nil {
			return err
		}
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			var rec store.Record
			if err := json.Unmarshal([]byte(s), &rec); err != nil {
				continue
			}
			if !fn(strings.TrimPrefix(batch[i], c.config.KeyPrefix), &rec) {
				stopped = true
				break
			}
		}
		batch = batch[:0]
		return nil
	}

	for !stopped && iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := visit(); err != nil {
				return errors.StoreError("scan", err).WithContext("prefix", prefix)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return errors.StoreError("scan", err).WithContext("prefix", prefix)
	}
	if err := visit(); err != nil {
		return errors.StoreError("scan", err).WithContext("prefix", prefix)
	}
	return nil
}

// Len counts keys under the configured prefix
func (c *Client) Len(ctx context.Context) (int, error) {
	iter := c.rdb.Scan(ctx, 0, c.pattern(""), scanBatch).Iterator()
	n := 0
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return n, errors.StoreError("scan", err)
	}
	return n, nil
}

func (c *Client) pattern(prefix string) string {
	return escapeGlob(c.config.KeyPrefix+prefix) + "*"
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
