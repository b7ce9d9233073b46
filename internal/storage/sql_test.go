package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rate-limiter/internal/store"
)

func setupSQLite(t *testing.T) *SQLStore {
	s, err := NewSQLite(&SQLiteConfig{DatabasePath: filepath.Join(t.TempDir(), "ratelimit.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// setupPostgres connects to POSTGRES_TEST_HOST when set
func setupPostgres(t *testing.T) *SQLStore {
	host := os.Getenv("POSTGRES_TEST_HOST")
	if host == "" {
		t.Skip("POSTGRES_TEST_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("POSTGRES_TEST_PORT"))
	s, err := NewPostgres(&PostgresConfig{
		Host:     host,
		Port:     port,
		Database: os.Getenv("POSTGRES_TEST_DB"),
		Username: os.Getenv("POSTGRES_TEST_USER"),
		Password: os.Getenv("POSTGRES_TEST_PASSWORD"),
		SSLMode:  "disable",
	})
	require.NoError(t, err)
	_, err = s.DeletePrefix(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStore(t *testing.T) {
	backends := map[string]func(*testing.T) *SQLStore{
		"sqlite":   setupSQLite,
		"postgres": setupPostgres,
	}

	for name, setup := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("round trip", func(t *testing.T) { testRoundTrip(t, setup(t)) })
			t.Run("upsert", func(t *testing.T) { testUpsert(t, setup(t)) })
			t.Run("expiry", func(t *testing.T) { testExpiry(t, setup(t)) })
			t.Run("prefix", func(t *testing.T) { testPrefix(t, setup(t)) })
		})
	}
}

func testRoundTrip(t *testing.T, s *SQLStore) {
	ctx := context.Background()
	rec := &store.Record{
		Policy:     "upload.files",
		Strategy:   "leaky_bucket",
		Volume:     3.5,
		LastLeak:   1700000000000000000,
		Capacity:   100,
		UpdatedAt:  1700000000000000000,
		Timestamps: nil,
	}
	require.NoError(t, s.Set(ctx, "upload.files:user-1", rec, time.Hour))

	got, ok, err := s.Get(ctx, "upload.files:user-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)

	_, ok, err = s.Get(ctx, "upload.files:user-2")
	require.NoError(t, err)
	assert.False(t, ok)

	existed, err := s.Delete(ctx, "upload.files:user-1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Delete(ctx, "upload.files:user-1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func testUpsert(t *testing.T, s *SQLStore) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "auth.login:1.1.1.1", &store.Record{Count: 1}, time.Hour))
	require.NoError(t, s.Set(ctx, "auth.login:1.1.1.1", &store.Record{Count: 2}, time.Hour))

	got, ok, err := s.Get(ctx, "auth.login:1.1.1.1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.Count)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testExpiry(t *testing.T, s *SQLStore) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "p:short", &store.Record{Count: 1}, time.Minute))
	require.NoError(t, s.Set(ctx, "p:long", &store.Record{Count: 1}, time.Hour))
	require.NoError(t, s.Set(ctx, "p:forever", &store.Record{Count: 1}, 0))

	now = now.Add(2 * time.Minute)

	_, ok, err := s.Get(ctx, "p:short")
	require.NoError(t, err)
	assert.False(t, ok, "expired rows read as absent")

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	purged, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	removed, err := s.DeletePrefix(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

func testPrefix(t *testing.T, s *SQLStore) {
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Set(ctx, store.Key("auth.password_reset", fmt.Sprint(i)), &store.Record{Policy: "auth.password_reset"}, time.Hour))
	}
	// "_" must not act as a wildcard: this key would match an unescaped "auth.password_reset:" pattern
	require.NoError(t, s.Set(ctx, "auth.passwordXreset:0", &store.Record{Policy: "auth.passwordXreset"}, time.Hour))
	require.NoError(t, s.Set(ctx, store.Key("auth.login", "0"), &store.Record{Policy: "auth.login"}, time.Hour))

	var keys []string
	require.NoError(t, s.Scan(ctx, store.PolicyPrefix("auth.password_reset"), func(key string, rec *store.Record) bool {
		assert.Equal(t, "auth.password_reset", rec.Policy)
		keys = append(keys, key)
		return true
	}))
	assert.Equal(t, []string{
		"auth.password_reset:0", "auth.password_reset:1", "auth.password_reset:2",
		"auth.password_reset:3", "auth.password_reset:4",
	}, keys)

	visited := 0
	require.NoError(t, s.Scan(ctx, "auth.", func(string, *store.Record) bool {
		visited++
		return visited < 2
	}))
	assert.Equal(t, 2, visited)

	removed, err := s.DeletePrefix(ctx, store.PolicyPrefix("auth.password_reset"))
	require.NoError(t, err)
	assert.Equal(t, 5, removed)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b > $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b > ?"))

	lite := &SQLStore{dialect: DialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, `auth.password\_reset:%`, likePrefix("auth.password_reset:"))
	assert.Equal(t, `100\%:%`, likePrefix("100%:"))
	assert.Equal(t, "%", likePrefix(""))
}

func TestConfigValidation(t *testing.T) {
	assert.Error(t, (&SQLiteConfig{}).Validate())

	pg := &PostgresConfig{Host: "db", Database: "limits", Username: "svc"}
	require.NoError(t, pg.Validate())
	assert.Equal(t, 5432, pg.Port)
	assert.Equal(t, "postgres://svc:@db:5432/limits?sslmode=prefer", pg.ConnectionString())

	assert.Error(t, (&PostgresConfig{Database: "x", Username: "y"}).Validate())
}
