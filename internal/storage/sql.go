// Package storage mirrors rate limit records into SQLite or PostgreSQL.
//
// Both dialects share one table, rate_limit_records, keyed by record_key
// with the record encoded as JSON. Expiry is stored as unix nanoseconds and
// enforced on read; PurgeExpired removes expired rows.
//
// Like every durable mirror in this service the table is written behind the
// in-memory state and provides no cross-process coordination.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"rate-limiter/internal/common/errors"
	"rate-limiter/internal/store"
)

// SQLStore implements store.Store on database/sql
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ store.Store = (*SQLStore)(nil)

// NewSQLite opens (creating if needed) a SQLite database and migrates it
func NewSQLite(config *SQLiteConfig) (*SQLStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	return newSQLStore(db, DialectSQLite)
}

// NewPostgres connects through the pgx stdlib driver and migrates the schema
func NewPostgres(config *PostgresConfig) (*SQLStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}

	db, err := sql.Open("pgx", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return newSQLStore(db, DialectPostgres)
}

func newSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db, dialect: dialect, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rate_limit_records (
			record_key TEXT PRIMARY KEY,
			policy TEXT NOT NULL,
			data TEXT NOT NULL,
			expires_at BIGINT NOT NULL DEFAULT 0,
			updated_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_limit_records_policy ON rate_limit_records(policy)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_limit_records_expires ON rate_limit_records(expires_at)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Dialect reports which database the store talks to
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Get(ctx context.Context, key string) (*store.Record, bool, error) {
	var data string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT data, expires_at FROM rate_limit_records WHERE record_key = ?`), key,
	).Scan(&data, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.StoreError("get", err).WithContext("key", key)
	}
	if expiresAt != 0 && expiresAt <= s.now().UnixNano() {
		return nil, false, nil
	}

	var rec store.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, false, errors.StoreError("decode", err).WithContext("key", key)
	}
	return &rec, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, rec *store.Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.StoreError("encode", err).WithContext("key", key)
	}

	now := s.now().UnixNano()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now + int64(ttl)
	}
	policy, _, _ := store.SplitKey(key)

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO rate_limit_records (record_key, policy, data, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(record_key) DO UPDATE SET
			policy = excluded.policy,
			data = excluded.data,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`),
		key, policy, string(data), expiresAt, now,
	)
	if err != nil {
		return errors.StoreError("set", err).WithContext("key", key)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM rate_limit_records WHERE record_key = ?`), key)
	if err != nil {
		return false, errors.StoreError("delete", err).WithContext("key", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.StoreError("delete", err).WithContext("key", key)
	}
	return n > 0, nil
}

func (s *SQLStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM rate_limit_records WHERE record_key LIKE ? ESCAPE '\'`), likePrefix(prefix),
	)
	if err != nil {
		return 0, errors.StoreError("delete prefix", err).WithContext("prefix", prefix)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.StoreError("delete prefix", err).WithContext("prefix", prefix)
	}
	return int(n), nil
}

func (s *SQLStore) Scan(ctx context.Context, prefix string, fn func(key string, rec *store.Record) bool) error {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT record_key, data FROM rate_limit_records
		WHERE record_key LIKE ? ESCAPE '\' AND (expires_at = 0 OR expires_at > ?)
		ORDER BY record_key`),
		likePrefix(prefix), s.now().UnixNano(),
	)
	if err != nil {
		return errors.StoreError("scan", err).WithContext("prefix", prefix)
	}
	defer rows.Close()

	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return errors.StoreError("scan", err).WithContext("prefix", prefix)
		}
		var rec store.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		if !fn(key, &rec) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return errors.StoreError("scan", err).WithContext("prefix", prefix)
	}
	return nil
}

func (s *SQLStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM rate_limit_records WHERE expires_at = 0 OR expires_at > ?`),
		s.now().UnixNano(),
	).Scan(&n)
	if err != nil {
		return 0, errors.StoreError("count", err)
	}
	return n, nil
}

// PurgeExpired deletes rows whose TTL has passed
func (s *SQLStore) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM rate_limit_records WHERE expires_at <> 0 AND expires_at <= ?`),
		s.now().UnixNano(),
	)
	if err != nil {
		return 0, errors.StoreError("purge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.StoreError("purge", err)
	}
	return int(n), nil
}

// likePrefix escapes LIKE wildcards in prefix and appends %
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
