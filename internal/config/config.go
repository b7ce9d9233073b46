// Package config provides configuration management for the rate limiter service.
// It loads configuration from environment variables with sensible defaults and
// validates it so the service refuses to start with unsafe settings.
//
// The package selects where rate limit records are mirrored (nothing, Redis,
// SQLite or PostgreSQL), how the in-memory engine is sized, and how often idle
// records are cleaned up.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FILE: Log file path; logs go to stdout when empty
//   - POLICY_FILE: YAML file with policies that override or extend the built-in set
//   - TLS_CERT_FILE, TLS_KEY_FILE: Serve HTTPS when both are set
//
// Engine:
//   - MEMORY_SHARDS: In-memory store shard count (default: 16)
//   - LOCK_STRIPES: Number of per-key lock stripes (default: 1024)
//   - CLEANUP_SCHEDULE: Cron spec for idle record cleanup (default: @every 1m)
//   - UNKNOWN_POLICY_MODE: "open" or "closed" for checks against unknown policies (default: open)
//   - PERSIST_QUEUE_SIZE: Durable write-behind queue size (default: 4096)
//   - RESTORE_ON_START: Load durable records into memory at startup (default: true)
//
// Durable Store:
//   - STORE_TYPE: "memory", "redis", "sqlite" or "postgres" (default: memory)
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//   - REDIS_KEY_PREFIX: Prefix of every record key (default: ratelimit:)
//   - DATABASE_PATH: SQLite database file path (default: ./rate_limiter.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER,
//     POSTGRES_PASSWORD, POSTGRES_SSL_MODE: PostgreSQL connection
//
// Security:
//   - JWT_SECRET: HS256 secret used to read the user id from bearer tokens.
//     Optional; when set it must be at least 32 characters.
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"rate-limiter/internal/common/validation"
)

// Store types accepted by STORE_TYPE
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds all configuration values for the rate limiter service.
// Numeric settings are kept as strings, as read from the environment, and
// checked by Validate; the typed accessors assume a validated Config.
type Config struct {
	// Application settings
	Port       string // Server port number
	LogLevel   string // Logging level (debug, info, warn, error)
	LogFile    string // Log file path, stdout when empty
	PolicyFile string // Optional YAML policy file

	TLSCertFile string
	TLSKeyFile  string

	// Engine settings
	MemoryShards      string
	LockStripes       string
	CleanupSchedule   string
	UnknownPolicyMode string
	PersistQueueSize  string
	RestoreOnStart    bool

	// Durable store selection
	StoreType string

	// Redis configuration
	RedisAddress   string
	RedisPassword  string
	RedisDB        string
	RedisPoolSize  string
	RedisKeyPrefix string

	// SQLite configuration
	DatabasePath string

	// PostgreSQL configuration
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// JWT secret for reading the user id of bearer tokens
	JWTSecret string
}

// Load creates a new Config with values from environment variables, falling
// back to defaults for anything unset. It does not validate.
func Load() *Config {
	return &Config{
		Port:       getEnv("PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFile:    getEnv("LOG_FILE", ""),
		PolicyFile: getEnv("POLICY_FILE", ""),

		TLSCertFile: getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:  getEnv("TLS_KEY_FILE", ""),

		MemoryShards:      getEnv("MEMORY_SHARDS", "16"),
		LockStripes:       getEnv("LOCK_STRIPES", "1024"),
		CleanupSchedule:   getEnv("CLEANUP_SCHEDULE", "@every 1m"),
		UnknownPolicyMode: getEnv("UNKNOWN_POLICY_MODE", "open"),
		PersistQueueSize:  getEnv("PERSIST_QUEUE_SIZE", "4096"),
		RestoreOnStart:    getBoolEnv("RESTORE_ON_START", true),

		StoreType: strings.ToLower(getEnv("STORE_TYPE", StoreMemory)),

		RedisAddress:   getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnv("REDIS_DB", "0"),
		RedisPoolSize:  getEnv("REDIS_POOL_SIZE", "10"),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "ratelimit:"),

		DatabasePath: getEnv("DATABASE_PATH", "./rate_limiter.db"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "rate_limiter"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		JWTSecret: getEnv("JWT_SECRET", ""),
	}
}

// getEnv retrieves an environment variable value or returns a default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv accepts the values strconv.ParseBool does; anything else yields defaultValue
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// intInRange reports a FluentValidator error unless value parses to an int in [min, max]
func intInRange(value string, min, max int, name string) func() error {
	return func() error {
		n, err := strconv.Atoi(value)
		if err != nil || n < min || n > max {
			return fmt.Errorf("%s must be a number between %d and %d", name, min, max)
		}
		return nil
	}
}

// Validate checks every setting and reports all problems at once.
//
// It checks:
//   - Field formats (ports, counts, cron schedule)
//   - The store type and the settings that store needs
//   - JWT secret length when a secret is given
func (c *Config) Validate() error {
	v := validation.NewFluentValidator()

	v.ValidateIf(true, intInRange(c.Port, 1, 65535, "PORT")).
		RequireOneOf(strings.ToLower(c.LogLevel), []string{"debug", "info", "warn", "warning", "error"}, "LOG_LEVEL").
		ValidateIf(true, intInRange(c.MemoryShards, 1, 4096, "MEMORY_SHARDS")).
		ValidateIf(true, intInRange(c.LockStripes, 1, 1<<20, "LOCK_STRIPES")).
		ValidateIf(true, intInRange(c.PersistQueueSize, 1, 1<<24, "PERSIST_QUEUE_SIZE")).
		RequireTag(c.CleanupSchedule, "cron_expression", "CLEANUP_SCHEDULE").
		RequireOneOf(c.UnknownPolicyMode, []string{"open", "closed"}, "UNKNOWN_POLICY_MODE").
		RequireOneOf(c.StoreType, []string{StoreMemory, StoreRedis, StoreSQLite, StorePostgres}, "STORE_TYPE")

	switch c.StoreType {
	case StoreRedis:
		v.RequireString(c.RedisAddress, "REDIS_ADDRESS").
			ValidateIf(true, intInRange(c.RedisDB, 0, 15, "REDIS_DB")).
			ValidateIf(true, intInRange(c.RedisPoolSize, 1, 10000, "REDIS_POOL_SIZE"))
	case StoreSQLite:
		v.RequireString(c.DatabasePath, "DATABASE_PATH")
	case StorePostgres:
		v.RequireString(c.PostgresHost, "POSTGRES_HOST").
			RequireString(c.PostgresDB, "POSTGRES_DB").
			RequireString(c.PostgresUser, "POSTGRES_USER").
			ValidateIf(true, intInRange(c.PostgresPort, 1, 65535, "POSTGRES_PORT"))
	}

	v.ValidateIf((c.TLSCertFile == "") != (c.TLSKeyFile == ""), func() error {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	})

	v.ValidateIf(c.JWTSecret != "", func() error {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long when set")
		}
		return nil
	})

	return v.Error()
}

// Addr is the listen address of the HTTP server
func (c *Config) Addr() string {
	return ":" + c.Port
}

// DurableStore reports whether records are mirrored outside the process
func (c *Config) DurableStore() bool {
	return c.StoreType != StoreMemory
}

func (c *Config) MemoryShardCount() int    { return atoi(c.MemoryShards) }
func (c *Config) LockStripeCount() int     { return atoi(c.LockStripes) }
func (c *Config) PersistQueueLength() int  { return atoi(c.PersistQueueSize) }
func (c *Config) RedisDBNumber() int       { return atoi(c.RedisDB) }
func (c *Config) RedisPoolSizeNumber() int { return atoi(c.RedisPoolSize) }
func (c *Config) PostgresPortNumber() int  { return atoi(c.PostgresPort) }

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
