package app

import (
	"fmt"

	"rate-limiter/internal/circuitbreaker"
	"rate-limiter/internal/common/logging"
	"rate-limiter/internal/config"
	"rate-limiter/internal/handlers"
	"rate-limiter/internal/redis"
	"rate-limiter/internal/storage"
	"rate-limiter/internal/store"
)

// durableBackend is what every durable store implementation offers
type durableBackend interface {
	store.Store
	handlers.HealthChecker
}

// initializeStores creates the in-memory store and, unless STORE_TYPE is memory,
// the durable mirror behind a circuit breaker
func (app *App) initializeStores() error {
	cfg := app.Config
	app.Memory = store.NewMemory(cfg.MemoryShardCount(), store.DefaultSweepInterval)
	app.closers = append(app.closers, app.Memory.Close)

	backend, err := openDurable(cfg, app.Logger)
	if err != nil {
		return err
	}
	if backend == nil {
		app.Logger.Info("Durable store: none, state lives in memory only")
		return nil
	}
	app.closers = append(app.closers, backend.Close)

	breaker := circuitbreaker.New("durable-store", circuitbreaker.StoreConfig, app.Logger)
	app.Durable = store.NewGuarded(backend, breaker)
	app.durableHealth = backend
	return nil
}

func openDurable(cfg *config.Config, logger logging.Logger) (durableBackend, error) {
	switch cfg.StoreType {
	case config.StoreRedis:
		client, err := redis.NewClient(&redis.Config{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDBNumber(),
			PoolSize:  cfg.RedisPoolSizeNumber(),
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis store: %w", err)
		}
		logger.Info("Durable store: Redis",
			logging.Field{Key: "address", Value: cfg.RedisAddress},
			logging.Field{Key: "db", Value: cfg.RedisDBNumber()},
		)
		return client, nil

	case config.StoreSQLite:
		s, err := storage.NewSQLite(&storage.SQLiteConfig{DatabasePath: cfg.DatabasePath})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		logger.Info("Durable store: SQLite", logging.Field{Key: "path", Value: cfg.DatabasePath})
		return s, nil

	case config.StorePostgres:
		s, err := storage.NewPostgres(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPortNumber(),
			Database: cfg.PostgresDB,
			Username: cfg.PostgresUser,
			Password: cfg.PostgresPassword,
			SSLMode:  cfg.PostgresSSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL store: %w", err)
		}
		logger.Info("Durable store: PostgreSQL",
			logging.Field{Key: "host", Value: cfg.PostgresHost},
			logging.Field{Key: "port", Value: cfg.PostgresPort},
			logging.Field{Key: "database", Value: cfg.PostgresDB},
		)
		return s, nil

	default:
		return nil, nil
	}
}
