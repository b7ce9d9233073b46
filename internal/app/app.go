package app

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"rate-limiter/internal/common/logging"
	"rate-limiter/internal/config"
	"rate-limiter/internal/handlers"
	"rate-limiter/internal/ratelimit"
	"rate-limiter/internal/store"
)

// App holds all the application dependencies
type App struct {
	Config  *config.Config
	Engine  *ratelimit.Engine
	Memory  *store.Memory
	Durable store.Store
	Metrics *ratelimit.Metrics
	// Registry serves /metrics
	Registry *prometheus.Registry
	Logger   logging.Logger

	durableHealth handlers.HealthChecker
	closers       []func() error
}

// New creates a new application instance with all dependencies
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
		Logger:   logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
	}
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := app.initializeStores(); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.initializeEngine()

	if err := app.loadPolicies(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if app.Durable != nil && cfg.RestoreOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		restored, err := app.Engine.Restore(ctx)
		cancel()
		if err != nil {
			// state is rebuilt by traffic; a cold start is safe
			app.Logger.Warn("Restoring rate limit records failed, starting cold",
				logging.Field{Key: "error", Value: err.Error()},
				logging.Field{Key: "restored", Value: restored},
			)
		}
	}

	if err := app.Engine.StartCleanup(cfg.CleanupSchedule); err != nil {
		app.Cleanup()
		return nil, err
	}

	return app, nil
}

func (app *App) initializeEngine() {
	app.Metrics = ratelimit.NewMetrics(app.Registry)

	opts := []ratelimit.Option{
		ratelimit.WithStore(app.Memory),
		ratelimit.WithLogger(logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "ratelimit"})),
		ratelimit.WithMetrics(app.Metrics),
		ratelimit.WithLockStripes(app.Config.LockStripeCount()),
		ratelimit.WithUnknownPolicyMode(ratelimit.FailMode(app.Config.UnknownPolicyMode)),
		ratelimit.WithPersistQueueSize(app.Config.PersistQueueLength()),
	}
	if app.Durable != nil {
		opts = append(opts, ratelimit.WithDurableStore(app.Durable))
	}
	app.Engine = ratelimit.NewEngine(opts...)
	// closers run in reverse, so the engine drains into the durable store before it closes
	app.closers = append(app.closers, app.Engine.Close)
}

// loadPolicies registers the built-in policies, then the policy file on top
func (app *App) loadPolicies() error {
	for _, cfg := range ratelimit.DefaultPolicies() {
		if err := app.Engine.SetConfig(cfg); err != nil {
			return err
		}
	}

	if app.Config.PolicyFile == "" {
		app.Logger.Info("Rate limit policies loaded", logging.Field{Key: "policies", Value: app.Engine.Registry().Len()})
		return nil
	}

	configs, err := ratelimit.LoadPolicies(app.Config.PolicyFile)
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		if err := app.Engine.SetConfig(cfg); err != nil {
			return err
		}
	}
	app.Logger.Info("Rate limit policies loaded",
		logging.Field{Key: "policies", Value: app.Engine.Registry().Len()},
		logging.Field{Key: "from_file", Value: len(configs)},
		logging.Field{Key: "policy_file", Value: app.Config.PolicyFile},
	)
	return nil
}

// UserIDFunc resolves the user of admission requests: a verified JWT subject when
// JWT_SECRET is set, the X-User-ID header otherwise
func (app *App) UserIDFunc() ratelimit.UserIDFunc {
	if app.Config.JWTSecret != "" {
		return ratelimit.JWTUserID([]byte(app.Config.JWTSecret))
	}
	return ratelimit.HeaderUserID("X-User-ID")
}

// Shutdown stops background work and flushes queued durable writes
func (app *App) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- app.Engine.Close() }()

	select {
	case err := <-done:
		if err != nil {
			app.Logger.Warn("Error stopping rate limit engine", logging.Field{Key: "error", Value: err.Error()})
			return err
		}
		app.Logger.Info("Rate limit engine stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.Logger.Warn("Error closing resource", logging.Field{Key: "error", Value: err.Error()})
		}
	}
	app.closers = nil
}
