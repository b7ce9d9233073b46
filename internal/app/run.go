package app

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"rate-limiter/internal/common/logging"
	"rate-limiter/internal/config"
	"rate-limiter/internal/server"
)

const shutdownTimeout = 30 * time.Second

// Run is the main entry point for the application
func Run() error {
	// Load environment variables
	_ = godotenv.Load()

	logging.InitGlobalLogger()
	defer logging.MustSync()

	logging.Info("Starting rate limiter",
		logging.Field{Key: "cpus", Value: runtime.NumCPU()},
		logging.Field{Key: "version", Value: "1.0.0"},
	)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	app, err := New(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return Serve(ctx, app, server.New(app.Handler(), cfg.Addr(), cfg.TLSCertFile, cfg.TLSKeyFile))
}

// Serve runs srv until ctx is cancelled or the server fails, then shuts the server
// down and flushes the application
func Serve(ctx context.Context, app *App, srv *server.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("HTTP server listening", logging.Field{Key: "addr", Value: srv.Addr()})
		return srv.Serve()
	})

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error("Server forced to shutdown", err)
			return err
		}
		return app.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logging.Error("Server exited with error", err)
		return err
	}
	logging.Info("Server exited")
	return nil
}
