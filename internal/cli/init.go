// Package cli provides common initialization shared by cmd/budgetdash and
// cmd/budgetdash-worker.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"budgetdash/internal/amqp"
	"budgetdash/internal/backend"
	"budgetdash/internal/cache"
	"budgetdash/internal/config"
	"budgetdash/internal/log"
	"budgetdash/internal/services"
	"budgetdash/internal/sheets"
	gsheet "budgetdash/internal/sheets/google"
	"budgetdash/internal/sheets/memory"
	"budgetdash/internal/store"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and makes it the
// slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	lc := log.DefaultConfig()
	lc.Level = level
	lc.Component = component
	lc.Output = os.Stderr
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadConfig loads the environment and validates it.
func LoadConfig() (*config.Config, error) {
	LoadEnvFile()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Options tune Bootstrap.
type Options struct {
	// Component names the process in log records.
	Component string
	// Publish connects to AMQP_URL, when set, for change notifications.
	Publish bool
}

// App is an initialized process: config, logger, store and service.
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	Store   *store.Store
	Service *services.BudgetService
	AMQP    *amqp.Client

	svcOpts services.Options
	caches  *cache.Manager
	closers []func() error
}

// Bootstrap wires the store, caches and optional AMQP client from the
// environment.
func Bootstrap(ctx context.Context, opts Options) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if opts.Component == "" {
		opts.Component = log.ComponentApp
	}
	logger := SetupLogger(cfg, opts.Component)
	return BootstrapWith(ctx, cfg, logger, opts)
}

// BootstrapWith is Bootstrap for an already loaded config.
func BootstrapWith(ctx context.Context, cfg *config.Config, logger *log.Logger, opts Options) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, cleanup, err := backend.OpenStore(ctx, backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger), bcfg)
	if err != nil {
		return nil, err
	}
	app.Store = st
	app.closers = append(app.closers, cleanup)

	if enabled, ok, _ := cfg.IncomeTrackingOverride(); ok && st.IncomeSettings().Enabled != enabled {
		if err := st.SetIncomeTracking(ctx, enabled, nil); err != nil {
			app.Close()
			return nil, fmt.Errorf("apply INCOME_TRACKING: %w", err)
		}
		logger.InfoContext(ctx, "Income tracking set from environment", "enabled", enabled)
	}

	svcOpts := services.Options{GasMinimum: cfg.GasMinAmount}
	if cfg.ViewCacheSize > 0 {
		views := cache.NewLRUCache[*services.Dashboard](cfg.ViewCacheSize, cfg.ViewCacheTTL)
		app.caches = cache.NewManager()
		app.caches.Register(views)
		app.caches.StartCleanup(cfg.ViewCacheTTL)
		svcOpts.Views = views
	}

	if opts.Publish && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.WarnContext(ctx, "AMQP unavailable, change notifications disabled", "error", err)
		} else {
			app.AMQP = client
			app.closers = append(app.closers, client.Close)
			svcOpts.Publisher = client
		}
	}

	app.svcOpts = svcOpts
	app.Service = services.NewBudgetService(st, svcOpts)
	return app, nil
}

// ServiceWith returns a service over the same store, with its own view
// cache, that announces changes to p.
func (a *App) ServiceWith(p services.ChangePublisher) *services.BudgetService {
	opts := a.svcOpts
	opts.Publisher = p
	if opts.Views != nil {
		views := cache.NewLRUCache[*services.Dashboard](a.Config.ViewCacheSize, a.Config.ViewCacheTTL)
		a.caches.Register(views)
		opts.Views = views
	}
	return services.NewBudgetService(a.Store, opts)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	if a.caches != nil {
		a.caches.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("Cleanup failed", "error", err)
		}
	}
	a.closers = nil
}

// SummaryWriter returns the Google Sheets writer when a spreadsheet is
// configured, otherwise the in-memory writer.
func SummaryWriter(ctx context.Context, cfg *config.Config) (sheets.SummaryWriter, error) {
	if cfg.GoogleSpreadsheetID == "" {
		slog.InfoContext(ctx, "Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
		return memory.New(), nil
	}
	client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
	if err != nil {
		return nil, fmt.Errorf("google sheets: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
