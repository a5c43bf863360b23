// Package app provides the application initialization and lifecycle management
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/linkmark/internal/api"
	"github.com/tildaslashalef/linkmark/internal/config"
	"github.com/tildaslashalef/linkmark/internal/database"
	"github.com/tildaslashalef/linkmark/internal/loggy"
	"github.com/tildaslashalef/linkmark/internal/store"
	"github.com/tildaslashalef/linkmark/internal/syncer"
)

// App represents the application instance with its dependencies
type App struct {
	Config      *config.Config
	Links       store.LinkRepository
	Collections store.CollectionRepository
	Settings    config.SettingsRepository
	Client      *api.Client
	Sync        *syncer.Service
}

// New initializes a new application instance with all its dependencies
func New() (*App, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}

	if err := initLogger(cfg); err != nil {
		return nil, err
	}

	loggy.Info("Application initializing", "log_level", cfg.Logging.Level)

	if err := database.InitDB(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	db, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	app, err := initServices(cfg, db)
	if err != nil {
		return nil, err
	}

	loggy.Info("Application initialized successfully")
	return app, nil
}

// initConfig loads and sets up the application configuration
func initConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv("", "")
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	config.Set(cfg)
	return cfg, nil
}

// initLogger initializes the logging system
func initLogger(cfg *config.Config) error {
	err := loggy.Init(loggy.Config{
		Level:      config.ParseLogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// initServices initializes all application services
func initServices(cfg *config.Config, db *sql.DB) (*App, error) {
	logger := loggy.GetGlobalLogger()
	ctx := context.Background()

	settingsRepo := config.NewSQLSettingsRepository(db, logger)
	if err := config.LoadSyncSettings(ctx, cfg, settingsRepo); err != nil {
		loggy.Warn("Failed to load sync settings from database", "error", err)
		// continue with env defaults
	}

	links := store.NewSQLLinkRepository(db, logger)
	collections := store.NewSQLCollectionRepository(db, logger)
	deletions := store.NewSQLDeletionRepository(db, logger)

	client := api.NewClient(cfg.Server, cfg.Sync, logger)
	client.SetSettingsRepository(settingsRepo)

	retry := syncer.DefaultPolicy()
	retry.MaxRetries = cfg.Sync.MaxRetries
	retry.BaseDelay = cfg.Sync.BaseDelay

	factory := syncer.NewFactory(links, collections, deletions, client, settingsRepo, retry, logger)
	executor := syncer.NewExecutor(cfg.Sync.MaxConcurrency, logger)
	push := factory.ForMode(syncer.ModeImmediate)
	reconciler := syncer.NewReconciler(links, collections, deletions, client, push, retry, logger)
	logs := syncer.NewSQLRepository(db, logger)

	syncService := syncer.NewService(factory, executor, reconciler, links, collections, logs, settingsRepo, logger)

	return &App{
		Config:      cfg,
		Links:       links,
		Collections: collections,
		Settings:    settingsRepo,
		Client:      client,
		Sync:        syncService,
	}, nil
}

// Shutdown gracefully shuts down the application
func (app *App) Shutdown() error {
	loggy.Info("Shutting down application")

	if app.Sync != nil {
		app.Sync.CancelAll("application shutting down")
	}

	if err := database.CloseDB(); err != nil {
		loggy.Error("Error closing database connection", "error", err)
	}

	return nil
}

// FromContext retrieves the App instance from the CLI context
func FromContext(c *cli.Context) (*App, error) {
	if c.App.Metadata == nil {
		return nil, fmt.Errorf("app metadata not found in context")
	}

	app, ok := c.App.Metadata["app"].(*App)
	if !ok {
		return nil, fmt.Errorf("app instance not found in context")
	}

	return app, nil
}
