package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/orgauth/internal/orgauth/http"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/service"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store/drivers/sqlite"
	"github.com/aussiebroadwan/orgauth/pkg/authsdk"
	"github.com/aussiebroadwan/orgauth/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application is the standalone orgauth server: the engine behind the HTTP
// protocol endpoints, with housekeeping running alongside.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db store.Store

	// Services
	dispatcher          *service.Dispatcher
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "orgauth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()

	if err := app.bootstrap(context.Background()); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("orgauth starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down orgauth...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	// Close database connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("orgauth stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(sqlite.DSN(app.cfg.DatabaseFile, app.cfg.BusyTimeout))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes the engine and its background workers
func (app *Application) initServices() {
	mailer := service.LogMailer{Logger: app.logger}
	if app.cfg.EmailDomain != "" {
		mailer.From = "no-reply@" + app.cfg.EmailDomain
	}

	peer := authsdk.RemotePeer{UserPath: app.cfg.UserURIPath}

	app.dispatcher = service.NewDispatcher(app.db, app.cfg.Service(), mailer, peer)
	app.bootstrapService = &service.BootstrapService{
		Store:       app.db,
		Credentials: app.dispatcher.Credentials,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.dispatcher.Ledger,
		app.cfg.Service(),
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// bootstrap creates the configured first admin on an empty database. A
// generated password is logged once, since nothing else will show it.
func (app *Application) bootstrap(ctx context.Context) error {
	if app.cfg.AdminUser == "" {
		return nil
	}

	ctx = slogx.WithContext(ctx, app.logger)
	id, password, err := app.bootstrapService.Bootstrap(ctx, service.Hooks{}, app.cfg.AdminUser, app.cfg.AdminEmail, app.cfg.AdminPassword)
	switch {
	case errors.Is(err, service.ErrBootstrapAlready):
		return nil
	case err != nil:
		return fmt.Errorf("failed to bootstrap admin user: %w", err)
	}

	if app.cfg.AdminPassword == "" {
		app.logger.Warn("generated admin password, change it after first login",
			slog.Int64("user_id", int64(id)),
			slog.String("password", password),
		)
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.dispatcher, BuildVersion, app.db, app.logger)
	router.CookieSecure = app.cfg.CookieSecure
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
