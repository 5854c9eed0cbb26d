package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/kohakuhq/kohaku/internal/server/http"
	"github.com/kohakuhq/kohaku/internal/server/scheduler"
	"github.com/kohakuhq/kohaku/internal/server/service"
	"github.com/kohakuhq/kohaku/internal/server/store"
	"github.com/kohakuhq/kohaku/internal/server/store/drivers/sqlite"
	"github.com/kohakuhq/kohaku/internal/server/ws"
	"github.com/kohakuhq/kohaku/pkg/jwtx"
	"github.com/kohakuhq/kohaku/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the server with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	registry *ws.Registry
	sched    *scheduler.Scheduler

	tokenService        *service.TokenService
	authorizeService    *service.AuthorizeService
	keysService         *service.KeysService
	notifyService       *service.NotifyService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized. The
// process-wide singletons are claimed here; a second New in the same
// process fails.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "kohaku",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.sched.Start()

	app.logger.Info("server starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops the server, scheduler and store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	app.sched.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("server stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
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

func (app *Application) initServices() error {
	signer, err := jwtx.NewHS256([]byte(app.cfg.SigningSecret))
	if err != nil {
		return fmt.Errorf("failed to build token signer: %w", err)
	}

	app.tokenService, err = service.InitTokenService(signer)
	if err != nil {
		return err
	}

	app.registry, err = ws.InitRegistry(app.logger)
	if err != nil {
		return err
	}
	if app.cfg.EnvelopeSecret != "" {
		sealer, err := ws.NewSealer([]byte(app.cfg.EnvelopeSecret))
		if err != nil {
			return fmt.Errorf("failed to build envelope sealer: %w", err)
		}
		app.registry.Sealer = sealer
	}

	app.authorizeService = &service.AuthorizeService{
		Tokens:       app.tokenService,
		Store:        app.db,
		BootstrapKey: app.cfg.BootstrapKey,
	}
	app.keysService = &service.KeysService{
		Store:  app.db,
		Tokens: app.tokenService,
	}
	app.notifyService = &service.NotifyService{
		Store:    app.db,
		Registry: app.registry,
	}

	app.sched, err = scheduler.Init(app.logger)
	if err != nil {
		return err
	}
	app.housekeepingService = &service.HousekeepingService{
		Store:      app.db,
		Logger:     app.logger,
		StaleAfter: app.cfg.CodeStaleAfter,
		Expression: app.cfg.HousekeepingCron,
	}
	if err := app.housekeepingService.Start(app.sched); err != nil {
		return fmt.Errorf("failed to schedule housekeeping: %w", err)
	}

	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.Tokens = app.tokenService
	router.Gate = app.authorizeService
	router.Keys = app.keysService
	router.Notify = app.notifyService
	router.Registry = app.registry
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
