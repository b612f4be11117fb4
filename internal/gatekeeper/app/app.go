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

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/cache"
	httpapi "github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/http"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/metrics"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/permission"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store/drivers/postgres"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/token"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	// BuildVersion is overridden at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application is the gatekeeper service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db      store.Store
	cache   cache.Store
	metrics *metrics.Metrics

	signer   jwtx.Signer
	verifier jwtx.Verifier

	issuer              *token.Issuer
	gate                *token.Gate
	permissions         *permission.Manager
	identityService     *service.IdentityService
	userService         *service.UserService
	roleService         *service.RoleService
	housekeepingService *service.HousekeepingService
	housekeepingRunning bool

	server *http.Server
	router *httpapi.Router
}

// New builds the application: storage, migrations, seed data, cache,
// signing key, services and the HTTP server. Nothing is served until Run.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gatekeeper",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  cfg.LogOutput,
		}),
	}

	cryptox.SetPepperPath(app.cfg.PepperFile)

	if cfg.MetricsEnabled {
		app.metrics = metrics.New()
	}

	ctx := slogx.WithContext(context.Background(), app.logger)

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initCache(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initTokens(); err != nil {
		app.closeStores()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler is the root HTTP handler, for embedding and tests.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()
	app.housekeepingRunning = true

	app.logger.Info("gatekeeper starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Shutdown drains the HTTP server, stops housekeeping and closes the stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gatekeeper...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", slogx.Err(err))
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", slogx.Err(err))
		}
	}

	if app.housekeepingRunning {
		app.housekeepingService.Stop()
		app.housekeepingRunning = false
	}

	if err := app.cache.Close(); err != nil {
		app.logger.Error("error closing cache", slogx.Err(err))
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", slogx.Err(err))
		return err
	}

	app.logger.Info("gatekeeper stopped")
	return nil
}

func (app *Application) closeStores() {
	_ = app.cache.Close()
	_ = app.db.Close()
}

// initDatabase opens the configured store, applies migrations and seeds
// the static roles and accounts.
func (app *Application) initDatabase(ctx context.Context) error {
	var db store.Store
	switch app.cfg.DatabaseDriver {
	case "", "sqlite":
		s, err := sqlite.NewStore(app.cfg.DatabaseFile)
		if err != nil {
			return fmt.Errorf("failed to open sqlite database: %w", err)
		}
		db = s
	case "postgres":
		if app.cfg.DatabaseURL == "" {
			return errors.New("app: DATABASE_URL is required for the postgres driver")
		}
		s, err := postgres.NewStore(ctx, app.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		db = s
	default:
		return fmt.Errorf("app: unknown DATABASE_DRIVER %q", app.cfg.DatabaseDriver)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)

	seeder := &service.Seeder{Store: db, DefaultPassword: app.cfg.SeedDefaultPassword}
	if err := seeder.Seed(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to seed database: %w", err)
	}
	return nil
}

func (app *Application) initCache(ctx context.Context) error {
	var c cache.Store
	switch app.cfg.CacheDriver {
	case "", "memory":
		c = cache.NewMemoryStore(app.cfg.CacheSize)
	case "redis":
		if app.cfg.RedisURL == "" {
			return errors.New("app: REDIS_URL is required for the redis cache")
		}
		rs, err := cache.NewRedisStore(ctx, app.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		c = rs
	default:
		return fmt.Errorf("app: unknown CACHE_DRIVER %q", app.cfg.CacheDriver)
	}

	app.cache = cache.Instrument(c, app.metrics)
	app.logger.Info("cache ready", "driver", app.cfg.CacheDriver)
	return nil
}

func (app *Application) initTokens() error {
	key, err := initSigningKey(app.cfg, app.logger)
	if err != nil {
		return err
	}

	signer, err := jwtx.NewSignerHS256(key)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}
	verifier, err := jwtx.NewVerifierHS256(key, app.cfg.Issuer, app.cfg.Audience)
	if err != nil {
		return fmt.Errorf("failed to create verifier: %w", err)
	}

	app.signer = signer
	app.verifier = verifier
	return nil
}

// initServices wires the business services.
func (app *Application) initServices() {
	catalog := permission.DefaultCatalog()
	resolver := permission.NewResolver(app.db, app.cache, catalog)
	app.permissions = permission.NewManager(resolver, app.cache, app.metrics)

	app.issuer = token.NewIssuer(app.signer, app.db, app.cache, token.Config{
		Issuer:     app.cfg.Issuer,
		Audience:   app.cfg.Audience,
		AccessTTL:  app.cfg.AccessTokenTTL,
		RefreshTTL: app.cfg.RefreshTokenTTL,
	}, app.metrics)
	app.gate = token.NewDefaultGate(app.verifier, app.db, app.cache)

	app.identityService = &service.IdentityService{
		Store:       app.db,
		Issuer:      app.issuer,
		Gate:        app.gate,
		Permissions: app.permissions,
		Catalog:     catalog,
		Metrics:     app.metrics,
	}
	app.userService = &service.UserService{Store: app.db, Permissions: resolver, Issuer: app.issuer}
	app.roleService = &service.RoleService{Store: app.db, Permissions: resolver}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.metrics,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.cache, app.metrics, app.logger)

	router.Authenticator = app.gate
	router.Permissions = app.permissions
	router.IdentityService = app.identityService
	router.UserService = app.userService
	router.RoleService = app.roleService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
