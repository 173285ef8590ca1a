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

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	httpapi "github.com/aussiebroadwan/hoa/internal/auth/http"
	"github.com/aussiebroadwan/hoa/internal/auth/obs"
	"github.com/aussiebroadwan/hoa/internal/auth/service"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
	"github.com/aussiebroadwan/hoa/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/hoa/pkg/cryptox"
	"github.com/aussiebroadwan/hoa/pkg/httpx"
	"github.com/aussiebroadwan/hoa/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Application encapsulates the service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db      store.Store
	metrics *obs.Metrics

	keys                *service.KeyManager
	tokenService        *service.TokenService
	methodService       *service.AuthMethodService
	identityService     *service.IdentityService
	ceremonyService     *service.CeremonyService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with every dependency initialized. Nothing is
// started until Run.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "hoa",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: obs.New(),
	}
	app.metrics.SetBuildInfo(BuildVersion)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keys, err := InitKeyManager(cfg, app.db, app.metrics, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.keys = keys

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Keys returns the signing key manager.
func (app *Application) Keys() *service.KeyManager { return app.keys }

// Methods returns the auth method registry.
func (app *Application) Methods() *service.AuthMethodService { return app.methodService }

// Identities returns the identity service.
func (app *Application) Identities() *service.IdentityService { return app.identityService }

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("hoa starting",
		"port", app.cfg.Port,
		"relying_parties", len(app.cfg.RelyingParties),
		"require_approval", app.cfg.RequireApproval,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			_ = app.db.Close()
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

// Shutdown drains the HTTP server, stops housekeeping and closes the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down hoa...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.Close(); err != nil {
		return err
	}

	app.logger.Info("hoa stopped")
	return nil
}

// Close releases the store. Use it when the application was built for a
// one-off command and never Run.
func (app *Application) Close() error {
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(app.cfg.DatabaseFile)
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
	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}

	app.methodService = &service.AuthMethodService{
		Store:           app.db,
		Hasher:          cryptox.NewSecretHasher(pepper),
		RequireApproval: app.cfg.RequireApproval,
		Recorder:        app.metrics,
	}

	app.identityService = &service.IdentityService{
		Store:          app.db,
		BootstrapToken: app.cfg.BootstrapToken,
		Recorder:       app.metrics,
	}

	app.ceremonyService = &service.CeremonyService{
		Store: app.db,
		Challenges: &service.ChallengeCache{
			Store: app.db,
			TTL:   app.cfg.ChallengeTTL,
		},
		Methods:                 app.methodService,
		RelyingParties:          app.cfg.Parties(),
		Resolver:                service.IdentityResolverFunc(httpx.SubjectFromContext),
		AllowNoneAttestation:    app.cfg.AllowNoneAttestation,
		RequireUserVerification: app.cfg.RequireUserVerification,
		Recorder:                app.metrics,
	}

	app.tokenService = &service.TokenService{
		Keys:       app.keys,
		Store:      app.db,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
		Family:     domain.KeyFamily(app.cfg.TokenFamily),
		Leeway:     app.cfg.TokenLeeway,
		Recorder:   app.metrics,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.keys,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeepingService.Recorder = app.metrics
	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.db, BuildVersion, app.logger)
	router.Ceremonies = app.ceremonyService
	router.Methods = app.methodService
	router.Identities = app.identityService
	router.Tokens = app.tokenService
	router.Keys = app.keys
	router.Metrics = app.metrics
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
