package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/estatevault/portal/internal/portal/domain"
	httpapi "github.com/estatevault/portal/internal/portal/http"
	"github.com/estatevault/portal/internal/portal/realtime"
	"github.com/estatevault/portal/internal/portal/service"
	"github.com/estatevault/portal/internal/portal/store"
	redisstore "github.com/estatevault/portal/internal/portal/store/drivers/redis"
	"github.com/estatevault/portal/internal/portal/store/drivers/sqlite"
	"github.com/estatevault/portal/pkg/cryptox"
	"github.com/estatevault/portal/pkg/httpx"
	"github.com/estatevault/portal/pkg/jwtx"
	"github.com/estatevault/portal/pkg/metricsx"
	"github.com/estatevault/portal/pkg/slogx"
	"github.com/estatevault/portal/pkg/totpx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the portal with all its dependencies.
type Application struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metricsx.Metrics

	// Core dependencies
	db         store.Store
	rdb        goredis.UniversalClient // nil unless challenges live in redis
	challenges store.LoginChallenges   // nil means db.LoginChallenges()
	codec      *jwtx.Codec

	// Services
	directory           *service.AdminDirectory
	twoFactorService    *service.TwoFactorService
	sessionService      *service.SessionService
	relayService        *service.RelayService
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService

	// Realtime
	registry        *realtime.Registry
	realtimeHandler *realtime.Handler
	heartbeatStop   context.CancelFunc
	heartbeatDone   chan struct{}

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "portal",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metricsx.New(),
	}

	if err := app.cfg.Validate(app.logger); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cryptox.LoadPepper(app.cfg.PepperFile); err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initChallenges(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	codec, err := jwtx.NewCodec(jwtx.Config{
		AccessSecret:  []byte(app.cfg.AccessSecret),
		RefreshSecret: []byte(app.cfg.RefreshSecret),
		AccessTTL:     app.cfg.AccessTTL,
		RefreshTTL:    app.cfg.RefreshTTL,
		Issuer:        app.cfg.Issuer,
	})
	if err != nil {
		app.closeStores()
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	app.codec = codec

	app.initServices()
	app.initRealtime()
	app.initHTTP()

	if err := app.bootstrap(); err != nil {
		app.closeStores()
		return nil, err
	}

	return app, nil
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.Start()

	app.logger.Info("portal starting", "port", app.cfg.Port, "version", BuildVersion)

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

// Start launches the background workers: housekeeping and the realtime
// heartbeat sweeper.
func (app *Application) Start() {
	app.housekeepingService.Start()

	ctx, cancel := context.WithCancel(context.Background())
	app.heartbeatStop = cancel
	app.heartbeatDone = make(chan struct{})
	go func() {
		defer close(app.heartbeatDone)
		app.registry.Run(ctx, app.cfg.HeartbeatInterval)
	}()
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down portal...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Hijacked websocket connections are not tracked by the server.
	app.registry.CloseAll()
	// Workers only exist after Start.
	if app.heartbeatStop != nil {
		app.heartbeatStop()
		<-app.heartbeatDone
		app.housekeepingService.Stop()
	}

	if err := app.closeStores(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("portal stopped")
	return nil
}

func (app *Application) closeStores() error {
	if app.rdb != nil {
		if err := app.rdb.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}
	return app.db.Close()
}

// initDatabase opens the database and applies migrations.
func (app *Application) initDatabase() error {
	dsn := app.cfg.DatabaseFile
	if !strings.HasPrefix(dsn, ":memory:") && !strings.HasPrefix(dsn, "file:") {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", dsn)
	}
	db, err := sqlite.NewStore(dsn)
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

// initChallenges connects the redis challenge store when configured.
func (app *Application) initChallenges() error {
	if app.cfg.ChallengeStore != ChallengeStoreRedis {
		return nil
	}

	opts, err := goredis.ParseURL(app.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid PORTAL_REDIS_URL: %w", err)
	}
	rdb := goredis.NewClient(opts)
	challenges := redisstore.NewLoginChallenges(rdb)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := challenges.Ping(ctx); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("failed to reach redis: %w", err)
	}

	app.rdb = rdb
	app.challenges = challenges
	app.logger.Info("login challenges stored in redis", "addr", opts.Addr)
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.directory = service.NewAdminDirectory(app.db.Users(), app.cfg.AdminCacheTTL)

	app.twoFactorService = &service.TwoFactorService{
		Store:           app.db,
		TOTP:            totpx.New(app.cfg.Issuer, app.cfg.TOTPWindow),
		BackupCodeCount: app.cfg.BackupCodeCount,
	}
	app.sessionService = &service.SessionService{
		Store:                app.db,
		Codec:                app.codec,
		TwoFactor:            app.twoFactorService,
		Challenges:           app.challenges,
		ChallengeTTL:         app.cfg.ChallengeTTL,
		ChallengeMaxAttempts: app.cfg.ChallengeMaxAttempts,
	}
	app.bootstrapService = &service.BootstrapService{Store: app.db, Directory: app.directory}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.challenges,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeepingService.OnDeleted = func(table string, n int64) {
		app.metrics.Housekeeping.WithLabelValues(table).Add(float64(n))
	}
}

// initRealtime builds the connection registry and the relay that delivers
// through it.
func (app *Application) initRealtime() {
	app.registry = realtime.NewRegistry(app.logger)
	app.relayService = &service.RelayService{
		Store:     app.db,
		Directory: app.directory,
		Notifier:  app.registry,
	}

	presenceCtx := slogx.WithContext(context.Background(), app.logger)
	app.registry.OnPresence = func(userID string, online bool) {
		app.relayService.Presence(presenceCtx, userID, online)
	}
	app.registry.OnChange = func(total int) {
		app.metrics.Connections.Set(float64(total))
	}
	app.registry.OnTerminated = app.metrics.Terminated.Inc
	app.registry.OnDeliver = func(t domain.EventType) {
		app.metrics.Events.WithLabelValues(string(t)).Inc()
	}

	app.realtimeHandler = realtime.NewHandler(app.registry, app.relayService, app.codec, app.cfg.AllowedOrigins)
	app.realtimeHandler.Exposed = []error{
		service.ErrEmptyContent,
		service.ErrContentTooLong,
		service.ErrUnknownRecipient,
		service.ErrNotRecipient,
		service.ErrMessageNotFound,
		service.ErrStoreUnavailable,
	}
	app.realtimeHandler.OnFrame = func(frameType string) {
		app.metrics.Frames.WithLabelValues(frameType).Inc()
	}
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.codec, BuildVersion, app.db, app.logger)

	router.SessionService = app.sessionService
	router.TwoFactorService = app.twoFactorService
	router.RelayService = app.relayService
	router.Registry = app.registry
	router.Realtime = app.realtimeHandler
	router.Metrics = app.metrics
	router.CookieSecure = app.cfg.CookieSecure
	if lc, ok := app.challenges.(*redisstore.LoginChallenges); ok {
		router.ChallengePinger = lc
	}
	router.ApplyRoutes()

	httpx.RateLimitRejected = func(profile string) {
		app.metrics.RateLimited.WithLabelValues(profile).Inc()
	}

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// bootstrap creates the first admin when configured and the store is empty.
func (app *Application) bootstrap() error {
	if app.cfg.BootstrapAdminEmail == "" {
		return nil
	}
	ctx := slogx.WithContext(context.Background(), app.logger)
	created, err := app.bootstrapService.EnsureAdmin(ctx, app.cfg.BootstrapAdminEmail, app.cfg.BootstrapAdminPassword)
	if err != nil {
		return fmt.Errorf("failed to bootstrap admin: %w", err)
	}
	if !created {
		app.logger.Debug("bootstrap admin skipped, users already exist")
	}
	return nil
}
