package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"codeduel/internal/api"
	"codeduel/internal/broadcast"
	"codeduel/internal/config"
	"codeduel/internal/database"
	"codeduel/internal/grace"
	"codeduel/internal/hub"
	"codeduel/internal/problem"
	"codeduel/internal/room"
	"codeduel/internal/websocket"
	pkgdatabase "codeduel/pkg/database"
	"codeduel/pkg/interfaces"
)

// Application owns every long-lived component and their start/stop order.
type Application struct {
	config     *config.Config
	logger     zerolog.Logger
	dbManager  *database.Manager
	redis      *redis.Client
	registry   *websocket.Registry
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewApplication builds the component graph:
// Database → Problem source → Registry → Bus → Hub → WebSocket handler → API → HTTP
func NewApplication(cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  cfg.Database.MaxConnections,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
		MigrationsPath:  cfg.Database.MigrationsPath,
	}
	if err := dbConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	dbManager, err := database.NewManager(dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	migrations := pkgdatabase.NewMigrationManager(dbManager.GetDB(), dbConfig.MigrationsPath)
	if err := migrations.ApplyMigrations(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := migrations.ValidateSchema(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("database schema invalid: %w", err)
	}
	versions, err := migrations.AppliedVersions()
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	logger.Info().Str("path", dbConfig.DatabasePath).Strs("versions", versions).Msg("database migrations applied")

	var source interfaces.ProblemSource = problem.NewHTTPSource(
		cfg.Match.ProblemSourceURL,
		&http.Client{Timeout: cfg.Match.ProblemFetchTimeout},
		logger,
	)

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		source = problem.NewCachedSource(rdb, source, cfg.Redis.Key, cfg.Redis.CacheTTL, logger)
		logger.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.CacheTTL).Msg("problem cache enabled")
	}

	selector := problem.NewSelector(source,
		problem.WithFetchTimeout(cfg.Match.ProblemFetchTimeout),
		problem.WithLogger(logger),
	)

	registry := websocket.NewRegistry()
	bus := broadcast.NewBus(registry, logger)
	roomHub := hub.NewHub(room.NewRegistry(), bus, selector, grace.NewScheduler(cfg.Match.GracePeriod), dbManager, logger)

	limiter := websocket.NewRateLimiter(cfg.RateLimit.EventsPerSecond, cfg.RateLimit.Burst)
	wsHandler := websocket.NewHandler(registry, roomHub, limiter, websocket.HandlerConfig{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	}, logger)

	apiServer := api.NewServer(roomHub, dbManager, registry, http.HandlerFunc(wsHandler.HandleWebSocket), logger)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		dbManager:  dbManager,
		redis:      rdb,
		registry:   registry,
		hub:        roomHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start runs the hub, then binds the listener and serves in the background.
func (app *Application) Start(ctx context.Context) error {
	if app.redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := app.redis.Ping(pingCtx).Err(); err != nil {
			app.logger.Warn().Err(err).Msg("redis unreachable, problem lookups will bypass the cache")
		}
		cancel()
	}

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start room hub: %w", err)
	}

	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}

	app.mu.Lock()
	app.listener = ln
	app.mu.Unlock()

	app.logger.Info().Str("addr", ln.Addr().String()).Msg("codeduel listening")

	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop shuts down in reverse order: HTTP → Hub → Redis → Database. The hub
// flushes pending match results before the database closes.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info().Msg("shutting down codeduel")

	var errs []error

	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}

	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("room hub shutdown: %w", err))
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis shutdown: %w", err))
		}
	}

	if err := app.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}

	app.logger.Info().Msg("codeduel shutdown complete")
	return errors.Join(errs...)
}

// GetAddr returns the bound listener address once started, else the configured one.
func (app *Application) GetAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the root HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.apiServer
}
