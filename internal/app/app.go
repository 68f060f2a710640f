package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/storefront/internal/cache"
	"github.com/utafrali/storefront/internal/cache/memory"
	cacheredis "github.com/utafrali/storefront/internal/cache/redis"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/event"
	handler "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/remote"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/internal/worker"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
)

const sweepInterval = 5 * time.Minute

// App wires together all dependencies and runs the storefront edge.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	rdb        *redis.Client
	producer   *pkgkafka.Producer
	relay      *event.Relay
	queue      *worker.Queue
	events     *handler.EventStream
	httpServer *http.Server

	stopSweeper    context.CancelFunc
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger, stopSweeper: func() {}}

	// Initialize tracing.
	tcfg := tracing.DefaultConfig("storefront")
	tcfg.Environment = cfg.Environment
	tcfg.OTLPEndpoint = cfg.OTELEndpoint
	tcfg.SampleRate = cfg.OTELSampleRate
	tcfg.Enabled = cfg.OTELEnabled
	shutdown, err := tracing.InitTracer(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = shutdown

	healthHandler := health.NewHandler()

	// Initialize the session store.
	store, err := a.newStore(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	// Storefront API client: single-shot and retrying calls share one breaker.
	base := httpclient.New(httpclient.Config{
		Timeout:         cfg.APITimeout,
		Retry:           httpclient.NoRetry(),
		MaxConnsPerHost: 100,
	})
	cbCfg := httpclient.DefaultCircuitBreakerConfig("storefront-api")
	cbCfg.Timeout = cfg.BreakerTimeout
	cbCfg.FailureRatio = cfg.BreakerFailureRatio
	cbCfg.MinRequests = cfg.BreakerMinRequests
	plain := httpclient.NewCircuitBreakerClient(base, cbCfg, logger)
	retrying := plain.WithClient(base.WithRetry(httpclient.RetryPolicy{
		MaxAttempts: cfg.APIMaxAttempt,
		WaitMin:     cfg.APIWaitMin,
		WaitMax:     cfg.APIWaitMax,
		Multiplier:  2,
		Jitter:      true,
	}))
	api := remote.NewClient(cfg.APIBaseURL, plain, retrying, logger)
	healthHandler.RegisterNonCritical("storefront-api", func(context.Context) error {
		if plain.State() == gobreaker.StateOpen {
			return errors.New("circuit breaker open")
		}
		return nil
	})

	// Build the dependency graph.
	bus := event.NewBus(logger)
	local := cache.NewLocal(store, bus, logger)
	a.queue = worker.NewQueue(cfg.WorkerConcurrency, cfg.SyncTimeout, logger)
	locks := service.NewSessionLocks()

	syncer := service.NewSyncManager(local, bus, api, locks, cfg.GuestActorID, cfg.SyncTimeout, logger)
	cartService := service.NewCartService(local, bus, api, syncer, a.queue, locks, cfg.GuestActorID, logger)
	wishlistService := service.NewWishlistService(local, bus, api, locks, logger)
	services := handler.Services{
		Catalog:  service.NewCatalogService(api, logger),
		Cart:     cartService,
		Card:     service.NewProductCard(cartService, service.NewCardGuard(cfg.AddToCartInterval)),
		Wishlist: wishlistService,
		Sessions: service.NewSessionService(local, bus, wishlistService, locks, logger),
	}

	// Kafka activity relay.
	if cfg.RelayEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.relay = event.NewRelay(bus, a.producer, event.DefaultRelayConfig(cfg.ActivityTopic), logger)
		a.relay.Start()
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("activity relay started",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.ActivityTopic),
		)
	}

	issuer := middleware.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTokenTTL)
	if !issuer.Enabled() {
		logger.Warn("JWT_SECRET not set, sessions sign in without tokens")
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSOrigins
	cors.Environment = cfg.Environment

	// HTTP router.
	a.events = handler.NewEventStream(bus, logger)
	router := handler.NewRouter(services, a.events, issuer, cors, healthHandler, logger)

	// WriteTimeout stays unset: event streams are long-lived and every
	// other route is bounded by the router's request timeout.
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return a, nil
}

func (a *App) newStore(ctx context.Context, healthHandler *health.Handler) (cache.Store, error) {
	ttl := a.cfg.CacheTTLDuration()

	if a.cfg.CacheBackend == config.CacheMemory {
		store := memory.NewStore(ttl)
		sweepCtx, stop := context.WithCancel(context.Background())
		a.stopSweeper = stop
		go store.RunSweeper(sweepCtx, sweepInterval)
		a.logger.Warn("using in-memory session store, data is lost on restart")
		return store, nil
	}

	rdb, err := cacheredis.NewClient(ctx, cacheredis.Config{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPass,
		DB:       a.cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.logger.Info("connected to Redis",
		slog.String("addr", a.cfg.RedisAddr),
		slog.Int("db", a.cfg.RedisDB),
	)
	a.rdb = rdb

	store := cacheredis.NewStore(rdb, ttl)
	store.SetSlowCommandLogging(a.cfg.CacheSlowThreshold, a.logger)
	healthHandler.RegisterCritical("redis", store.Ping)
	return store, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	// Open streams would hold Shutdown until the deadline.
	a.events.Close()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	// Let accepted cart adds reach the API.
	if err := a.queue.Close(shutdownCtx); err != nil {
		a.logger.Error("worker queue close error", slog.String("error", err.Error()))
	}

	if a.relay != nil {
		if err := a.relay.Stop(shutdownCtx); err != nil {
			a.logger.Error("activity relay stop error", slog.String("error", err.Error()))
		}
	}

	// Close Kafka producer.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	// Close Redis client.
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	a.stopSweeper()

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
