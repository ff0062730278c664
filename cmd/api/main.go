// Command api runs the auction backend: the bidding engine, lot closer,
// live-update hub, and the HTTP surface in front of them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lothammer/auction-backend/internal/api/rest"
	"github.com/lothammer/auction-backend/internal/api/websocket"
	"github.com/lothammer/auction-backend/internal/domain/clock"
	"github.com/lothammer/auction-backend/internal/infrastructure/cache"
	"github.com/lothammer/auction-backend/internal/infrastructure/config"
	"github.com/lothammer/auction-backend/internal/infrastructure/database"
	"github.com/lothammer/auction-backend/internal/infrastructure/metrics"
	"github.com/lothammer/auction-backend/internal/infrastructure/repository"
	"github.com/lothammer/auction-backend/internal/infrastructure/telemetry"
	"github.com/lothammer/auction-backend/internal/service/bidding"
	"github.com/lothammer/auction-backend/internal/service/closing"
	"github.com/lothammer/auction-backend/internal/service/importing"
	"github.com/lothammer/auction-backend/internal/service/invoicing"
	"github.com/lothammer/auction-backend/internal/service/watchlist"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		ServiceName:    "auction-backend",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.TracingEnabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	if err := database.MigrateUp(cfg.Database.URL, "file://migrations", logger); err != nil {
		return err
	}
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	st := repository.New(pool, logger)
	collector := metrics.New()
	clk := clock.NewSystem()

	invoicingSvc := invoicing.NewService(st, clk, logger)
	biddingSvc := bidding.NewService(st, clk, bidding.NopNotifier{}, collector, logger)
	hub := websocket.NewHub(logger, biddingSvc, cfg.Bidding.HubSendBuffer)
	hub.SetGauge(collector)
	biddingSvc.SetNotifier(hub)
	closingSvc := closing.NewService(st, clk, hub, invoicingSvc, collector, logger)
	importingSvc := importing.NewService(st, clk, logger)
	watchlistSvc := watchlist.NewService(st)

	scheduler := closing.NewScheduler(closingSvc, cfg.Closer.PollInterval, cfg.Closer.BatchSize, logger)
	go scheduler.Run(ctx)

	var limiter rest.Limiter
	if cfg.Security.RateLimit.Enabled {
		if cfg.Redis.URL != "" {
			redisClient := cache.NewClient(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
			defer func() { _ = redisClient.Close() }()
			limiter = cache.NewRateLimiter(redisClient, logger, cfg.Security.RateLimit.RequestsPerMinute)
		} else {
			limiter = rest.NewLocalLimiter(cfg.Security.RateLimit.RequestsPerMinute)
		}
	}

	handler := rest.NewHandler(biddingSvc, closingSvc, invoicingSvc, importingSvc, watchlistSvc, st, logger)
	auth := rest.NewAuthenticator(cfg.Security.JWTSecret, cfg.Security.TokenExpiry)
	wsHandler := websocket.NewHandler(hub, cfg.Bidding.HeartbeatInterval, logger)

	router := rest.NewRouter(rest.RouterDeps{
		Handler: handler,
		Auth:    auth,
		Limiter: limiter,
		Live:    wsHandler.ServeLive,
		Metrics: collector.Handler(),
		Ready:   pool.Ping,
		Logger:  logger,
	})
	server := rest.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
