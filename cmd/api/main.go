package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/settlement-backend/api/controllers"
	"github.com/angelmondragon/settlement-backend/api/routes"
	"github.com/angelmondragon/settlement-backend/internal/app"
	"github.com/angelmondragon/settlement-backend/internal/webhooks"
	"github.com/angelmondragon/settlement-backend/pkg/config"
	"github.com/angelmondragon/settlement-backend/pkg/db"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
	"github.com/angelmondragon/settlement-backend/pkg/metrics"
	"github.com/angelmondragon/settlement-backend/pkg/migrate"
	"github.com/angelmondragon/settlement-backend/pkg/redis"
)

const (
	serviceName       = "api"
	shutdownTimeout   = 20 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      logger.Format(cfg.App.LogFormat),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instanceID(),
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "api stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	services, err := app.Build(ctx, cfg, logg, dbClient, redisClient, settlementMetrics)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	paymentGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Gateway.WebhookDedupTTL, "gateway")
	if err != nil {
		return fmt.Errorf("gateway webhook guard: %w", err)
	}
	carrierGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Carrier.WebhookDedupTTL, "carrier")
	if err != nil {
		return fmt.Errorf("carrier webhook guard: %w", err)
	}

	handler := routes.NewRouter(routes.Params{
		Config:  cfg,
		Logger:  logg,
		Store:   redisClient,
		Ready:   map[string]controllers.Pinger{"db": dbClient, "redis": redisClient},
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),

		Checkout:       services.Checkout,
		Orders:         services.Orders,
		Payments:       services.Payments,
		Payouts:        services.Payouts,
		Sellers:        services.Sellers,
		Shipments:      services.Shipments,
		Booker:         services.Booker,
		Settings:       services.Settings,
		Reconciliation: services.Reconciliation,
		DeadLetters:    services.DeadLetters,

		PaymentGuard:    paymentGuard,
		CarrierGuard:    carrierGuard,
		WebhookCounters: settlementMetrics,
		HTTPMetrics:     metrics.NewHTTPMetrics(registry),
	})

	return serve(ctx, logg, &http.Server{
		Addr:              ":" + listenPort(cfg),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	})
}

// serve blocks until the server fails or ctx is cancelled, then drains
// in-flight requests for up to shutdownTimeout.
func serve(ctx context.Context, logg *logger.Logger, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", server.Addr), "api listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// listenPort prefers the platform-assigned PORT.
func listenPort(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return cfg.App.Port
}

func instanceID() string {
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	return "local"
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", what), "close failed", err)
	}
}
