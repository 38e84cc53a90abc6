package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/settlement-backend/internal/app"
	"github.com/angelmondragon/settlement-backend/internal/cron"
	"github.com/angelmondragon/settlement-backend/pkg/config"
	"github.com/angelmondragon/settlement-backend/pkg/db"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
	"github.com/angelmondragon/settlement-backend/pkg/metrics"
	"github.com/angelmondragon/settlement-backend/pkg/migrate"
	"github.com/angelmondragon/settlement-backend/pkg/redis"
)

const serviceName = "cron-worker"

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
	cfg.Service.Kind = serviceName
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      logger.Format(cfg.App.LogFormat),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceName})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker stopped cleanly")
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

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), 0)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	services, err := app.Build(ctx, cfg, logg, dbClient, redisClient, metrics.NewSettlementMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	jobs, err := buildJobs(cfg, logg, dbClient, services)
	if err != nil {
		return err
	}
	registry, err := cron.NewRegistry(jobs...)
	if err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	logg.Info(logg.WithField(ctx, "jobs", len(jobs)), "cron worker starting")
	return service.Run(ctx)
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", what), "close failed", err)
	}
}

// lockName scopes the worker lease per environment so staging and prod can
// share a redis.
func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, services *app.Services) ([]cron.Job, error) {
	payoutBatch, err := cron.NewPayoutBatchJob(cron.PayoutBatchJobParams{
		Logger:   logg,
		Payouts:  services.Payouts,
		Settings: services.Settings,
		Interval: cfg.Payouts.CronInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("payout batch job: %w", err)
	}
	linkingRecovery, err := cron.NewLinkingRecoveryJob(cron.LinkingRecoveryJobParams{
		Logger:     logg,
		Payouts:    services.Payouts,
		StaleAfter: cfg.Payouts.LinkingStaleAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("linking recovery job: %w", err)
	}
	reconciliation, err := cron.NewReconciliationJob(cron.ReconciliationJobParams{
		Logger:   logg,
		Reporter: services.Reconciliation,
	})
	if err != nil {
		return nil, fmt.Errorf("reconciliation job: %w", err)
	}
	checkoutExpiry, err := cron.NewCheckoutExpiryJob(cron.CheckoutExpiryJobParams{
		Logger:      logg,
		Orders:      services.OrdersRepo,
		Payments:    services.Payments,
		Transitions: services.Orders,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout expiry job: %w", err)
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:              logg,
		DB:                  dbClient,
		Events:              services.OutboxRepo,
		DeadLetters:         services.DeadLetterRepo,
		Retention:           cfg.Outbox.Retention,
		DeadLetterRetention: cfg.Outbox.DeadLetterRetention,
		MaxAttempts:         cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	return []cron.Job{payoutBatch, linkingRecovery, reconciliation, checkoutExpiry, outboxRetention}, nil
}
