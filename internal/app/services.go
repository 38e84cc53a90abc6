// Package app builds the settlement service graph shared by the api and
// cron-worker binaries.
package app

import (
	"context"
	"fmt"

	"github.com/angelmondragon/settlement-backend/internal/checkout"
	"github.com/angelmondragon/settlement-backend/internal/effects"
	"github.com/angelmondragon/settlement-backend/internal/notifications"
	"github.com/angelmondragon/settlement-backend/internal/orders"
	"github.com/angelmondragon/settlement-backend/internal/payments"
	"github.com/angelmondragon/settlement-backend/internal/payouts"
	"github.com/angelmondragon/settlement-backend/internal/reconciliation"
	"github.com/angelmondragon/settlement-backend/internal/sellers"
	"github.com/angelmondragon/settlement-backend/internal/settings"
	"github.com/angelmondragon/settlement-backend/internal/shipments"
	"github.com/angelmondragon/settlement-backend/pkg/carrier"
	"github.com/angelmondragon/settlement-backend/pkg/config"
	"github.com/angelmondragon/settlement-backend/pkg/db"
	"github.com/angelmondragon/settlement-backend/pkg/gateway"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
	"github.com/angelmondragon/settlement-backend/pkg/metrics"
	"github.com/angelmondragon/settlement-backend/pkg/outbox"
	"github.com/angelmondragon/settlement-backend/pkg/redis"
)

// Services is the wired settlement pipeline.
type Services struct {
	OrdersRepo     orders.Repository
	OutboxRepo     *outbox.Repository
	DeadLetterRepo *outbox.DeadLetterRepository
	Orders         orders.Service
	Payments       payments.Service
	Shipments      shipments.Service
	Booker         *shipments.Booker
	Payouts        payouts.Service
	Sellers        sellers.Service
	Settings       *settings.Service
	Checkout       checkout.Service
	Reconciliation reconciliation.Service
	DeadLetters    *outbox.DeadLetters
	Metrics        *metrics.SettlementMetrics
}

// Build wires every settlement service against one database and redis
// client. redisClient may be nil; settings then cache in process only.
func Build(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, settlementMetrics *metrics.SettlementMetrics) (*Services, error) {
	if cfg == nil || logg == nil || dbClient == nil {
		return nil, fmt.Errorf("config, logger and database are required")
	}
	conn := dbClient.DB()

	gatewayClient, err := gateway.NewClient(cfg.Gateway.KeyID, cfg.Gateway.KeySecret,
		gateway.WithBaseURL(cfg.Gateway.BaseURL),
		gateway.WithCurrency(cfg.Gateway.Currency),
		gateway.WithTimeout(cfg.Gateway.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("gateway client: %w", err)
	}
	carrierClient, err := carrier.NewClient(cfg.Carrier.APIToken,
		carrier.WithBaseURL(cfg.Carrier.BaseURL),
		carrier.WithPickupLocation(cfg.Carrier.PickupLocation),
		carrier.WithTimeout(cfg.Carrier.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("carrier client: %w", err)
	}

	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	notifier, err := notifications.NewOutboxNotifier(dbClient, outboxSvc)
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}
	dispatcher := effects.NewDispatcher(notifier, logg, settlementMetrics)

	var remote settings.RemoteCache
	if redisClient != nil {
		remote = redisClient
	}
	settingsSvc, err := settings.NewService(settings.NewRepository(conn), remote, cfg.Settings.CacheTTL, logg)
	if err != nil {
		return nil, fmt.Errorf("settings service: %w", err)
	}

	ordersRepo := orders.NewRepository(conn)
	ordersSvc, err := orders.NewService(ordersRepo, dbClient, outboxSvc)
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repo:              payments.NewRepository(conn),
		OrdersRepo:        ordersRepo,
		Orders:            ordersSvc,
		Gateway:           gatewayClient,
		Outbox:            outboxSvc,
		TransactionRunner: dbClient,
		Dispatcher:        dispatcher,
		Logger:            logg,
		Metrics:           settlementMetrics,
		WebhookSecret:     cfg.Gateway.WebhookSecret,
		ReplayTolerance:   cfg.Gateway.ReplayTolerance,
	})
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}

	shipmentsRepo := shipments.NewRepository(conn)
	shipmentsSvc, err := shipments.NewService(shipments.ServiceParams{
		Repo:              shipmentsRepo,
		OrdersRepo:        ordersRepo,
		Orders:            ordersSvc,
		Gateway:           gatewayClient,
		Outbox:            outboxSvc,
		TransactionRunner: dbClient,
		Dispatcher:        dispatcher,
		Logger:            logg,
		Metrics:           settlementMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("shipments service: %w", err)
	}
	booker, err := shipments.NewBooker(shipmentsRepo, ordersRepo, ordersSvc, carrierClient, dbClient, logg)
	if err != nil {
		return nil, fmt.Errorf("shipment booker: %w", err)
	}

	payoutOpts := []payouts.Option{
		payouts.WithDispatcher(dispatcher),
		payouts.WithLogger(logg),
		payouts.WithMetrics(settlementMetrics),
	}
	if !cfg.Payouts.Atomic {
		payoutOpts = append(payoutOpts, payouts.WithSequentialLinking())
	}
	payoutsSvc, err := payouts.NewService(payouts.NewRepository(conn), dbClient, outboxSvc, settingsSvc, payoutOpts...)
	if err != nil {
		return nil, fmt.Errorf("payouts service: %w", err)
	}

	sellersSvc, err := sellers.NewService(sellers.NewRepository(conn), payoutsSvc, logg)
	if err != nil {
		return nil, fmt.Errorf("sellers service: %w", err)
	}

	checkoutSvc, err := checkout.NewService(dbClient, checkout.NewRepository(conn), ordersRepo, settingsSvc, gatewayClient)
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}

	reconSvc, err := reconciliation.NewService(reconciliation.NewRepository(conn),
		reconciliation.WithLogger(logg),
		reconciliation.WithMetrics(settlementMetrics),
		reconciliation.WithLinkingGrace(cfg.Payouts.LinkingStaleAfter),
	)
	if err != nil {
		return nil, fmt.Errorf("reconciliation service: %w", err)
	}

	deadLetterRepo := outbox.NewDeadLetterRepository(conn)
	deadLetters, err := outbox.NewDeadLetters(deadLetterRepo, dbClient, logg)
	if err != nil {
		return nil, fmt.Errorf("dead letters: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"payouts_atomic": cfg.Payouts.Atomic,
			"gateway_base":   cfg.Gateway.BaseURL,
			"carrier_base":   cfg.Carrier.BaseURL,
		}), "settlement services wired")
	}

	return &Services{
		OrdersRepo:     ordersRepo,
		OutboxRepo:     outboxRepo,
		DeadLetterRepo: deadLetterRepo,
		Orders:         ordersSvc,
		Payments:       paymentsSvc,
		Shipments:      shipmentsSvc,
		Booker:         booker,
		Payouts:        payoutsSvc,
		Sellers:        sellersSvc,
		Settings:       settingsSvc,
		Checkout:       checkoutSvc,
		Reconciliation: reconSvc,
		DeadLetters:    deadLetters,
		Metrics:        settlementMetrics,
	}, nil
}
