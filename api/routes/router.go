package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/api/controllers"
	admincontrollers "github.com/angelmondragon/settlement-backend/api/controllers/admin"
	ordercontrollers "github.com/angelmondragon/settlement-backend/api/controllers/orders"
	sellercontrollers "github.com/angelmondragon/settlement-backend/api/controllers/sellers"
	webhookcontrollers "github.com/angelmondragon/settlement-backend/api/controllers/webhooks"
	"github.com/angelmondragon/settlement-backend/api/middleware"
	"github.com/angelmondragon/settlement-backend/internal/checkout"
	"github.com/angelmondragon/settlement-backend/internal/orders"
	"github.com/angelmondragon/settlement-backend/internal/payments"
	"github.com/angelmondragon/settlement-backend/internal/payouts"
	"github.com/angelmondragon/settlement-backend/internal/reconciliation"
	"github.com/angelmondragon/settlement-backend/internal/sellers"
	"github.com/angelmondragon/settlement-backend/internal/settings"
	"github.com/angelmondragon/settlement-backend/internal/shipments"
	"github.com/angelmondragon/settlement-backend/pkg/config"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
	"github.com/angelmondragon/settlement-backend/pkg/outbox"
)

// Store is the redis surface the HTTP layer needs for throttling and
// request idempotency.
type Store interface {
	middleware.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(policy, subject string) string
}

// DeliveryGuard dedupes webhook deliveries.
type DeliveryGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type settingsService interface {
	Current(ctx context.Context) (settings.View, error)
	Update(ctx context.Context, input settings.UpdateInput) (settings.View, error)
}

type shipmentBooker interface {
	Book(ctx context.Context, input shipments.BookInput) (*models.Shipment, error)
}

type deadLetterService interface {
	List(ctx context.Context, params outbox.DeadLetterListParams) (*outbox.DeadLetterPage, error)
	Replay(ctx context.Context, eventID uuid.UUID) (*outbox.DeadLetterView, error)
}

type webhookMetrics interface {
	Webhook(source, outcome string)
}

type requestMetrics interface {
	Request(method, route string, status int, took time.Duration)
}

// Params carries everything the router mounts.
type Params struct {
	Config  *config.Config
	Logger  *logger.Logger
	Store   Store
	Ready   map[string]controllers.Pinger
	Metrics http.Handler

	Checkout       checkout.Service
	Orders         orders.Service
	Payments       payments.Service
	Payouts        payouts.Service
	Sellers        sellers.Service
	Shipments      shipments.Service
	Booker         shipmentBooker
	Settings       settingsService
	Reconciliation reconciliation.Service
	DeadLetters    deadLetterService

	PaymentGuard    DeliveryGuard
	CarrierGuard    DeliveryGuard
	WebhookCounters webhookMetrics
	HTTPMetrics     requestMetrics
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.AccessLog(logg, p.HTTPMetrics),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.Ready, logg))
	})
	if p.Metrics != nil {
		r.Handle("/metrics", p.Metrics)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	webhookPolicy := middleware.NewRateLimitPolicy("webhooks", cfg.RateLimit.WebhookWindow, cfg.RateLimit.WebhookIPLimit)
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, p.Store, logg))
		r.Post("/payments", webhookcontrollers.PaymentWebhook(p.Payments, p.PaymentGuard, p.WebhookCounters, logg))
		r.Post("/carrier", webhookcontrollers.CarrierWebhook(p.Shipments, cfg.Carrier.WebhookToken, p.CarrierGuard, p.WebhookCounters, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth, logg))
		standard := middleware.Idempotent(p.Store, middleware.IdempotencyStandard, logg)
		critical := middleware.Idempotent(p.Store, middleware.IdempotencyCritical, logg)

		r.Get("/api/v1/ping", controllers.ActorPing())
		r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer), critical).
			Post("/api/v1/checkout", controllers.Checkout(p.Checkout, logg))

		r.Route("/api/v1/seller", func(r chi.Router) {
			r.Use(
				middleware.RequireRole(logg, enums.ActorRoleSeller),
				middleware.SellerContext(p.Sellers, logg),
			)
			r.Get("/me", sellercontrollers.Me(p.Sellers, logg))
			r.With(standard).Put("/me/bank-details", sellercontrollers.SaveBankDetails(p.Sellers, logg))
			r.Get("/orders", ordercontrollers.List(p.Orders, logg))
			r.Get("/orders/{orderId}", ordercontrollers.Detail(p.Orders, logg))
			r.With(critical).Post("/orders/{orderId}/shipment", ordercontrollers.BookShipment(p.Booker, logg))
			r.Get("/orders/{orderId}/shipment", ordercontrollers.Shipment(p.Orders, p.Shipments, logg))
		})

		r.Route("/api/admin/v1", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))

			r.Get("/orders", admincontrollers.ListOrders(p.Orders, logg))
			r.Get("/orders/{orderId}", admincontrollers.GetOrder(p.Orders, logg))
			r.With(standard).Post("/orders/{orderId}/status", admincontrollers.UpdateOrderStatus(p.Orders, logg))

			r.Post("/payments/{gatewayOrderId}/verify", admincontrollers.VerifyPayment(p.Payments, logg))

			r.Get("/payouts", admincontrollers.ListPayouts(p.Payouts, logg))
			r.With(standard).Post("/payouts/calculate", admincontrollers.CalculatePayouts(p.Payouts, logg))
			r.Get("/payouts/{payoutId}", admincontrollers.GetPayout(p.Payouts, logg))
			r.With(critical).Post("/payouts/{payoutId}/processing", admincontrollers.MarkPayoutProcessing(p.Payouts, logg))
			r.With(critical).Post("/payouts/{payoutId}/paid", admincontrollers.MarkPayoutPaid(p.Payouts, logg))
			r.With(critical).Post("/payouts/{payoutId}/failed", admincontrollers.MarkPayoutFailed(p.Payouts, logg))
			r.With(critical).Post("/payouts/{payoutId}/retry", admincontrollers.RetryPayout(p.Payouts, logg))

			r.Get("/reconciliation", admincontrollers.ReconciliationReport(p.Reconciliation, logg))

			r.Get("/settings", admincontrollers.GetSettings(p.Settings, logg))
			r.With(standard).Put("/settings", admincontrollers.UpdateSettings(p.Settings, logg))

			r.Get("/outbox/dead-letters", admincontrollers.ListDeadLetters(p.DeadLetters, logg))
			r.With(standard).Post("/outbox/dead-letters/{eventId}/replay", admincontrollers.ReplayDeadLetter(p.DeadLetters, logg))
		})
	})

	return r
}
