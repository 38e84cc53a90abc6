package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/settlement-backend/internal/orders"
	"github.com/angelmondragon/settlement-backend/internal/payments"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

const (
	defaultCheckoutExpiry = 24 * time.Hour
	expiredCancelReason   = "payment not completed"
)

type unpaidOrderReader interface {
	FindUnpaidBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
}

type paymentVerifier interface {
	Verify(ctx context.Context, gatewayOrderID string) (*payments.Summary, error)
}

type orderCanceller interface {
	Transition(ctx context.Context, input orders.TransitionInput) (*orders.TransitionResult, error)
}

// CheckoutExpiryJobParams configure expiry of abandoned checkouts.
type CheckoutExpiryJobParams struct {
	Logger      *logger.Logger
	Orders      unpaidOrderReader
	Payments    paymentVerifier
	Transitions orderCanceller
	ExpireAfter time.Duration
}

func NewCheckoutExpiryJob(params CheckoutExpiryJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payment verifier required")
	case params.Transitions == nil:
		return nil, fmt.Errorf("orders service required")
	}
	expireAfter := params.ExpireAfter
	if expireAfter <= 0 {
		expireAfter = defaultCheckoutExpiry
	}
	return &checkoutExpiryJob{
		logg:        params.Logger,
		orders:      params.Orders,
		payments:    params.Payments,
		transitions: params.Transitions,
		expireAfter: expireAfter,
		now:         time.Now,
	}, nil
}

type checkoutExpiryJob struct {
	logg        *logger.Logger
	orders      unpaidOrderReader
	payments    paymentVerifier
	transitions orderCanceller
	expireAfter time.Duration
	now         func() time.Time
}

func (j *checkoutExpiryJob) Name() string { return "checkout-expiry" }

func (j *checkoutExpiryJob) Every() time.Duration { return time.Hour }

// Run polls the gateway once per stale checkout before cancelling it, so a
// lost payment webhook confirms the orders instead of expiring them.
func (j *checkoutExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.expireAfter)
	stale, err := j.orders.FindUnpaidBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query unpaid orders: %w", err)
	}

	var errs error
	var recovered, expired, held int
	for gatewayOrderID, group := range groupByGatewayOrder(stale) {
		groupCtx := j.logg.WithField(ctx, "gateway_order_id", gatewayOrderID)
		summary, err := j.payments.Verify(groupCtx, gatewayOrderID)
		switch {
		case pkgerrors.HasCode(err, pkgerrors.CodeAmountMismatch):
			held++
			j.logg.Warn(groupCtx, "stale checkout has an amount mismatch; left for review")
			continue
		case err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
			errs = multierr.Append(errs, fmt.Errorf("verify %s: %w", gatewayOrderID, err))
			continue
		case summary != nil && (summary.Processed > 0 || summary.AlreadyPaid > 0):
			recovered++
			j.logg.Info(groupCtx, "late payment recovered for stale checkout")
			continue
		}

		for _, order := range group {
			_, err := j.transitions.Transition(groupCtx, orders.TransitionInput{
				OrderID:      order.ID,
				To:           enums.OrderStatusCancelled,
				Actor:        orders.SystemActor,
				Note:         "checkout expired unpaid",
				CancelReason: expiredCancelReason,
			})
			switch {
			case pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition), pkgerrors.HasCode(err, pkgerrors.CodeConflict):
				continue
			case err != nil:
				errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
				continue
			}
			expired++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"stale":     len(stale),
		"recovered": recovered,
		"expired":   expired,
		"held":      held,
	}), "checkout expiry complete")
	return errs
}

func groupByGatewayOrder(rows []models.Order) map[string][]models.Order {
	out := make(map[string][]models.Order)
	for _, o := range rows {
		out[o.GatewayOrderID] = append(out[o.GatewayOrderID], o)
	}
	return out
}
