// Package payments confirms gateway payments against the sibling orders of a checkout.
package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/internal/coupons"
	"github.com/angelmondragon/settlement-backend/internal/effects"
	"github.com/angelmondragon/settlement-backend/internal/inventory"
	"github.com/angelmondragon/settlement-backend/internal/notifications"
	"github.com/angelmondragon/settlement-backend/internal/orders"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/gateway"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
	"github.com/angelmondragon/settlement-backend/pkg/outbox"
	"github.com/angelmondragon/settlement-backend/pkg/outbox/payloads"
)

// AmountTolerance absorbs rounding between the gateway total and the order sum.
const AmountTolerance int64 = 100

// Reason explains why a confirmation processed nothing.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonAlreadyPaid    Reason = "already_paid"
	ReasonAmountMismatch Reason = "amount_mismatch"
	ReasonGatewayNotPaid Reason = "gateway_not_paid"
	ReasonNoOrders       Reason = "no_orders"
	ReasonIgnoredEvent   Reason = "ignored_event"
)

// Summary is the outcome of one confirmation.
type Summary struct {
	GatewayOrderID string   `json:"gateway_order_id"`
	Matched        int      `json:"matched"`
	Processed      int      `json:"processed"`
	AlreadyPaid    int      `json:"already_paid"`
	Reason         Reason   `json:"reason,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// Delivery is an unauthenticated push as received over HTTP.
type Delivery struct {
	Timestamp string
	Signature string
	Body      []byte
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type gatewayReader interface {
	GetOrder(ctx context.Context, gatewayOrderID string) (*gateway.Order, error)
	ListPayments(ctx context.Context, gatewayOrderID string) ([]gateway.Payment, error)
}

type orderTransitioner interface {
	TransitionTx(ctx context.Context, tx *gorm.DB, input orders.TransitionInput) (*orders.TransitionResult, error)
	AppendNote(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor, note string) error
}

type effectDispatcher interface {
	Dispatch(ctx context.Context, effs []effects.Effect) effects.Report
}

type paymentMetrics interface {
	Payment(outcome string)
}

// Service confirms payments from pushes and polls.
type Service interface {
	Authenticate(delivery Delivery) (Notification, error)
	HandleWebhook(ctx context.Context, delivery Delivery) (*Summary, error)
	HandleNotification(ctx context.Context, n Notification) (*Summary, error)
	Verify(ctx context.Context, gatewayOrderID string) (*Summary, error)
}

// ServiceParams wires the confirmation service.
type ServiceParams struct {
	Repo              Repository
	OrdersRepo        orders.Repository
	Orders            orderTransitioner
	Gateway           gatewayReader
	Outbox            outboxPublisher
	TransactionRunner txRunner
	Dispatcher        effectDispatcher
	Logger            *logger.Logger
	Metrics           paymentMetrics
	WebhookSecret     string
	ReplayTolerance   time.Duration
	Now               func() time.Time
}

type service struct {
	repo            Repository
	ordersRepo      orders.Repository
	orders          orderTransitioner
	gateway         gatewayReader
	outbox          outboxPublisher
	tx              txRunner
	dispatcher      effectDispatcher
	logg            *logger.Logger
	metrics         paymentMetrics
	secret          string
	replayTolerance time.Duration
	now             func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	}
	if params.OrdersRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway client required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:            params.Repo,
		ordersRepo:      params.OrdersRepo,
		orders:          params.Orders,
		gateway:         params.Gateway,
		outbox:          params.Outbox,
		tx:              params.TransactionRunner,
		dispatcher:      params.Dispatcher,
		logg:            params.Logger,
		metrics:         params.Metrics,
		secret:          params.WebhookSecret,
		replayTolerance: params.ReplayTolerance,
		now:             now,
	}, nil
}

// Authenticate verifies the raw delivery before anything is parsed and
// returns the typed notification.
func (s *service) Authenticate(delivery Delivery) (Notification, error) {
	if err := VerifySignature(s.secret, delivery.Timestamp, delivery.Signature, delivery.Body); err != nil {
		return Notification{}, err
	}
	if err := CheckReplayWindow(delivery.Timestamp, s.replayTolerance, s.now()); err != nil {
		return Notification{}, err
	}
	return ParseNotification(delivery.Body)
}

func (s *service) HandleWebhook(ctx context.Context, delivery Delivery) (*Summary, error) {
	n, err := s.Authenticate(delivery)
	if err != nil {
		return nil, err
	}
	return s.HandleNotification(ctx, n)
}

func (s *service) HandleNotification(ctx context.Context, n Notification) (*Summary, error) {
	if !n.Confirms() {
		s.logg.Debug(s.logg.WithField(ctx, "gateway_event", n.Event), "gateway event ignored")
		return &Summary{GatewayOrderID: n.GatewayOrderID, Reason: ReasonIgnoredEvent}, nil
	}
	return s.confirm(ctx, n.GatewayOrderID, n.PaymentID)
}

func (s *service) Verify(ctx context.Context, gatewayOrderID string) (*Summary, error) {
	if gatewayOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id required")
	}
	return s.confirm(ctx, gatewayOrderID, "")
}

type orderResult struct {
	alreadyPaid bool
	// transitionErr is set when payment was recorded but the order could not
	// move to confirmed.
	transitionErr error
	shortfalls    []inventory.Result
}

func (s *service) confirm(ctx context.Context, gatewayOrderID, paymentID string) (*Summary, error) {
	ctx = s.logg.WithField(ctx, "gateway_order_id", gatewayOrderID)
	summary := &Summary{GatewayOrderID: gatewayOrderID}

	gwOrder, err := s.gateway.GetOrder(ctx, gatewayOrderID)
	if err != nil {
		return nil, upstreamError(err, "fetch gateway order")
	}
	if !gwOrder.FullyPaid() {
		summary.Reason = ReasonGatewayNotPaid
		s.count(string(ReasonGatewayNotPaid))
		return summary, nil
	}

	siblings, err := s.ordersRepo.ListByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load orders for gateway order")
	}
	summary.Matched = len(siblings)
	if len(siblings) == 0 {
		summary.Reason = ReasonNoOrders
		s.count(string(ReasonNoOrders))
		s.logg.Warn(ctx, "gateway order has no local orders")
		return summary, nil
	}

	if err := checkAmount(siblings, paidAmount(gwOrder)); err != nil {
		summary.Reason = ReasonAmountMismatch
		s.count(string(ReasonAmountMismatch))
		s.logg.Error(ctx, "gateway amount does not match order totals", err)
		return summary, err
	}

	if paymentID == "" {
		paymentID = s.capturedPaymentID(ctx, gatewayOrderID)
	}
	paidAt := s.now()

	var (
		errs      error
		effs      []effects.Effect
		processed []models.Order
	)
	for _, order := range siblings {
		if order.PaymentStatus == enums.PaymentStatusPaid {
			summary.AlreadyPaid++
			continue
		}
		orderCtx := s.logg.WithOrderID(ctx, order.ID.String())
		res, err := s.confirmOrder(orderCtx, order, paymentID, paidAt)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			s.logg.Error(orderCtx, "payment confirmation failed for order", err)
			s.count("failed")
			continue
		}
		if res.alreadyPaid {
			summary.AlreadyPaid++
			continue
		}
		summary.Processed++
		s.count("processed")
		processed = append(processed, order)
		if res.transitionErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, res.transitionErr))
			continue
		}
		effs = append(effs, s.confirmationEffects(orderCtx, order)...)
	}

	if len(processed) > 0 {
		if err := s.redeemCoupon(ctx, processed, gatewayOrderID); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if summary.Processed == 0 && errs == nil {
		summary.Reason = ReasonAlreadyPaid
		s.count(string(ReasonAlreadyPaid))
	}

	if s.dispatcher != nil && len(effs) > 0 {
		s.dispatcher.Dispatch(ctx, effs)
	}

	if errs != nil {
		for _, e := range multierr.Errors(errs) {
			summary.Errors = append(summary.Errors, e.Error())
		}
		return summary, pkgerrors.Wrap(pkgerrors.CodePartialFailure, errs, "some orders could not be confirmed").
			WithDetails(map[string]any{"errors": summary.Errors})
	}
	return summary, nil
}

// confirmOrder flips one order to paid inside its own transaction.
func (s *service) confirmOrder(ctx context.Context, order models.Order, paymentID string, paidAt time.Time) (orderResult, error) {
	var res orderResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res = orderResult{}

		updates := map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"paid_at":        paidAt,
		}
		if paymentID != "" {
			updates["gateway_payment_id"] = paymentID
		}
		flipped, err := s.ordersRepo.WithTx(tx).UpdateIfPaymentStatus(ctx, order.ID,
			[]enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed}, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !flipped {
			res.alreadyPaid = true
			return nil
		}

		_, err = s.orders.TransitionTx(ctx, tx, orders.TransitionInput{
			OrderID: order.ID,
			To:      enums.OrderStatusConfirmed,
			Actor:   orders.SystemActor,
			Note:    "payment confirmed",
			At:      paidAt,
		})
		switch {
		case pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition):
			res.transitionErr = err
			note := fmt.Sprintf("payment recorded; order left %s", order.OrderStatus)
			// The order will not ship, so stock and seller sales stay untouched.
			return s.orders.AppendNote(ctx, tx, order.ID, orders.SystemActor, note)
		case err != nil:
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         orders.SystemActor.Ref(),
			Data: payloads.OrderPaidEvent{
				OrderID:          order.ID,
				OrderNumber:      order.OrderNumber,
				BuyerID:          order.BuyerID,
				SellerID:         order.SellerID,
				GatewayOrderID:   order.GatewayOrderID,
				GatewayPaymentID: paymentID,
				TotalAmount:      order.TotalAmount,
				SellerNetAmount:  order.SellerNetAmount,
				PaidAt:           paidAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order paid event")
		}

		results, err := inventory.DecrementItems(ctx, tx, order.Items)
		if err != nil {
			return err
		}
		res.shortfalls = inventory.Shortfalls(results)

		if err := s.repo.WithTx(tx).IncrementSellerCounters(ctx, order.SellerID, order.TotalAmount); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment seller counters")
		}
		return nil
	})
	if err != nil {
		return orderResult{}, err
	}
	for _, short := range res.shortfalls {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"product_id": short.ProductID.String(),
			"quantity":   short.Qty,
			"reason":     short.Reason,
		}), "stock shortfall on paid order")
	}
	return res, nil
}

func (s *service) confirmationEffects(ctx context.Context, order models.Order) []effects.Effect {
	link := "/orders/" + order.ID.String()
	effs := []effects.Effect{effects.Notify(notifications.Notification{
		UserID:   order.BuyerID,
		Role:     enums.ActorRoleBuyer,
		Type:     enums.NotificationOrderConfirmed,
		Title:    "Order confirmed",
		Message:  fmt.Sprintf("Your payment for order %s was received.", order.OrderNumber),
		Link:     link,
		Metadata: map[string]string{"order_id": order.ID.String()},
	})}

	seller, err := s.repo.FindSeller(ctx, order.SellerID)
	if err != nil {
		s.logg.Error(ctx, "load seller for new order notification", err)
		return effs
	}
	return append(effs, effects.Notify(notifications.Notification{
		UserID:   seller.UserID,
		Role:     enums.ActorRoleSeller,
		Type:     enums.NotificationNewOrder,
		Title:    "New order",
		Message:  fmt.Sprintf("Order %s is paid and ready to fulfil.", order.OrderNumber),
		Link:     link,
		Metadata: map[string]string{"order_id": order.ID.String()},
	}))
}

// redeemCoupon claims the coupon once for the whole gateway order.
func (s *service) redeemCoupon(ctx context.Context, processed []models.Order, gatewayOrderID string) error {
	var holder *models.Order
	for i := range processed {
		if processed[i].CouponCode != nil && *processed[i].CouponCode != "" {
			holder = &processed[i]
			break
		}
	}
	if holder == nil {
		return nil
	}
	var outcome coupons.Outcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		outcome, err = coupons.Redeem(ctx, tx, *holder.CouponCode, holder.BuyerID, gatewayOrderID)
		return err
	})
	if err != nil {
		return fmt.Errorf("redeem coupon %s: %w", *holder.CouponCode, err)
	}
	if outcome != coupons.OutcomeRedeemed && outcome != coupons.OutcomeAlreadyRedeemed {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"coupon": *holder.CouponCode,
			"result": string(outcome),
		}), "coupon not redeemed for paid order")
	}
	return nil
}

func (s *service) capturedPaymentID(ctx context.Context, gatewayOrderID string) string {
	payments, err := s.gateway.ListPayments(ctx, gatewayOrderID)
	if err != nil {
		s.logg.Warn(ctx, "list gateway payments failed; payment id left empty")
		return ""
	}
	if p, ok := gateway.CapturedPayment(payments); ok {
		return p.ID
	}
	return ""
}

func (s *service) count(outcome string) {
	if s.metrics != nil {
		s.metrics.Payment(outcome)
	}
}

func paidAmount(o *gateway.Order) int64 {
	if o.AmountPaid > 0 {
		return o.AmountPaid
	}
	return o.Amount
}

func checkAmount(siblings []models.Order, paid int64) error {
	var expected int64
	for _, o := range siblings {
		expected += o.TotalAmount
	}
	diff := expected - paid
	if diff < 0 {
		diff = -diff
	}
	if diff > AmountTolerance {
		return pkgerrors.New(pkgerrors.CodeAmountMismatch, "gateway amount does not match order totals").
			WithDetails(map[string]any{"expected": expected, "paid": paid})
	}
	return nil
}

func upstreamError(err error, msg string) error {
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, msg)
}
