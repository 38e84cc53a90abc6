package shipments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

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

const rtoCancelReason = "returned to origin"

// RefundOutcome describes the money side of a return.
type RefundOutcome string

const (
	RefundNotApplicable RefundOutcome = "not_applicable"
	RefundCompleted     RefundOutcome = "refunded"
	RefundPending       RefundOutcome = "refund_pending"
)

// RTOOutcome reports what the return handler did to the order.
type RTOOutcome struct {
	OrderID uuid.UUID `json:"order_id"`
	// Skipped is set when the order was already closed.
	Skipped bool `json:"skipped"`
	// ReviewRequired is set when the order was delivered before the return.
	ReviewRequired bool          `json:"review_required"`
	Cancelled      bool          `json:"cancelled"`
	Restocked      bool          `json:"restocked"`
	Refund         RefundOutcome `json:"refund"`
	RefundID       string        `json:"refund_id,omitempty"`
}

type refunder interface {
	GetOrder(ctx context.Context, gatewayOrderID string) (*gateway.Order, error)
	ListPayments(ctx context.Context, gatewayOrderID string) ([]gateway.Payment, error)
	CreateRefund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*gateway.Refund, error)
}

type orderMutator interface {
	Transition(ctx context.Context, input orders.TransitionInput) (*orders.TransitionResult, error)
	AppendNote(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor, note string) error
}

type refundMetrics interface {
	Refund(outcome string)
}

// RTOHandler closes an order whose parcel came back. Steps run in sequence
// and each one commits on its own; a failed step is logged and the rest
// still run.
type RTOHandler struct {
	repo       Repository
	ordersRepo orders.Repository
	orders     orderMutator
	gateway    refunder
	tx         txRunner
	outbox     outboxPublisher
	dispatcher effectDispatcher
	logg       *logger.Logger
	metrics    refundMetrics
}

func (h *RTOHandler) Handle(ctx context.Context, orderID uuid.UUID) (*RTOOutcome, error) {
	ctx = h.logg.WithOrderID(ctx, orderID.String())
	order, err := h.ordersRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, lookupError(err, "order not found", "load order for return")
	}
	outcome := &RTOOutcome{OrderID: order.ID, Refund: RefundNotApplicable}

	switch order.OrderStatus {
	case enums.OrderStatusCancelled, enums.OrderStatusRefunded:
		outcome.Skipped = true
		return outcome, nil
	case enums.OrderStatusDelivered:
		outcome.ReviewRequired = true
		return outcome, h.reviewDelivered(ctx, order)
	}

	if _, err := h.orders.Transition(ctx, orders.TransitionInput{
		OrderID:      order.ID,
		To:           enums.OrderStatusCancelled,
		Actor:        orders.SystemActor,
		Note:         "carrier returned the parcel to origin",
		CancelReason: rtoCancelReason,
	}); err != nil {
		h.logg.Error(ctx, "cancel returned order", err)
		return outcome, err
	}
	outcome.Cancelled = true

	var errs error
	if err := h.restock(ctx, order); err != nil {
		errs = multierr.Append(errs, err)
		h.logg.Error(ctx, "restore stock for returned order", err)
	} else {
		outcome.Restocked = true
	}

	if order.PaymentStatus == enums.PaymentStatusPaid {
		var err error
		outcome.Refund, outcome.RefundID, err = h.refund(ctx, order)
		if err != nil {
			errs = multierr.Append(errs, err)
			h.logg.Error(ctx, "refund for returned order did not complete", err)
		}
	}

	h.notifyCancelled(ctx, order, outcome.Refund)
	if errs != nil {
		return outcome, pkgerrors.Wrap(pkgerrors.CodePartialFailure, errs, "return processed with failures")
	}
	return outcome, nil
}

func (h *RTOHandler) reviewDelivered(ctx context.Context, order *models.Order) error {
	h.logg.Warn(ctx, "return reported for a delivered order; left for review")
	err := h.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return h.orders.AppendNote(ctx, tx, order.ID, orders.SystemActor,
			"carrier reported return to origin after delivery; review required")
	})
	if err != nil {
		return err
	}
	seller, err := h.repo.FindSeller(ctx, order.SellerID)
	if err != nil {
		h.logg.Error(ctx, "load seller for return review", err)
		return nil
	}
	h.dispatch(ctx, effects.Notify(notifications.Notification{
		UserID:   seller.UserID,
		Role:     enums.ActorRoleSeller,
		Type:     enums.NotificationRTOAfterDelivery,
		Title:    "Return reported after delivery",
		Message:  fmt.Sprintf("The carrier reported order %s as returned after it was delivered. It is under review.", order.OrderNumber),
		Link:     orderLink(order.ID),
		Metadata: map[string]string{"order_id": order.ID.String()},
	}))
	return nil
}

func (h *RTOHandler) restock(ctx context.Context, order *models.Order) error {
	if len(order.Items) == 0 {
		return nil
	}
	var results []inventory.Result
	err := h.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		results, err = inventory.RestoreItems(ctx, tx, order.Items)
		return err
	})
	if err != nil {
		return err
	}
	for _, missed := range inventory.Shortfalls(results) {
		h.logg.Warn(h.logg.WithField(ctx, "product_id", missed.ProductID.String()), "returned item has no product to restock")
	}
	return nil
}

// refund re-reads the gateway before moving money and never refunds more
// than was captured. A failed request leaves the order refund_pending.
func (h *RTOHandler) refund(ctx context.Context, order *models.Order) (RefundOutcome, string, error) {
	refundID, amount, requestErr := h.requestRefund(ctx, order)
	outcome := RefundCompleted
	status := enums.PaymentStatusRefunded
	updates := map[string]any{"payment_status": status, "refund_id": refundID}
	if requestErr != nil {
		outcome = RefundPending
		status = enums.PaymentStatusRefundPending
		updates = map[string]any{"payment_status": status}
	}
	h.countRefund(string(status))

	recordErr := h.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := h.ordersRepo.WithTx(tx).UpdateIfPaymentStatus(ctx, order.ID, []enums.PaymentStatus{enums.PaymentStatusPaid}, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund state")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment status changed during refund")
		}
		return h.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         orders.SystemActor.Ref(),
			Data: payloads.OrderRefundedEvent{
				OrderID:       order.ID,
				RefundID:      refundID,
				Amount:        amount,
				PaymentStatus: status,
			},
		})
	})
	return outcome, refundID, multierr.Append(requestErr, recordErr)
}

func (h *RTOHandler) requestRefund(ctx context.Context, order *models.Order) (string, int64, error) {
	gwOrder, err := h.gateway.GetOrder(ctx, order.GatewayOrderID)
	if err != nil {
		return "", 0, fmt.Errorf("re-verify gateway order: %w", err)
	}
	paid := gwOrder.AmountPaid
	if paid == 0 && gwOrder.FullyPaid() {
		paid = gwOrder.Amount
	}
	amount := min(order.TotalAmount, paid)
	if amount <= 0 {
		return "", 0, pkgerrors.New(pkgerrors.CodeConflict, "gateway reports nothing captured to refund")
	}

	paymentID := ""
	if order.GatewayPaymentID != nil {
		paymentID = *order.GatewayPaymentID
	}
	if paymentID == "" {
		list, err := h.gateway.ListPayments(ctx, order.GatewayOrderID)
		if err != nil {
			return "", amount, fmt.Errorf("list gateway payments: %w", err)
		}
		captured, ok := gateway.CapturedPayment(list)
		if !ok {
			return "", amount, pkgerrors.New(pkgerrors.CodeConflict, "no captured payment to refund")
		}
		paymentID = captured.ID
	}

	refund, err := h.gateway.CreateRefund(ctx, paymentID, amount, map[string]string{
		"order_id": order.ID.String(),
		"reason":   rtoCancelReason,
	})
	if err != nil {
		return "", amount, fmt.Errorf("create refund: %w", err)
	}
	return refund.ID, amount, nil
}

func (h *RTOHandler) notifyCancelled(ctx context.Context, order *models.Order, refund RefundOutcome) {
	meta := map[string]string{"order_id": order.ID.String(), "reason": rtoCancelReason}
	effs := []effects.Effect{effects.Notify(notifications.Notification{
		UserID:   order.BuyerID,
		Role:     enums.ActorRoleBuyer,
		Type:     enums.NotificationOrderCancelled,
		Title:    "Order cancelled",
		Message:  fmt.Sprintf("Order %s was returned by the courier and has been cancelled.", order.OrderNumber),
		Link:     orderLink(order.ID),
		Metadata: meta,
	})}
	switch refund {
	case RefundCompleted:
		effs = append(effs, effects.Notify(notifications.Notification{
			UserID:   order.BuyerID,
			Role:     enums.ActorRoleBuyer,
			Type:     enums.NotificationRefundInitiated,
			Title:    "Refund initiated",
			Message:  fmt.Sprintf("A refund for order %s is on its way.", order.OrderNumber),
			Link:     orderLink(order.ID),
			Metadata: meta,
		}))
	case RefundPending:
		effs = append(effs, effects.Notify(notifications.Notification{
			UserID:   order.BuyerID,
			Role:     enums.ActorRoleBuyer,
			Type:     enums.NotificationRefundPending,
			Title:    "Refund pending",
			Message:  fmt.Sprintf("The refund for order %s is delayed and will be processed by our team.", order.OrderNumber),
			Link:     orderLink(order.ID),
			Metadata: meta,
		}))
	}
	if seller, err := h.repo.FindSeller(ctx, order.SellerID); err != nil {
		h.logg.Error(ctx, "load seller for return notification", err)
	} else {
		effs = append(effs, effects.Notify(notifications.Notification{
			UserID:   seller.UserID,
			Role:     enums.ActorRoleSeller,
			Type:     enums.NotificationOrderCancelled,
			Title:    "Order returned",
			Message:  fmt.Sprintf("Order %s was returned to origin and cancelled.", order.OrderNumber),
			Link:     orderLink(order.ID),
			Metadata: meta,
		}))
	}
	h.dispatch(ctx, effs...)
}

func (h *RTOHandler) dispatch(ctx context.Context, effs ...effects.Effect) {
	if h.dispatcher != nil && len(effs) > 0 {
		h.dispatcher.Dispatch(ctx, effs)
	}
}

func (h *RTOHandler) countRefund(outcome string) {
	if h.metrics != nil {
		h.metrics.Refund(outcome)
	}
}

func orderLink(id uuid.UUID) string {
	return "/orders/" + id.String()
}
