package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/outbox"
	"github.com/angelmondragon/settlement-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/settlement-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Actor attributes a mutation in the status history.
type Actor struct {
	ID   *uuid.UUID
	Role enums.ActorRole
}

// SystemActor is used by webhook and cron driven mutations.
var SystemActor = Actor{Role: enums.ActorRoleSystem}

// Ref converts the actor into the outbox envelope form.
func (a Actor) Ref() *outbox.ActorRef {
	return &outbox.ActorRef{ActorID: a.ID, Role: string(a.role())}
}

func (a Actor) role() enums.ActorRole {
	if a.Role == "" {
		return enums.ActorRoleSystem
	}
	return a.Role
}

// TransitionInput requests an order status change.
type TransitionInput struct {
	OrderID uuid.UUID
	To      enums.OrderStatus
	Actor   Actor
	Note    string
	// CancelReason is stored on the order when To is cancelled.
	CancelReason string
	// At stamps shipped_at, delivered_at or cancelled_at. Defaults to now.
	At time.Time
}

// TransitionResult reports what the transition did.
type TransitionResult struct {
	Order   *models.Order
	From    enums.OrderStatus
	To      enums.OrderStatus
	Changed bool
}

// Service is the only mutator of order_status.
type Service interface {
	Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error)
	TransitionTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*TransitionResult, error)
	AppendNote(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor, note string) error
	Get(ctx context.Context, id uuid.UUID) (*OrderDetail, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	now    func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.TransitionTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", input.To))
	}

	repo := s.repo.WithTx(tx)
	order, err := repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, mapLookupError(err, "load order")
	}

	from := order.OrderStatus
	if from == input.To {
		return &TransitionResult{Order: order, From: from, To: input.To}, nil
	}
	if !IsValidTransition(from, input.To) {
		return nil, invalidTransition(order.ID, from, input.To)
	}

	at := input.At
	if at.IsZero() {
		at = s.now()
	}
	updates := map[string]any{"order_status": input.To}
	switch input.To {
	case enums.OrderStatusShipped:
		updates["shipped_at"] = gorm.Expr("COALESCE(shipped_at, ?)", at)
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = gorm.Expr("COALESCE(delivered_at, ?)", at)
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = at
		if reason := strings.TrimSpace(input.CancelReason); reason != "" {
			updates["cancel_reason"] = reason
		}
	}

	ok, err := repo.UpdateIfStatus(ctx, order.ID, from, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently").
			WithDetails(map[string]any{"order_id": order.ID, "expected": from, "target": input.To})
	}

	if err := repo.AppendHistory(ctx, historyRow(order.ID, input.To, order.PaymentStatus, input.Actor, input.Note)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         input.Actor.Ref(),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:       order.ID,
			SellerID:      order.SellerID,
			From:          from,
			To:            input.To,
			PaymentStatus: order.PaymentStatus,
			ActorRole:     input.Actor.role(),
			Note:          input.Note,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status event")
	}

	updated, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, mapLookupError(err, "reload order")
	}
	return &TransitionResult{Order: updated, From: from, To: input.To, Changed: true}, nil
}

func (s *service) AppendNote(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor, note string) error {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return mapLookupError(err, "load order")
	}
	if err := repo.AppendHistory(ctx, historyRow(order.ID, order.OrderStatus, order.PaymentStatus, actor, note)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*OrderDetail, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, "load order")
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order history")
	}
	detail := toDetail(*order, history)
	return &detail, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listParams{
		SellerID:      params.SellerID,
		BuyerID:       params.BuyerID,
		OrderStatus:   params.OrderStatus,
		PaymentStatus: params.PaymentStatus,
		PayoutStatus:  params.PayoutStatus,
		CreatedFrom:   params.CreatedFrom,
		CreatedTo:     params.CreatedTo,
		Limit:         params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	out := &ListResult{Orders: make([]OrderSummary, 0, len(rows))}
	for _, row := range rows {
		out.Orders = append(out.Orders, toSummary(row))
	}
	if next != nil {
		out.NextCursor = next.Encode()
	}
	return out, nil
}

func historyRow(orderID uuid.UUID, status enums.OrderStatus, payment enums.PaymentStatus, actor Actor, note string) *models.OrderStatusEvent {
	row := &models.OrderStatusEvent{
		OrderID:       orderID,
		Status:        status,
		PaymentStatus: payment,
		ActorID:       actor.ID,
		ActorRole:     actor.role(),
	}
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		row.Note = &trimmed
	}
	return row
}

func invalidTransition(orderID uuid.UUID, from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("order cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"order_id": orderID, "from": from, "to": to, "allowed": AllowedTransitions(from)})
}

func mapLookupError(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
