// Package shipments tracks carrier events and projects them onto orders.
package shipments

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/internal/effects"
	"github.com/angelmondragon/settlement-backend/internal/orders"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
	"github.com/angelmondragon/settlement-backend/pkg/outbox"
	"github.com/angelmondragon/settlement-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type effectDispatcher interface {
	Dispatch(ctx context.Context, effs []effects.Effect) effects.Report
}

type shipmentMetrics interface {
	Shipment(status string)
	Refund(outcome string)
}

// Result reports what one tracking event changed.
type Result struct {
	ShipmentID uuid.UUID            `json:"shipment_id,omitempty"`
	Ignored    bool                 `json:"ignored"`
	From       enums.ShipmentStatus `json:"from,omitempty"`
	To         enums.ShipmentStatus `json:"to,omitempty"`
	Changed    bool                 `json:"changed"`
	NewScans   int64                `json:"new_scans"`
	NDR        bool                 `json:"ndr"`
	RTO        *RTOOutcome          `json:"rto,omitempty"`
}

// Detail is a shipment with its scan history.
type Detail struct {
	Shipment models.Shipment       `json:"shipment"`
	Scans    []models.ShipmentScan `json:"scans"`
}

// Service consumes carrier tracking events.
type Service interface {
	HandleEvent(ctx context.Context, ev TrackingEvent) (*Result, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*Detail, error)
}

// ServiceParams wires the tracking service and its return handlers.
type ServiceParams struct {
	Repo              Repository
	OrdersRepo        orders.Repository
	Orders            orderMutator
	Gateway           refunder
	Outbox            outboxPublisher
	TransactionRunner txRunner
	Dispatcher        effectDispatcher
	Logger            *logger.Logger
	Metrics           shipmentMetrics
	Now               func() time.Time
}

type service struct {
	repo       Repository
	ordersRepo orders.Repository
	orders     orderMutator
	outbox     outboxPublisher
	tx         txRunner
	logg       *logger.Logger
	metrics    shipmentMetrics
	rto        *RTOHandler
	ndr        *NDRHandler
	now        func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("shipments repository required")
	case params.OrdersRepo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders service required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("gateway client required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.TransactionRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	var refunds refundMetrics
	if params.Metrics != nil {
		refunds = params.Metrics
	}
	return &service{
		repo:       params.Repo,
		ordersRepo: params.OrdersRepo,
		orders:     params.Orders,
		outbox:     params.Outbox,
		tx:         params.TransactionRunner,
		logg:       params.Logger,
		metrics:    params.Metrics,
		now:        now,
		rto: &RTOHandler{
			repo:       params.Repo,
			ordersRepo: params.OrdersRepo,
			orders:     params.Orders,
			gateway:    params.Gateway,
			tx:         params.TransactionRunner,
			outbox:     params.Outbox,
			dispatcher: params.Dispatcher,
			logg:       params.Logger,
			metrics:    refunds,
		},
		ndr: &NDRHandler{repo: params.Repo, dispatcher: params.Dispatcher, logg: params.Logger},
	}, nil
}

// VerifyToken authenticates a carrier webhook by its shared token.
func VerifyToken(expected, got string) error {
	if expected == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "carrier webhook token not configured")
	}
	got = strings.TrimSpace(got)
	if got == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return pkgerrors.New(pkgerrors.CodeUnauthenticated, "invalid carrier webhook token")
	}
	return nil
}

func (s *service) HandleEvent(ctx context.Context, ev TrackingEvent) (*Result, error) {
	shipment, err := s.resolve(ctx, ev)
	if err != nil {
		return nil, err
	}
	if shipment == nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"awb": ev.AWB, "carrier_order_id": ev.CarrierOrderID}),
			"tracking event for unknown shipment ignored")
		return &Result{Ignored: true}, nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"shipment_id": shipment.ID.String(),
		"order_id":    shipment.OrderID.String(),
	})

	mapping := MapCarrierStatus(ev.StatusCode)
	at := s.now()
	if ev.OccurredAt != nil {
		at = *ev.OccurredAt
	}
	result := &Result{ShipmentID: shipment.ID, From: shipment.Status, To: shipment.Status, NDR: mapping.NDR}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		inserted, err := repo.InsertScans(ctx, shipment.ID, ev.Scans)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record shipment scans")
		}
		result.NewScans = inserted

		if ev.EstimatedDelivery != nil {
			if err := repo.SetEstimatedDelivery(ctx, shipment.ID, *ev.EstimatedDelivery); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record estimated delivery")
			}
		}

		to := mapping.Status
		if to == "" {
			return nil
		}
		current, err := repo.FindByID(ctx, shipment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload shipment")
		}
		result.From, result.To = current.Status, current.Status
		if !CanAdvance(current.Status, to) {
			return nil
		}
		advanced, err := repo.Advance(ctx, shipment.ID, to, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance shipment status")
		}
		if !advanced {
			return nil
		}
		result.To, result.Changed = to, true

		awb := ""
		if current.AWB != nil {
			awb = *current.AWB
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventShipmentStatusChanged,
			AggregateType: enums.AggregateShipment,
			AggregateID:   shipment.ID,
			Actor:         orders.SystemActor.Ref(),
			Data: payloads.ShipmentStatusChangedEvent{
				ShipmentID: shipment.ID,
				OrderID:    shipment.OrderID,
				AWB:        awb,
				From:       result.From,
				To:         to,
				OccurredAt: at,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Changed && s.metrics != nil {
		s.metrics.Shipment(string(result.To))
	}
	if result.Changed || (mapping.NDR && result.NewScans > 0) {
		return result, s.project(ctx, shipment, result, at, ev)
	}
	if mapping.NDR {
		return result, nil
	}
	return result, s.reproject(ctx, shipment, result, at, ev)
}

// reproject catches the order up when an earlier projection failed after the
// shipment status had already committed.
func (s *service) reproject(ctx context.Context, shipment *models.Shipment, result *Result, at time.Time, ev TrackingEvent) error {
	order, err := s.ordersRepo.FindByID(ctx, shipment.OrderID)
	if err != nil {
		return lookupError(err, "order not found", "load order for shipment")
	}
	if !orderLags(result.To, order.OrderStatus) {
		return nil
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"shipment_status": string(result.To),
		"order_status":    string(order.OrderStatus),
	}), "order lags its shipment; projecting again")
	return s.project(ctx, shipment, result, at, ev)
}

// project applies the shipment change to the owning order. Order moves that
// the status machine refuses are skipped, not reported.
func (s *service) project(ctx context.Context, shipment *models.Shipment, result *Result, at time.Time, ev TrackingEvent) error {
	order, err := s.ordersRepo.FindByID(ctx, shipment.OrderID)
	if err != nil {
		return lookupError(err, "order not found", "load order for shipment")
	}

	if result.NDR {
		s.ndr.Handle(ctx, order, shipment, ndrDetail(ev))
		return nil
	}

	switch {
	case isInFlight(result.To):
		if order.OrderStatus == enums.OrderStatusConfirmed || order.OrderStatus == enums.OrderStatusProcessing {
			return s.stepOrder(ctx, order.ID, enums.OrderStatusShipped, at, "carrier picked up the parcel")
		}
	case result.To == enums.ShipmentStatusDelivered:
		var errs error
		if order.OrderStatus == enums.OrderStatusConfirmed || order.OrderStatus == enums.OrderStatusProcessing {
			errs = multierr.Append(errs, s.stepOrder(ctx, order.ID, enums.OrderStatusShipped, at, "carrier reported delivery"))
		}
		errs = multierr.Append(errs, s.stepOrder(ctx, order.ID, enums.OrderStatusDelivered, at, "carrier reported delivery"))
		return errs
	case IsAbsorbing(result.To):
		outcome, err := s.rto.Handle(ctx, order.ID)
		result.RTO = outcome
		return err
	}
	return nil
}

func (s *service) stepOrder(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus, at time.Time, note string) error {
	_, err := s.orders.Transition(ctx, orders.TransitionInput{
		OrderID: orderID,
		To:      to,
		Actor:   orders.SystemActor,
		Note:    note,
		At:      at,
	})
	if pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		s.logg.Warn(s.logg.WithField(ctx, "target_status", string(to)), "order projection skipped by status machine")
		return nil
	}
	return err
}

func (s *service) resolve(ctx context.Context, ev TrackingEvent) (*models.Shipment, error) {
	if ev.AWB != "" {
		shipment, err := s.repo.FindByAWB(ctx, ev.AWB)
		if err == nil {
			return shipment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find shipment by awb")
		}
	}
	if ev.CarrierOrderID != "" {
		shipment, err := s.repo.FindByCarrierOrderID(ctx, ev.CarrierOrderID)
		if err == nil {
			return shipment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find shipment by carrier order id")
		}
	}
	return nil, nil
}

func (s *service) GetByOrder(ctx context.Context, orderID uuid.UUID) (*Detail, error) {
	shipment, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, lookupError(err, "shipment not found", "load shipment")
	}
	scans, err := s.repo.Scans(ctx, shipment.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment scans")
	}
	return &Detail{Shipment: *shipment, Scans: scans}, nil
}

func ndrDetail(ev TrackingEvent) string {
	if len(ev.Scans) > 0 {
		return ev.Scans[len(ev.Scans)-1].Description
	}
	return ev.StatusLabel
}

func lookupError(err error, notFoundMsg, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
