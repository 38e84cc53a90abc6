// Package reconciliation audits the order, shipment and payout graph and
// reports defects. It never mutates anything.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/internal/payouts"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

// DefectKind names one class of finding.
type DefectKind string

const (
	DefectMissingPayoutRef  DefectKind = "missing_payout_ref"
	DefectDanglingPayoutRef DefectKind = "dangling_payout_ref"

	DefectUnlinkedRef      DefectKind = "unlinked_order_ref"
	DefectUnexpectedLink   DefectKind = "unexpected_order_link"
	DefectNetMismatch      DefectKind = "net_payout_mismatch"
	DefectPaidOrderUnpaid  DefectKind = "paid_order_unpaid_payout"
	DefectPaidPayoutUnpaid DefectKind = "paid_payout_unpaid_order"

	StuckLinkingIntent   DefectKind = "linking_intent"
	StuckRefundPending   DefectKind = "refund_pending"
	StuckCancelledPaid   DefectKind = "cancelled_but_paid"
	StuckPayoutOnHold    DefectKind = "payout_on_hold"
	StuckShipmentOutlier DefectKind = "shipment_order_divergence"
)

// StatusTotal is a count and sums for one status value.
type StatusTotal struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
	Amount int64  `json:"amount"`
	Net    int64  `json:"net"`
}

// Orphan is a swept order whose payout reference does not resolve.
type Orphan struct {
	Kind         DefectKind              `json:"kind"`
	OrderID      uuid.UUID               `json:"order_id"`
	OrderNumber  string                  `json:"order_number"`
	SellerID     uuid.UUID               `json:"seller_id"`
	PayoutID     *uuid.UUID              `json:"payout_id,omitempty"`
	PayoutStatus enums.OrderPayoutStatus `json:"payout_status"`
}

// Mismatch is a disagreement between a payout and its orders.
type Mismatch struct {
	Kind     DefectKind `json:"kind"`
	PayoutID uuid.UUID  `json:"payout_id"`
	OrderID  *uuid.UUID `json:"order_id,omitempty"`
	Expected *int64     `json:"expected,omitempty"`
	Actual   *int64     `json:"actual,omitempty"`
	Detail   string     `json:"detail"`
}

// Stuck is a record parked in an intermediate state that needs a person.
type Stuck struct {
	Kind   DefectKind `json:"kind"`
	ID     uuid.UUID  `json:"id"`
	Since  time.Time  `json:"since"`
	Detail string     `json:"detail"`
}

// Report is one full audit.
type Report struct {
	GeneratedAt     time.Time     `json:"generated_at"`
	OrdersByPayout  []StatusTotal `json:"orders_by_payout_status"`
	PayoutsByStatus []StatusTotal `json:"payouts_by_status"`
	Orphans         []Orphan      `json:"orphans"`
	Mismatches      []Mismatch    `json:"mismatches"`
	Stuck           []Stuck       `json:"stuck"`
}

// Counts groups every finding by kind.
func (r *Report) Counts() map[DefectKind]int {
	out := map[DefectKind]int{}
	for _, o := range r.Orphans {
		out[o.Kind]++
	}
	for _, m := range r.Mismatches {
		out[m.Kind]++
	}
	for _, s := range r.Stuck {
		out[s.Kind]++
	}
	return out
}

// Clean reports whether the audit found no integrity defect. Stuck
// records are expected operational backlog and do not count.
func (r *Report) Clean() bool {
	return len(r.Orphans) == 0 && len(r.Mismatches) == 0
}

type defectMetrics interface {
	Defects(kind string, count int)
}

// Service builds reconciliation reports.
type Service interface {
	Report(ctx context.Context) (*Report, error)
}

type Option func(*service)

// WithLinkingGrace sets how long a linking intent may stay open before it is reported.
func WithLinkingGrace(d time.Duration) Option {
	return func(s *service) { s.linkingGrace = d }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *service) { s.logg = l }
}

func WithMetrics(m defectMetrics) Option {
	return func(s *service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

type service struct {
	repo         Repository
	logg         *logger.Logger
	metrics      defectMetrics
	linkingGrace time.Duration
	now          func() time.Time
}

func NewService(repo Repository, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reconciliation repository required")
	}
	s := &service{
		repo:         repo,
		linkingGrace: 15 * time.Minute,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) Report(ctx context.Context) (*Report, error) {
	report := &Report{
		GeneratedAt: s.now(),
		Orphans:     []Orphan{},
		Mismatches:  []Mismatch{},
		Stuck:       []Stuck{},
	}

	var err error
	if report.OrdersByPayout, err = s.repo.OrderTotals(ctx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum orders by payout status")
	}
	if report.PayoutsByStatus, err = s.repo.PayoutTotals(ctx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum payouts by status")
	}

	orphans, err := s.repo.OrphanOrders(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find orphan orders")
	}
	for _, row := range orphans {
		kind := DefectDanglingPayoutRef
		if row.PayoutID == nil {
			kind = DefectMissingPayoutRef
		}
		report.Orphans = append(report.Orphans, Orphan{
			Kind:         kind,
			OrderID:      row.ID,
			OrderNumber:  row.OrderNumber,
			SellerID:     row.SellerID,
			PayoutID:     row.PayoutID,
			PayoutStatus: row.PayoutStatus,
		})
	}

	payoutRows, err := s.repo.Payouts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payouts")
	}
	settled, err := s.repo.SettledOrders(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settled orders")
	}
	report.Mismatches, report.Stuck = s.auditPayouts(payoutRows, settled)

	stuckOrders, err := s.repo.StuckOrders(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stuck orders")
	}
	for _, o := range stuckOrders {
		item := Stuck{Kind: StuckRefundPending, ID: o.ID, Since: o.UpdatedAt, Detail: "order " + o.OrderNumber + " awaits a manual refund"}
		if o.PaymentStatus == enums.PaymentStatusPaid {
			item.Kind = StuckCancelledPaid
			item.Detail = "order " + o.OrderNumber + " is cancelled but its payment was never refunded"
		}
		report.Stuck = append(report.Stuck, item)
	}

	divergent, err := s.repo.DivergentShipments(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load divergent shipments")
	}
	for _, row := range divergent {
		report.Stuck = append(report.Stuck, Stuck{
			Kind:   StuckShipmentOutlier,
			ID:     row.ShipmentID,
			Since:  row.UpdatedAt,
			Detail: fmt.Sprintf("shipment is %s but order %s is %s", row.ShipmentStatus, row.OrderID, row.OrderStatus),
		})
	}

	s.record(ctx, report)
	return report, nil
}

// auditPayouts compares each payout with the orders that point back at it.
func (s *service) auditPayouts(payoutRows []models.SellerPayout, settled []models.Order) ([]Mismatch, []Stuck) {
	byPayout := make(map[uuid.UUID][]models.Order)
	for _, o := range settled {
		if o.PayoutID != nil {
			byPayout[*o.PayoutID] = append(byPayout[*o.PayoutID], o)
		}
	}

	mismatches := []Mismatch{}
	stuck := []Stuck{}
	cutoff := s.now().Add(-s.linkingGrace)
	for _, p := range payoutRows {
		if p.Status == enums.PayoutStatusOnHold {
			reason := ""
			if p.HoldReason != nil {
				reason = string(*p.HoldReason)
			}
			stuck = append(stuck, Stuck{Kind: StuckPayoutOnHold, ID: p.ID, Since: p.UpdatedAt, Detail: "on hold: " + reason})
		}
		if p.LinkState == enums.PayoutLinkLinking {
			if !p.UpdatedAt.After(cutoff) {
				stuck = append(stuck, Stuck{
					Kind:   StuckLinkingIntent,
					ID:     p.ID,
					Since:  p.UpdatedAt,
					Detail: fmt.Sprintf("payout still linking %d referenced orders", len(p.OrderRefs)),
				})
			}
			continue
		}

		linked := byPayout[p.ID]
		linkedIDs := make(map[uuid.UUID]struct{}, len(linked))
		for _, o := range linked {
			linkedIDs[o.ID] = struct{}{}
		}
		refs := make(map[uuid.UUID]struct{}, len(p.OrderRefs))
		complete := true
		for _, ref := range p.OrderRefs {
			refs[ref] = struct{}{}
			if _, ok := linkedIDs[ref]; !ok {
				complete = false
				mismatches = append(mismatches, Mismatch{
					Kind: DefectUnlinkedRef, PayoutID: p.ID, OrderID: uuidPtr(ref),
					Detail: "payout references an order that is not linked back to it",
				})
			}
		}

		for _, o := range linked {
			if _, ok := refs[o.ID]; !ok {
				complete = false
				mismatches = append(mismatches, Mismatch{
					Kind: DefectUnexpectedLink, PayoutID: p.ID, OrderID: uuidPtr(o.ID),
					Detail: "order points at a payout that does not reference it",
				})
			}
			switch {
			case o.PayoutStatus == enums.OrderPayoutStatusPaid && p.Status != enums.PayoutStatusPaid:
				mismatches = append(mismatches, Mismatch{
					Kind: DefectPaidOrderUnpaid, PayoutID: p.ID, OrderID: uuidPtr(o.ID),
					Detail: "order marked paid while its payout is " + string(p.Status),
				})
			case o.PayoutStatus != enums.OrderPayoutStatusPaid && p.Status == enums.PayoutStatusPaid:
				mismatches = append(mismatches, Mismatch{
					Kind: DefectPaidPayoutUnpaid, PayoutID: p.ID, OrderID: uuidPtr(o.ID),
					Detail: "payout is paid but order is still " + string(o.PayoutStatus),
				})
			}
		}

		if complete {
			expected := payouts.Aggregate(linked).NetPayout
			if expected != p.NetPayout {
				actual := p.NetPayout
				mismatches = append(mismatches, Mismatch{
					Kind: DefectNetMismatch, PayoutID: p.ID, Expected: &expected, Actual: &actual,
					Detail: "stored net payout differs from the linked orders",
				})
			}
		}
	}
	return mismatches, stuck
}

func (s *service) record(ctx context.Context, report *Report) {
	counts := report.Counts()
	if s.metrics != nil {
		for _, kind := range allKinds {
			s.metrics.Defects(string(kind), counts[kind])
		}
	}
	if s.logg == nil {
		return
	}
	fields := map[string]any{
		"orphans":    len(report.Orphans),
		"mismatches": len(report.Mismatches),
		"stuck":      len(report.Stuck),
	}
	logCtx := s.logg.WithFields(ctx, fields)
	if report.Clean() {
		s.logg.Info(logCtx, "reconciliation clean")
		return
	}
	s.logg.Warn(logCtx, "reconciliation found integrity defects")
}

var allKinds = []DefectKind{
	DefectMissingPayoutRef, DefectDanglingPayoutRef,
	DefectUnlinkedRef, DefectUnexpectedLink, DefectNetMismatch, DefectPaidOrderUnpaid, DefectPaidPayoutUnpaid,
	StuckLinkingIntent, StuckRefundPending, StuckCancelledPaid, StuckPayoutOnHold, StuckShipmentOutlier,
}

func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }
