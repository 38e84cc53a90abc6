package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/internal/effects"
	"github.com/angelmondragon/settlement-backend/internal/notifications"
	"github.com/angelmondragon/settlement-backend/internal/settings"
	"github.com/angelmondragon/settlement-backend/pkg/db"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
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

type settingsReader interface {
	Current(ctx context.Context) (settings.View, error)
}

type effectDispatcher interface {
	Dispatch(ctx context.Context, effs []effects.Effect) effects.Report
}

type payoutMetrics interface {
	Payout(status string)
}

// Service runs the payout batch engine and the admin payout lifecycle.
type Service interface {
	CalculatePayouts(ctx context.Context, periodStart, periodEnd time.Time) (*BatchResult, error)
	RecoverLinking(ctx context.Context, staleAfter time.Duration) (*RecoveryResult, error)
	MarkProcessing(ctx context.Context, payoutID uuid.UUID) (*PayoutView, error)
	MarkPaid(ctx context.Context, payoutID uuid.UUID, transactionID string) (*PayoutView, error)
	MarkFailed(ctx context.Context, payoutID uuid.UUID, reason string) (*PayoutView, error)
	Retry(ctx context.Context, payoutID uuid.UUID) (*PayoutView, error)
	ReleaseBankHolds(ctx context.Context, sellerID uuid.UUID) (int, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Get(ctx context.Context, payoutID uuid.UUID) (*PayoutView, error)
}

// Option customizes the service.
type Option func(*service)

// WithSequentialLinking switches from one transaction per seller group to the
// write-ahead linking path.
func WithSequentialLinking() Option {
	return func(s *service) { s.atomic = false }
}

func WithDispatcher(d effectDispatcher) Option {
	return func(s *service) { s.dispatcher = d }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *service) { s.logg = l }
}

func WithMetrics(m payoutMetrics) Option {
	return func(s *service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

type service struct {
	repo       Repository
	tx         txRunner
	outbox     outboxPublisher
	settings   settingsReader
	dispatcher effectDispatcher
	logg       *logger.Logger
	metrics    payoutMetrics
	atomic     bool
	now        func() time.Time
}

// NewService builds the payout service with the required dependencies.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, settingsSvc settingsReader, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if settingsSvc == nil {
		return nil, fmt.Errorf("settings reader required")
	}
	s := &service{
		repo:     repo,
		tx:       tx,
		outbox:   publisher,
		settings: settingsSvc,
		atomic:   true,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Totals is the aggregate of one seller group.
type Totals struct {
	TotalSales          int64
	CommissionDeducted  int64
	GatewayFeesDeducted int64
	ShippingDeducted    int64
	NetPayout           int64
}

// Aggregate sums a seller group. Net payout is floored at zero.
func Aggregate(orders []models.Order) Totals {
	var t Totals
	var sellerNet int64
	for _, o := range orders {
		t.TotalSales += o.TotalAmount
		t.CommissionDeducted += o.CommissionAmount
		t.GatewayFeesDeducted += o.GatewayFeeAmount
		t.ShippingDeducted += o.SellerShippingCharge
		sellerNet += o.SellerNetAmount
	}
	t.NetPayout = sellerNet - t.ShippingDeducted
	if t.NetPayout < 0 {
		t.NetPayout = 0
	}
	return t
}

var (
	errLinkConflict  = errors.New("orders changed while linking payout")
	errPeriodOverlap = errors.New("payout period overlaps an existing payout")
	errLinkSettled   = errors.New("payout changed while settling its links")
)

const reasonNothingLinked = "none of the referenced orders could be linked"

// periodConstraint keeps a seller's payout periods disjoint in postgres.
const periodConstraint = "ex_seller_payouts_period"

type sellerGroup struct {
	sellerID uuid.UUID
	orders   []models.Order
}

func groupBySeller(orders []models.Order) []sellerGroup {
	index := map[uuid.UUID]int{}
	var groups []sellerGroup
	for _, o := range orders {
		i, ok := index[o.SellerID]
		if !ok {
			i = len(groups)
			index[o.SellerID] = i
			groups = append(groups, sellerGroup{sellerID: o.SellerID})
		}
		groups[i].orders = append(groups[i].orders, o)
	}
	return groups
}

func (s *service) CalculatePayouts(ctx context.Context, periodStart, periodEnd time.Time) (*BatchResult, error) {
	if periodStart.IsZero() || periodEnd.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "period start and end required")
	}
	periodStart, periodEnd = periodStart.UTC(), periodEnd.UTC()
	if periodEnd.Before(periodStart) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "period end must not be before period start")
	}

	current, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	eligible, err := s.repo.EligibleOrders(ctx, periodStart, periodEnd)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load eligible orders")
	}
	groups := groupBySeller(eligible)

	sellerIDs := make([]uuid.UUID, 0, len(groups))
	for _, g := range groups {
		sellerIDs = append(sellerIDs, g.sellerID)
	}
	sellers, err := s.repo.FindSellers(ctx, sellerIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sellers")
	}

	result := &BatchResult{PeriodStart: periodStart, PeriodEnd: periodEnd, Created: []PayoutView{}}
	var effs []effects.Effect
	var groupErrs error
	for _, g := range groups {
		groupCtx := ctx
		if s.logg != nil {
			groupCtx = s.logg.WithSellerID(ctx, g.sellerID.String())
		}

		seller, ok := sellers[g.sellerID]
		if !ok {
			result.Failed++
			groupErrs = multierr.Append(groupErrs, fmt.Errorf("seller %s: not found", g.sellerID))
			continue
		}

		payout := s.buildPayout(seller, g.orders, periodStart, periodEnd, current.MinimumPayoutAmount)
		if s.atomic {
			err = s.createAtomic(groupCtx, payout)
		} else {
			err = s.createSequential(groupCtx, payout, current.MinimumPayoutAmount)
		}
		switch {
		case errors.Is(err, errPeriodOverlap):
			result.SkippedDuplicate++
			s.warn(groupCtx, "payout period overlaps an existing payout; seller skipped")
			continue
		case errors.Is(err, errLinkConflict):
			result.Conflicts++
			s.warn(groupCtx, "eligible orders changed during payout linking; group rolled back")
			continue
		case err != nil:
			result.Failed++
			groupErrs = multierr.Append(groupErrs, fmt.Errorf("seller %s: %w", g.sellerID, err))
			continue
		}

		result.Processed++
		result.Created = append(result.Created, toView(*payout))
		s.countPayout(payout.Status)
		if payout.Status == enums.PayoutStatusOnHold {
			effs = append(effs, effects.Notify(onHoldNotification(seller, *payout)))
		}
	}

	for _, e := range multierr.Errors(groupErrs) {
		result.Errors = append(result.Errors, e.Error())
	}
	if groupErrs != nil && s.logg != nil {
		s.logg.Error(ctx, "payout batch finished with group failures", groupErrs)
	}
	s.dispatch(ctx, effs)
	return result, nil
}

func (s *service) buildPayout(seller models.Seller, orders []models.Order, start, end time.Time, minimum int64) *models.SellerPayout {
	totals := Aggregate(orders)
	refs := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		refs = append(refs, o.ID)
	}
	payout := &models.SellerPayout{
		ID:                  uuid.New(),
		SellerID:            seller.ID,
		PeriodStart:         start,
		PeriodEnd:           end,
		OrderRefs:           refs,
		TotalSales:          totals.TotalSales,
		CommissionDeducted:  totals.CommissionDeducted,
		GatewayFeesDeducted: totals.GatewayFeesDeducted,
		ShippingDeducted:    totals.ShippingDeducted,
		NetPayout:           totals.NetPayout,
		Status:              enums.PayoutStatusPending,
		LinkState:           enums.PayoutLinkLinked,
	}
	switch {
	case !seller.Bank.IsComplete():
		payout.Status = enums.PayoutStatusOnHold
		payout.HoldReason = holdReason(enums.PayoutHoldMissingBankDetails)
	default:
		bank := seller.Bank
		payout.BankDetailsSnapshot = &bank
		if totals.NetPayout < minimum {
			payout.Status = enums.PayoutStatusOnHold
			payout.HoldReason = holdReason(enums.PayoutHoldBelowMinimum)
		}
	}
	return payout
}

// claimPeriod inserts the payout while holding the seller row, so two runs
// can never both see a free period for the same seller.
func (s *service) claimPeriod(ctx context.Context, repo Repository, payout *models.SellerPayout) error {
	if err := repo.LockSeller(ctx, payout.SellerID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock seller")
	}
	overlap, err := repo.HasOverlap(ctx, payout.SellerID, payout.PeriodStart, payout.PeriodEnd)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "overlap check")
	}
	if overlap {
		return errPeriodOverlap
	}
	if err := repo.Create(ctx, payout); err != nil {
		if db.IsExclusionViolation(err, periodConstraint) {
			return errPeriodOverlap
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
	}
	return nil
}

func (s *service) createAtomic(ctx context.Context, payout *models.SellerPayout) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.claimPeriod(ctx, repo, payout); err != nil {
			return err
		}
		linked, err := repo.LinkOrders(ctx, payout.ID, payout.OrderRefs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link payout orders")
		}
		if linked != int64(len(payout.OrderRefs)) {
			return errLinkConflict
		}
		return s.emitCreated(ctx, tx, payout)
	})
}

// createSequential writes the payout as a linking intent first so a crash
// between the two writes is finished by RecoverLinking.
func (s *service) createSequential(ctx context.Context, payout *models.SellerPayout, minimum int64) error {
	payout.LinkState = enums.PayoutLinkLinking
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.claimPeriod(ctx, s.repo.WithTx(tx), payout)
	})
	if err != nil {
		return err
	}

	complete, err := s.finishLinking(ctx, payout, minimum)
	switch {
	case errors.Is(err, errLinkSettled):
	case err != nil:
		s.logError(ctx, "payout left in linking state", err)
	case !complete:
		s.warn(s.withPayout(ctx, payout.ID), "payout repriced to the orders it could link")
	}
	return nil
}

// finishLinking attaches the referenced orders and settles the payout on what
// actually linked. Orders already taken by another payout drop out of the refs
// and totals; a payout left with no orders fails so it can never be paid.
func (s *service) finishLinking(ctx context.Context, payout *models.SellerPayout, minimum int64) (bool, error) {
	var complete bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.LinkOrders(ctx, payout.ID, payout.OrderRefs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link payout orders")
		}
		linked, err := repo.LinkedOrders(ctx, payout.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load linked orders")
		}
		settled := *payout
		complete = len(linked) == len(payout.OrderRefs)
		if !complete {
			reprice(&settled, linked, minimum)
		}
		ok, err := repo.SettleLinking(ctx, &settled, payout.Status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle payout linking")
		}
		if !ok {
			return errLinkSettled
		}
		settled.LinkState = enums.PayoutLinkLinked
		if err := s.emitCreated(ctx, tx, &settled); err != nil {
			return err
		}
		*payout = settled
		return nil
	})
	return complete, err
}

func reprice(payout *models.SellerPayout, linked []models.Order, minimum int64) {
	totals := Aggregate(linked)
	refs := make([]uuid.UUID, 0, len(linked))
	for _, o := range linked {
		refs = append(refs, o.ID)
	}
	payout.OrderRefs = refs
	payout.TotalSales = totals.TotalSales
	payout.CommissionDeducted = totals.CommissionDeducted
	payout.GatewayFeesDeducted = totals.GatewayFeesDeducted
	payout.ShippingDeducted = totals.ShippingDeducted
	payout.NetPayout = totals.NetPayout

	switch {
	case len(linked) == 0:
		reason := reasonNothingLinked
		payout.Status = enums.PayoutStatusFailed
		payout.HoldReason = nil
		payout.FailureReason = &reason
	case payout.Status == enums.PayoutStatusPending && totals.NetPayout < minimum:
		payout.Status = enums.PayoutStatusOnHold
		payout.HoldReason = holdReason(enums.PayoutHoldBelowMinimum)
	}
}

func (s *service) emitCreated(ctx context.Context, tx *gorm.DB, payout *models.SellerPayout) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutCreated,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Actor:         &outbox.ActorRef{Role: string(enums.ActorRoleSystem)},
		Data: payloads.PayoutCreatedEvent{
			PayoutID:    payout.ID,
			SellerID:    payout.SellerID,
			PeriodStart: payout.PeriodStart,
			PeriodEnd:   payout.PeriodEnd,
			OrderCount:  len(payout.OrderRefs),
			NetPayout:   payout.NetPayout,
			Status:      payout.Status,
			HoldReason:  payout.HoldReason,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payout created event")
	}
	return nil
}

func (s *service) RecoverLinking(ctx context.Context, staleAfter time.Duration) (*RecoveryResult, error) {
	if staleAfter < 0 {
		staleAfter = 0
	}
	current, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	stuck, err := s.repo.StaleLinking(ctx, s.now().Add(-staleAfter))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load linking payouts")
	}

	result := &RecoveryResult{}
	for i := range stuck {
		payout := &stuck[i]
		result.Examined++
		payoutCtx := s.withPayout(ctx, payout.ID)
		complete, err := s.finishLinking(payoutCtx, payout, current.MinimumPayoutAmount)
		switch {
		case errors.Is(err, errLinkSettled):
			continue
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("payout %s: %v", payout.ID, err))
			s.logError(payoutCtx, "linking recovery failed", err)
			continue
		}
		result.Completed++
		if !complete {
			result.Partial++
			s.warn(payoutCtx, "linking recovery repriced the payout to the orders it could attach")
		}
	}
	return result, nil
}

func (s *service) MarkProcessing(ctx context.Context, payoutID uuid.UUID) (*PayoutView, error) {
	payout, err := s.load(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if err := s.guardTransition(payout, enums.PayoutStatusProcessing); err != nil {
		return nil, err
	}
	ok, err := s.repo.UpdateIfStatus(ctx, payoutID, []enums.PayoutStatus{payout.Status}, map[string]any{
		"status": enums.PayoutStatusProcessing,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout")
	}
	if !ok {
		return nil, concurrentChange(payoutID)
	}
	s.countPayout(enums.PayoutStatusProcessing)
	return s.Get(ctx, payoutID)
}

func (s *service) MarkPaid(ctx context.Context, payoutID uuid.UUID, transactionID string) (*PayoutView, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	payout, err := s.load(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status == enums.PayoutStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "payout already paid").
			WithDetails(map[string]any{"payout_id": payoutID})
	}
	if err := s.guardTransition(payout, enums.PayoutStatusPaid); err != nil {
		return nil, err
	}
	if payout.LinkState != enums.PayoutLinkLinked {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payout orders are still being linked").
			WithDetails(map[string]any{"payout_id": payoutID})
	}
	if len(payout.OrderRefs) == 0 {
		return nil, nothingToSettle(payoutID)
	}

	paidAt := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateIfStatus(ctx, payoutID, sourcesOf(enums.PayoutStatusPaid), map[string]any{
			"status":         enums.PayoutStatusPaid,
			"paid_at":        paidAt,
			"transaction_id": transactionID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout")
		}
		if !ok {
			return concurrentChange(payoutID)
		}
		if _, err := repo.MarkOrdersPaid(ctx, payoutID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payout orders paid")
		}
		return s.emit(ctx, tx, enums.EventPayoutPaid, payoutID, payloads.PayoutPaidEvent{
			PayoutID:      payoutID,
			SellerID:      payout.SellerID,
			TransactionID: transactionID,
			NetPayout:     payout.NetPayout,
			PaidAt:        paidAt,
		})
	})
	if err != nil {
		return nil, err
	}

	s.countPayout(enums.PayoutStatusPaid)
	if seller, err := s.repo.FindSeller(ctx, payout.SellerID); err == nil {
		s.dispatch(ctx, []effects.Effect{effects.Notify(notifications.Notification{
			UserID:   seller.UserID,
			Role:     enums.ActorRoleSeller,
			Type:     enums.NotificationPayoutPaid,
			Title:    "Payout sent",
			Message:  fmt.Sprintf("Your payout of %d has been transferred (ref %s).", payout.NetPayout, transactionID),
			Link:     payoutLink(payoutID),
			Metadata: map[string]string{"payout_id": payoutID.String()},
		})})
	}
	return s.Get(ctx, payoutID)
}

func (s *service) MarkFailed(ctx context.Context, payoutID uuid.UUID, reason string) (*PayoutView, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "failure reason required")
	}
	payout, err := s.load(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if err := s.guardTransition(payout, enums.PayoutStatusFailed); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateIfStatus(ctx, payoutID, []enums.PayoutStatus{payout.Status}, map[string]any{
			"status":         enums.PayoutStatusFailed,
			"failure_reason": reason,
			"retry_count":    gorm.Expr("retry_count + 1"),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout")
		}
		if !ok {
			return concurrentChange(payoutID)
		}
		return s.emit(ctx, tx, enums.EventPayoutFailed, payoutID, payloads.PayoutFailedEvent{
			PayoutID:   payoutID,
			SellerID:   payout.SellerID,
			Reason:     reason,
			RetryCount: payout.RetryCount + 1,
		})
	})
	if err != nil {
		return nil, err
	}

	s.countPayout(enums.PayoutStatusFailed)
	if seller, err := s.repo.FindSeller(ctx, payout.SellerID); err == nil {
		s.dispatch(ctx, []effects.Effect{effects.Notify(notifications.Notification{
			UserID:   seller.UserID,
			Role:     enums.ActorRoleSeller,
			Type:     enums.NotificationPayoutFailed,
			Title:    "Payout failed",
			Message:  "Your payout could not be transferred: " + reason,
			Link:     payoutLink(payoutID),
			Metadata: map[string]string{"payout_id": payoutID.String()},
		})})
	}
	return s.Get(ctx, payoutID)
}

// Retry re-snapshots the seller's bank details and moves the payout back to pending.
func (s *service) Retry(ctx context.Context, payoutID uuid.UUID) (*PayoutView, error) {
	payout, err := s.load(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != enums.PayoutStatusFailed && payout.Status != enums.PayoutStatusOnHold {
		return nil, invalidTransition(payout, enums.PayoutStatusPending)
	}
	if len(payout.OrderRefs) == 0 {
		return nil, nothingToSettle(payoutID)
	}
	seller, err := s.repo.FindSeller(ctx, payout.SellerID)
	if err != nil {
		return nil, mapLookupError(err, "seller not found", "load seller")
	}
	if !seller.Bank.IsComplete() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller bank details incomplete").
			WithDetails(map[string]any{"payout_id": payoutID, "seller_id": seller.ID})
	}
	ok, err := s.repo.Reopen(ctx, payoutID, []enums.PayoutStatus{payout.Status}, seller.Bank)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reopen payout")
	}
	if !ok {
		return nil, concurrentChange(payoutID)
	}
	s.countPayout(enums.PayoutStatusPending)
	return s.Get(ctx, payoutID)
}

func (s *service) ReleaseBankHolds(ctx context.Context, sellerID uuid.UUID) (int, error) {
	seller, err := s.repo.FindSeller(ctx, sellerID)
	if err != nil {
		return 0, mapLookupError(err, "seller not found", "load seller")
	}
	if !seller.Bank.IsComplete() {
		return 0, nil
	}
	released, err := s.repo.ReleaseBankHolds(ctx, sellerID, seller.Bank)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release bank holds")
	}
	if released > 0 && s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithSellerID(ctx, sellerID.String()), map[string]any{"released": released})
		s.logg.Info(logCtx, "payout bank holds released")
	}
	return int(released), nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listParams{SellerID: params.SellerID, Status: params.Status, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}
	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	out := &ListResult{Payouts: make([]PayoutView, 0, len(rows))}
	for _, row := range rows {
		out.Payouts = append(out.Payouts, toView(row))
	}
	if next != nil {
		out.NextCursor = next.Encode()
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, payoutID uuid.UUID) (*PayoutView, error) {
	payout, err := s.load(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	view := toView(*payout)
	return &view, nil
}

func (s *service) load(ctx context.Context, payoutID uuid.UUID) (*models.SellerPayout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		return nil, mapLookupError(err, "payout not found", "load payout")
	}
	return payout, nil
}

func (s *service) guardTransition(payout *models.SellerPayout, to enums.PayoutStatus) error {
	if !CanTransition(payout.Status, to) {
		return invalidTransition(payout, to)
	}
	return nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payoutID uuid.UUID, data any) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payoutID,
		Actor:         &outbox.ActorRef{Role: string(enums.ActorRoleAdmin)},
		Data:          data,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payout event")
	}
	return nil
}

func (s *service) dispatch(ctx context.Context, effs []effects.Effect) {
	if s.dispatcher == nil || len(effs) == 0 {
		return
	}
	s.dispatcher.Dispatch(ctx, effs)
}

func (s *service) countPayout(status enums.PayoutStatus) {
	if s.metrics != nil {
		s.metrics.Payout(string(status))
	}
}

func (s *service) withPayout(ctx context.Context, id uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithPayoutID(ctx, id.String())
}

func (s *service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}

func (s *service) logError(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}

func onHoldNotification(seller models.Seller, payout models.SellerPayout) notifications.Notification {
	message := "A payout is on hold."
	if payout.HoldReason != nil {
		switch *payout.HoldReason {
		case enums.PayoutHoldMissingBankDetails:
			message = "A payout is on hold until you add complete bank details."
		case enums.PayoutHoldBelowMinimum:
			message = "A payout is on hold because it is below the minimum payout amount."
		}
	}
	return notifications.Notification{
		UserID:   seller.UserID,
		Role:     enums.ActorRoleSeller,
		Type:     enums.NotificationPayoutOnHold,
		Title:    "Payout on hold",
		Message:  message,
		Link:     payoutLink(payout.ID),
		Metadata: map[string]string{"payout_id": payout.ID.String()},
	}
}

func payoutLink(id uuid.UUID) string {
	return "/seller/payouts/" + id.String()
}

func holdReason(r enums.PayoutHoldReason) *enums.PayoutHoldReason {
	return &r
}

func invalidTransition(payout *models.SellerPayout, to enums.PayoutStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("payout cannot move from %s to %s", payout.Status, to)).
		WithDetails(map[string]any{"payout_id": payout.ID, "from": payout.Status, "to": to})
}

func concurrentChange(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "payout changed concurrently").
		WithDetails(map[string]any{"payout_id": id})
}

func nothingToSettle(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "payout settles no orders").
		WithDetails(map[string]any{"payout_id": id})
}

func mapLookupError(err error, notFound, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
