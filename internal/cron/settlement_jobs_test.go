package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/internal/orders"
	"github.com/angelmondragon/settlement-backend/internal/payments"
	"github.com/angelmondragon/settlement-backend/internal/payouts"
	"github.com/angelmondragon/settlement-backend/internal/reconciliation"
	"github.com/angelmondragon/settlement-backend/internal/settings"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestPayoutPeriod(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	cases := []struct {
		name      string
		schedule  enums.PayoutSchedule
		now       time.Time
		wantStart time.Time
		wantNext  time.Time
	}{
		{"weekly midweek", enums.PayoutScheduleWeekly, time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC), day(2026, 2, 23), day(2026, 3, 2)},
		{"weekly on monday", enums.PayoutScheduleWeekly, day(2026, 3, 2), day(2026, 2, 23), day(2026, 3, 2)},
		{"weekly on sunday", enums.PayoutScheduleWeekly, day(2026, 3, 8), day(2026, 2, 23), day(2026, 3, 2)},
		{"monthly", enums.PayoutScheduleMonthly, time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC), day(2026, 2, 1), day(2026, 3, 1)},
		{"monthly across year", enums.PayoutScheduleMonthly, day(2026, 1, 3), day(2025, 12, 1), day(2026, 1, 1)},
		{"biweekly", enums.PayoutScheduleBiweekly, day(2024, 1, 20), day(2024, 1, 1), day(2024, 1, 15)},
		{"unknown falls back to weekly", enums.PayoutSchedule("hourly"), day(2026, 3, 4), day(2026, 2, 23), day(2026, 3, 2)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end := PayoutPeriod(tc.schedule, tc.now)
			if !start.Equal(tc.wantStart) {
				t.Fatalf("start: want %s, got %s", tc.wantStart, start)
			}
			if want := tc.wantNext.Add(-time.Microsecond); !end.Equal(want) {
				t.Fatalf("end: want %s, got %s", want, end)
			}
		})
	}
}

type fakeCalculator struct {
	start, end time.Time
	result     *payouts.BatchResult
	err        error
}

func (f *fakeCalculator) CalculatePayouts(_ context.Context, start, end time.Time) (*payouts.BatchResult, error) {
	f.start, f.end = start, end
	return f.result, f.err
}

type fakeSettings struct{ schedule enums.PayoutSchedule }

func (f fakeSettings) Current(context.Context) (settings.View, error) {
	return settings.View{PayoutSchedule: f.schedule}, nil
}

func TestPayoutBatchJobUsesScheduledWindow(t *testing.T) {
	calc := &fakeCalculator{result: &payouts.BatchResult{Processed: 2}}
	jobIface, err := NewPayoutBatchJob(PayoutBatchJobParams{
		Logger:   quietLogger(),
		Payouts:  calc,
		Settings: fakeSettings{schedule: enums.PayoutScheduleMonthly},
	})
	if err != nil {
		t.Fatalf("NewPayoutBatchJob: %v", err)
	}
	job := jobIface.(*payoutBatchJob)
	if job.Every() != defaultPayoutBatchInterval {
		t.Fatalf("expected default interval, got %s", job.Every())
	}
	job.now = func() time.Time { return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC); !calc.start.Equal(want) {
		t.Fatalf("expected period start %s, got %s", want, calc.start)
	}

	calc.result = &payouts.BatchResult{Failed: 1}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected failed seller groups to fail the job")
	}
}

type fakeRecoverer struct {
	staleAfter time.Duration
	result     *payouts.RecoveryResult
}

func (f *fakeRecoverer) RecoverLinking(_ context.Context, staleAfter time.Duration) (*payouts.RecoveryResult, error) {
	f.staleAfter = staleAfter
	return f.result, nil
}

func TestLinkingRecoveryJob(t *testing.T) {
	recoverer := &fakeRecoverer{result: &payouts.RecoveryResult{Examined: 2, Completed: 2}}
	job, err := NewLinkingRecoveryJob(LinkingRecoveryJobParams{Logger: quietLogger(), Payouts: recoverer})
	if err != nil {
		t.Fatalf("NewLinkingRecoveryJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if recoverer.staleAfter != defaultLinkingStaleAfter {
		t.Fatalf("expected default stale window, got %s", recoverer.staleAfter)
	}

	recoverer.result = &payouts.RecoveryResult{Examined: 1, Errors: []string{"payout x: boom"}}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected recovery errors to fail the job")
	}
}

type fakeReporter struct {
	report *reconciliation.Report
	err    error
}

func (f fakeReporter) Report(context.Context) (*reconciliation.Report, error) { return f.report, f.err }

func TestReconciliationJobReportsWithoutFailing(t *testing.T) {
	orderID := uuid.New()
	report := &reconciliation.Report{
		Orphans:    []reconciliation.Orphan{{Kind: reconciliation.DefectMissingPayoutRef, OrderID: orderID}},
		Mismatches: []reconciliation.Mismatch{{Kind: reconciliation.DefectNetMismatch, PayoutID: uuid.New()}},
	}
	job, err := NewReconciliationJob(ReconciliationJobParams{Logger: quietLogger(), Reporter: fakeReporter{report: report}})
	if err != nil {
		t.Fatalf("NewReconciliationJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("dirty report must not fail the job: %v", err)
	}

	job, _ = NewReconciliationJob(ReconciliationJobParams{Logger: quietLogger(), Reporter: fakeReporter{err: errors.New("db down")}})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected report errors to fail the job")
	}
}

type fakeUnpaidReader struct {
	cutoff time.Time
	rows   []models.Order
}

func (f *fakeUnpaidReader) FindUnpaidBefore(_ context.Context, cutoff time.Time) ([]models.Order, error) {
	f.cutoff = cutoff
	return f.rows, nil
}

type fakeVerifier struct {
	results map[string]*payments.Summary
	errs    map[string]error
	calls   []string
}

func (f *fakeVerifier) Verify(_ context.Context, gatewayOrderID string) (*payments.Summary, error) {
	f.calls = append(f.calls, gatewayOrderID)
	if err := f.errs[gatewayOrderID]; err != nil {
		return nil, err
	}
	if res, ok := f.results[gatewayOrderID]; ok {
		return res, nil
	}
	return &payments.Summary{GatewayOrderID: gatewayOrderID, Reason: payments.ReasonGatewayNotPaid}, nil
}

type fakeCanceller struct {
	cancelled []uuid.UUID
	refuse    map[uuid.UUID]bool
}

func (f *fakeCanceller) Transition(_ context.Context, input orders.TransitionInput) (*orders.TransitionResult, error) {
	if f.refuse[input.OrderID] {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "no longer pending")
	}
	if input.To != enums.OrderStatusCancelled || input.CancelReason != expiredCancelReason {
		return nil, errors.New("unexpected transition input")
	}
	f.cancelled = append(f.cancelled, input.OrderID)
	return &orders.TransitionResult{Changed: true}, nil
}

func TestCheckoutExpiryJob(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	unpaidA, unpaidB := uuid.New(), uuid.New()
	paidLate := uuid.New()
	mismatch := uuid.New()
	outage := uuid.New()
	raced := uuid.New()
	reader := &fakeUnpaidReader{rows: []models.Order{
		{ID: unpaidA, GatewayOrderID: "gw_abandoned"},
		{ID: unpaidB, GatewayOrderID: "gw_abandoned"},
		{ID: raced, GatewayOrderID: "gw_raced"},
		{ID: paidLate, GatewayOrderID: "gw_late"},
		{ID: mismatch, GatewayOrderID: "gw_mismatch"},
		{ID: outage, GatewayOrderID: "gw_outage"},
	}}
	verifier := &fakeVerifier{
		results: map[string]*payments.Summary{"gw_late": {Processed: 1}},
		errs: map[string]error{
			"gw_mismatch": pkgerrors.New(pkgerrors.CodeAmountMismatch, "mismatch"),
			"gw_outage":   pkgerrors.New(pkgerrors.CodeUpstreamUnavailable, "gateway down"),
		},
	}
	canceller := &fakeCanceller{refuse: map[uuid.UUID]bool{raced: true}}

	jobIface, err := NewCheckoutExpiryJob(CheckoutExpiryJobParams{
		Logger:      quietLogger(),
		Orders:      reader,
		Payments:    verifier,
		Transitions: canceller,
	})
	if err != nil {
		t.Fatalf("NewCheckoutExpiryJob: %v", err)
	}
	job := jobIface.(*checkoutExpiryJob)
	job.now = func() time.Time { return now }

	err = job.Run(context.Background())
	if err == nil || !pkgerrors.HasCode(err, pkgerrors.CodeUpstreamUnavailable) {
		t.Fatalf("expected the gateway outage to surface, got %v", err)
	}
	if want := now.Add(-defaultCheckoutExpiry); !reader.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, reader.cutoff)
	}
	if len(verifier.calls) != 5 {
		t.Fatalf("expected one verify per checkout, got %v", verifier.calls)
	}
	got := map[uuid.UUID]bool{}
	for _, id := range canceller.cancelled {
		got[id] = true
	}
	if len(got) != 2 || !got[unpaidA] || !got[unpaidB] {
		t.Fatalf("expected only the abandoned checkout to expire, got %v", canceller.cancelled)
	}
}
