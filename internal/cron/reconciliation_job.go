package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/settlement-backend/internal/reconciliation"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

type reconciliationReporter interface {
	Report(ctx context.Context) (*reconciliation.Report, error)
}

// ReconciliationJobParams configure the scheduled settlement audit.
type ReconciliationJobParams struct {
	Logger   *logger.Logger
	Reporter reconciliationReporter
}

func NewReconciliationJob(params ReconciliationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reporter == nil {
		return nil, fmt.Errorf("reconciliation reporter required")
	}
	return &reconciliationJob{logg: params.Logger, reporter: params.Reporter}, nil
}

type reconciliationJob struct {
	logg     *logger.Logger
	reporter reconciliationReporter
}

func (j *reconciliationJob) Name() string { return "reconciliation-audit" }

func (j *reconciliationJob) Every() time.Duration { return 6 * time.Hour }

// Run logs every finding. Defects are reported, never repaired, so a dirty
// report does not fail the job.
func (j *reconciliationJob) Run(ctx context.Context) error {
	report, err := j.reporter.Report(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation report: %w", err)
	}
	for _, o := range report.Orphans {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"kind":         string(o.Kind),
			"order_id":     o.OrderID.String(),
			"order_number": o.OrderNumber,
		}), "orphaned payout reference")
	}
	for _, m := range report.Mismatches {
		fields := map[string]any{"kind": string(m.Kind), "payout_id": m.PayoutID.String(), "detail": m.Detail}
		if m.OrderID != nil {
			fields["order_id"] = m.OrderID.String()
		}
		j.logg.Warn(j.logg.WithFields(ctx, fields), "payout mismatch")
	}
	counts := map[string]any{}
	for kind, n := range report.Counts() {
		counts[string(kind)] = n
	}
	j.logg.Info(j.logg.WithField(ctx, "findings", counts), "reconciliation audit complete")
	return nil
}
