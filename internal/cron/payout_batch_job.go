package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/settlement-backend/internal/payouts"
	"github.com/angelmondragon/settlement-backend/internal/settings"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

// biweeklyEpoch anchors fortnight boundaries. It is a Monday.
var biweeklyEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// PayoutPeriod returns the last complete settlement window before now for
// the cadence. The end is inclusive and kept at microsecond precision so it
// survives a Postgres round trip without touching the next window.
func PayoutPeriod(schedule enums.PayoutSchedule, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var start, next time.Time
	switch schedule {
	case enums.PayoutScheduleMonthly:
		next = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		start = next.AddDate(0, -1, 0)
	case enums.PayoutScheduleBiweekly:
		days := int(today.Sub(biweeklyEpoch).Hours() / 24)
		next = biweeklyEpoch.AddDate(0, 0, days-days%14)
		start = next.AddDate(0, 0, -14)
	default:
		offset := (int(today.Weekday()) + 6) % 7
		next = today.AddDate(0, 0, -offset)
		start = next.AddDate(0, 0, -7)
	}
	return start, next.Add(-time.Microsecond)
}

type payoutCalculator interface {
	CalculatePayouts(ctx context.Context, periodStart, periodEnd time.Time) (*payouts.BatchResult, error)
}

type settingsReader interface {
	Current(ctx context.Context) (settings.View, error)
}

// PayoutBatchJobParams configure the scheduled payout run.
type PayoutBatchJobParams struct {
	Logger   *logger.Logger
	Payouts  payoutCalculator
	Settings settingsReader
	// Interval between runs. Defaults to six hours.
	Interval time.Duration
}

const defaultPayoutBatchInterval = 6 * time.Hour

func NewPayoutBatchJob(params PayoutBatchJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Payouts == nil:
		return nil, fmt.Errorf("payouts service required")
	case params.Settings == nil:
		return nil, fmt.Errorf("settings service required")
	}
	every := params.Interval
	if every <= 0 {
		every = defaultPayoutBatchInterval
	}
	return &payoutBatchJob{
		logg:     params.Logger,
		payouts:  params.Payouts,
		settings: params.Settings,
		every:    every,
		now:      time.Now,
	}, nil
}

type payoutBatchJob struct {
	logg     *logger.Logger
	payouts  payoutCalculator
	settings settingsReader
	every    time.Duration
	now      func() time.Time
}

func (j *payoutBatchJob) Name() string { return "payout-batch" }

func (j *payoutBatchJob) Every() time.Duration { return j.every }

// Run batches the last closed window. Re-running inside the same window is
// harmless; sellers already paid for it are skipped by the overlap guard.
func (j *payoutBatchJob) Run(ctx context.Context) error {
	view, err := j.settings.Current(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	start, end := PayoutPeriod(view.PayoutSchedule, j.now())
	result, err := j.payouts.CalculatePayouts(ctx, start, end)
	if err != nil {
		return fmt.Errorf("calculate payouts: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"schedule":          string(view.PayoutSchedule),
		"period_start":      start,
		"period_end":        end,
		"created":           len(result.Created),
		"processed":         result.Processed,
		"skipped_duplicate": result.SkippedDuplicate,
		"conflicts":         result.Conflicts,
		"failed":            result.Failed,
	})
	j.logg.Info(logCtx, "payout batch complete")
	if result.Failed > 0 {
		return fmt.Errorf("payout batch: %d seller groups failed", result.Failed)
	}
	return nil
}
