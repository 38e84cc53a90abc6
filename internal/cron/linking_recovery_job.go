package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/settlement-backend/internal/payouts"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

const defaultLinkingStaleAfter = 10 * time.Minute

type linkingRecoverer interface {
	RecoverLinking(ctx context.Context, staleAfter time.Duration) (*payouts.RecoveryResult, error)
}

// LinkingRecoveryJobParams configure completion of interrupted payout links.
type LinkingRecoveryJobParams struct {
	Logger     *logger.Logger
	Payouts    linkingRecoverer
	StaleAfter time.Duration
}

func NewLinkingRecoveryJob(params LinkingRecoveryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payouts service required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultLinkingStaleAfter
	}
	return &linkingRecoveryJob{logg: params.Logger, payouts: params.Payouts, staleAfter: staleAfter}, nil
}

type linkingRecoveryJob struct {
	logg       *logger.Logger
	payouts    linkingRecoverer
	staleAfter time.Duration
}

func (j *linkingRecoveryJob) Name() string { return "payout-linking-recovery" }

func (j *linkingRecoveryJob) Run(ctx context.Context) error {
	result, err := j.payouts.RecoverLinking(ctx, j.staleAfter)
	if err != nil {
		return fmt.Errorf("recover payout linking: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"examined":  result.Examined,
		"completed": result.Completed,
		"partial":   result.Partial,
		"errors":    len(result.Errors),
	})
	if result.Examined == 0 {
		j.logg.Debug(logCtx, "no payout linking intents to recover")
		return nil
	}
	j.logg.Info(logCtx, "payout linking recovery complete")
	if len(result.Errors) > 0 {
		return fmt.Errorf("payout linking recovery: %d payouts failed", len(result.Errors))
	}
	return nil
}
