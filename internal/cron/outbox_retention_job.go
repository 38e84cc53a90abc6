package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

const (
	defaultEventRetention      = 30 * 24 * time.Hour
	defaultDeadLetterRetention = 90 * 24 * time.Hour
	defaultPruneBatch          = 500
	// Caps one run so a large backlog is worked off over several days
	// instead of holding the worker lease for hours.
	maxPrunePasses = 200
)

type eventPruner interface {
	PruneTx(tx *gorm.DB, cutoff time.Time, maxAttempts, limit int) (int64, error)
}

type deadLetterPruner interface {
	PruneTx(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger              *logger.Logger
	DB                  txRunner
	Events              eventPruner
	DeadLetters         deadLetterPruner
	Retention           time.Duration
	DeadLetterRetention time.Duration
	// MaxAttempts must match the publisher so terminal rows are recognized.
	MaxAttempts int
	BatchSize   int
}

type outboxRetentionJob struct {
	logg                *logger.Logger
	db                  txRunner
	events              eventPruner
	deadLetters         deadLetterPruner
	retention           time.Duration
	deadLetterRetention time.Duration
	maxAttempts         int
	batch               int
	now                 func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Events == nil:
		return nil, errors.New("outbox repository required")
	case params.DeadLetters == nil:
		return nil, errors.New("dead letter repository required")
	case params.MaxAttempts <= 0:
		return nil, errors.New("max attempts must be positive")
	}
	job := &outboxRetentionJob{
		logg:                params.Logger,
		db:                  params.DB,
		events:              params.Events,
		deadLetters:         params.DeadLetters,
		retention:           params.Retention,
		deadLetterRetention: params.DeadLetterRetention,
		maxAttempts:         params.MaxAttempts,
		batch:               params.BatchSize,
		now:                 time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultEventRetention
	}
	if job.deadLetterRetention <= 0 {
		job.deadLetterRetention = defaultDeadLetterRetention
	}
	if job.batch <= 0 {
		job.batch = defaultPruneBatch
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Every() time.Duration { return 24 * time.Hour }

// Run prunes delivered or dead outbox rows past retention, then dead letters
// past their own longer retention. Each batch commits on its own.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	eventCutoff := now.Add(-j.retention)
	letterCutoff := now.Add(-j.deadLetterRetention)

	events, err := j.drain(ctx, func(tx *gorm.DB) (int64, error) {
		return j.events.PruneTx(tx, eventCutoff, j.maxAttempts, j.batch)
	})
	if err != nil {
		return err
	}
	letters, err := j.drain(ctx, func(tx *gorm.DB) (int64, error) {
		return j.deadLetters.PruneTx(tx, letterCutoff, j.batch)
	})
	if err != nil {
		return err
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"event_cutoff":         eventCutoff,
		"dead_letter_cutoff":   letterCutoff,
		"events_deleted":       events,
		"dead_letters_deleted": letters,
	}), "outbox retention complete")
	return nil
}

func (j *outboxRetentionJob) drain(ctx context.Context, prune func(tx *gorm.DB) (int64, error)) (int64, error) {
	var total int64
	for range maxPrunePasses {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = prune(tx)
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(j.batch) {
			break
		}
	}
	return total, nil
}
