package cron

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/pkg/db/dbtest"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
	"github.com/angelmondragon/settlement-backend/pkg/outbox"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type scriptedPruner struct {
	batches []int64
	calls   int
	cutoffs []time.Time
	err     error
}

func (p *scriptedPruner) next(cutoff time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	p.calls++
	if p.err != nil {
		return 0, p.err
	}
	if len(p.batches) == 0 {
		return 0, nil
	}
	n := p.batches[0]
	p.batches = p.batches[1:]
	return n, nil
}

type scriptedEvents struct{ scriptedPruner }

func (p *scriptedEvents) PruneTx(_ *gorm.DB, cutoff time.Time, _, _ int) (int64, error) {
	return p.next(cutoff)
}

type scriptedLetters struct{ scriptedPruner }

func (p *scriptedLetters) PruneTx(_ *gorm.DB, cutoff time.Time, _ int) (int64, error) {
	return p.next(cutoff)
}

func newRetentionJob(t *testing.T, db txRunner, events eventPruner, letters deadLetterPruner, batch int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		DB:          db,
		Events:      events,
		DeadLetters: letters,
		MaxAttempts: 3,
		BatchSize:   batch,
	})
	require.NoError(t, err)
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionDrainsInBatches(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	events := &scriptedEvents{scriptedPruner{batches: []int64{10, 10, 4}}}
	letters := &scriptedLetters{scriptedPruner{batches: []int64{2}}}
	job := newRetentionJob(t, passthroughTx{}, events, letters, 10)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, events.calls, "a short batch ends the drain")
	assert.Equal(t, 1, letters.calls)
	assert.Equal(t, now.Add(-defaultEventRetention), events.cutoffs[0])
	assert.Equal(t, now.Add(-defaultDeadLetterRetention), letters.cutoffs[0])
}

func TestOutboxRetentionStopsOnError(t *testing.T) {
	events := &scriptedEvents{scriptedPruner{err: errors.New("lock timeout")}}
	letters := &scriptedLetters{}
	job := newRetentionJob(t, passthroughTx{}, events, letters, 10)

	assert.Error(t, job.Run(context.Background()))
	assert.Zero(t, letters.calls)
}

func TestOutboxRetentionRequiresMaxAttempts(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      logger.New(logger.Options{Output: io.Discard}),
		DB:          passthroughTx{},
		Events:      &scriptedEvents{},
		DeadLetters: &scriptedLetters{},
	})
	assert.Error(t, err)
}

func TestOutboxRetentionAgainstDatabase(t *testing.T) {
	client, conn := dbtest.Client(t)
	now := time.Now().UTC()
	old := now.Add(-60 * 24 * time.Hour)

	event := func(createdAt time.Time, published bool, attempts int) models.OutboxEvent {
		row := models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventPayoutCreated,
			AggregateType: enums.AggregatePayout,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			AttemptCount:  attempts,
			CreatedAt:     createdAt,
		}
		if published {
			row.PublishedAt = &createdAt
		}
		require.NoError(t, conn.Create(&row).Error)
		return row
	}
	oldPublished := event(old, true, 0)
	oldTerminal := event(old, false, 3)
	oldPending := event(old, false, 1)
	recentPublished := event(now, true, 0)

	letter := models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventPayoutCreated,
		AggregateType: enums.AggregatePayout,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		AttemptCount:  3,
		FailedAt:      now.Add(-120 * 24 * time.Hour),
	}
	require.NoError(t, conn.Create(&letter).Error)

	job := newRetentionJob(t, client, outbox.NewRepository(conn), outbox.NewDeadLetterRepository(conn), 1)
	require.NoError(t, job.Run(context.Background()))

	var remaining []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Order("created_at").Pluck("id", &remaining).Error)
	assert.ElementsMatch(t, []uuid.UUID{oldPending.ID, recentPublished.ID}, remaining)
	assert.NotContains(t, remaining, oldPublished.ID)
	assert.NotContains(t, remaining, oldTerminal.ID)

	var letters int64
	require.NoError(t, conn.Model(&models.OutboxDLQ{}).Count(&letters).Error)
	assert.Zero(t, letters)
}
