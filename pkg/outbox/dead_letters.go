package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
	"github.com/angelmondragon/settlement-backend/pkg/pagination"
)

const maxDeadLetterErrorLen = 1024

// DeadLetterRepository stores outbox rows the publisher gave up on.
type DeadLetterRepository struct {
	db *gorm.DB
}

func NewDeadLetterRepository(db *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

func (r *DeadLetterRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil && len(*entry.ErrorMessage) > maxDeadLetterErrorLen {
		msg := strings.ToValidUTF8((*entry.ErrorMessage)[:maxDeadLetterErrorLen], "")
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// DeadLetterQuery filters the dead-letter listing.
type DeadLetterQuery struct {
	EventType *enums.OutboxEventType
	Reason    *enums.OutboxDLQErrorReason
	Limit     int
	Cursor    *pagination.Cursor
}

func (r *DeadLetterRepository) List(ctx context.Context, q DeadLetterQuery) ([]models.OutboxDLQ, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if q.EventType != nil {
		query = query.Where("event_type = ?", *q.EventType)
	}
	if q.Reason != nil {
		query = query.Where("error_reason = ?", *q.Reason)
	}
	var rows []models.OutboxDLQ
	if err := pagination.Seek(query, q.Cursor, q.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, q.Limit, func(row models.OutboxDLQ) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}

// ReplayTx puts a dead-lettered event back in front of the publisher with a
// fresh attempt budget and drops the dead-letter row. An outbox row already
// pruned by retention is recreated from the dead-letter copy under the same id.
func (r *DeadLetterRepository) ReplayTx(tx *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	if err := tx.Where("event_id = ?", eventID).Order("created_at DESC").First(&entry).Error; err != nil {
		return nil, err
	}
	res := tx.Model(&models.OutboxEvent{}).
		Where("id = ?", eventID).
		Updates(map[string]any{
			"attempt_count": 0,
			"last_error":    nil,
			"published_at":  nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		revived := models.OutboxEvent{
			ID:            entry.EventID,
			EventType:     entry.EventType,
			AggregateType: entry.AggregateType,
			AggregateID:   entry.AggregateID,
			Payload:       entry.Payload,
		}
		if err := tx.Create(&revived).Error; err != nil {
			return nil, err
		}
	}
	if err := tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// PruneTx deletes up to limit dead letters that failed before cutoff.
func (r *DeadLetterRepository) PruneTx(tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	ids := tx.Model(&models.OutboxDLQ{}).
		Select("id").
		Where("failed_at < ?", cutoff).
		Order("failed_at ASC").
		Limit(limit)
	res := tx.Where("id IN (?)", ids).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DeadLetterView is the operator-facing shape of one dead-letter row.
type DeadLetterView struct {
	ID            uuid.UUID                  `json:"id"`
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	Payload       json.RawMessage            `json:"payload"`
	ErrorReason   enums.OutboxDLQErrorReason `json:"error_reason"`
	ErrorMessage  *string                    `json:"error_message,omitempty"`
	AttemptCount  int                        `json:"attempt_count"`
	FailedAt      time.Time                  `json:"failed_at"`
}

func newDeadLetterView(row models.OutboxDLQ) DeadLetterView {
	return DeadLetterView{
		ID:            row.ID,
		EventID:       row.EventID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   row.ErrorReason,
		ErrorMessage:  row.ErrorMessage,
		AttemptCount:  row.AttemptCount,
		FailedAt:      row.FailedAt,
	}
}

// DeadLetterPage is one page of the admin dead-letter listing.
type DeadLetterPage struct {
	Items      []DeadLetterView `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// DeadLetters is the operator surface over the dead-letter table.
type DeadLetters struct {
	repo *DeadLetterRepository
	tx   txRunner
	logg *logger.Logger
}

func NewDeadLetters(repo *DeadLetterRepository, tx txRunner, logg *logger.Logger) (*DeadLetters, error) {
	if repo == nil || tx == nil {
		return nil, errors.New("dead letter repository and transaction runner are required")
	}
	return &DeadLetters{repo: repo, tx: tx, logg: logg}, nil
}

type DeadLetterListParams struct {
	EventType *enums.OutboxEventType
	Reason    *enums.OutboxDLQErrorReason
	Limit     int
	Cursor    string
}

func (d *DeadLetters) List(ctx context.Context, params DeadLetterListParams) (*DeadLetterPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := d.repo.List(ctx, DeadLetterQuery{
		EventType: params.EventType,
		Reason:    params.Reason,
		Limit:     params.Limit,
		Cursor:    cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters")
	}
	page := &DeadLetterPage{Items: make([]DeadLetterView, 0, len(rows))}
	for _, row := range rows {
		page.Items = append(page.Items, newDeadLetterView(row))
	}
	if next != nil {
		page.NextCursor = next.Encode()
	}
	return page, nil
}

// Replay requeues one dead-lettered event for publishing.
func (d *DeadLetters) Replay(ctx context.Context, eventID uuid.UUID) (*DeadLetterView, error) {
	var entry *models.OutboxDLQ
	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = d.repo.ReplayTx(tx, eventID)
		return err
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("replay event %s", eventID))
	}
	if d.logg != nil {
		d.logg.Info(d.logg.WithFields(ctx, map[string]any{
			"event_id":     eventID.String(),
			"event_type":   string(entry.EventType),
			"error_reason": string(entry.ErrorReason),
		}), "dead letter requeued")
	}
	view := newDeadLetterView(*entry)
	return &view, nil
}
