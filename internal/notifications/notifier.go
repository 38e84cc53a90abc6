// Package notifications hands user-facing notifications to the delivery
// pipeline. Delivery itself happens downstream of the outbox.
package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/outbox"
	"github.com/angelmondragon/settlement-backend/pkg/outbox/payloads"
)

// Notification is a single message for one user.
type Notification struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	Type     enums.NotificationType
	Title    string
	Message  string
	Link     string
	Metadata map[string]string
}

// Notifier accepts notifications. Implementations never block settlement.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxNotifier writes a notification_requested event per notification.
type OutboxNotifier struct {
	tx     txRunner
	outbox outboxPublisher
}

func NewOutboxNotifier(tx txRunner, publisher outboxPublisher) (*OutboxNotifier, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &OutboxNotifier{tx: tx, outbox: publisher}, nil
}

func (n *OutboxNotifier) Notify(ctx context.Context, note Notification) error {
	if err := validate(note); err != nil {
		return err
	}
	return n.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return n.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   note.UserID,
			Actor:         &outbox.ActorRef{Role: string(enums.ActorRoleSystem)},
			Data: payloads.NotificationRequestedEvent{
				UserID:   note.UserID,
				Role:     note.Role,
				Type:     note.Type,
				Title:    note.Title,
				Message:  note.Message,
				Link:     note.Link,
				Metadata: note.Metadata,
			},
		})
	})
}

func validate(n Notification) error {
	if n.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification user id required")
	}
	if !n.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown notification type %q", n.Type))
	}
	if strings.TrimSpace(n.Title) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification title required")
	}
	return nil
}
