package notifications

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-backend/pkg/db/dbtest"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/outbox"
	"github.com/angelmondragon/settlement-backend/pkg/outbox/payloads"
)

func TestOutboxNotifierWritesEvent(t *testing.T) {
	client, conn := dbtest.Client(t)
	notifier, err := NewOutboxNotifier(client, outbox.NewService(outbox.NewRepository(conn), nil))
	require.NoError(t, err)

	userID := uuid.New()
	err = notifier.Notify(context.Background(), Notification{
		UserID:   userID,
		Role:     enums.ActorRoleBuyer,
		Type:     enums.NotificationOrderConfirmed,
		Title:    "Order confirmed",
		Message:  "Your order ORD-1 is confirmed",
		Link:     "/orders/ORD-1",
		Metadata: map[string]string{"order_number": "ORD-1"},
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventNotificationRequested, rows[0].EventType)
	assert.Equal(t, userID, rows[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	var data payloads.NotificationRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, enums.NotificationOrderConfirmed, data.Type)
	assert.Equal(t, "ORD-1", data.Metadata["order_number"])
}

func TestOutboxNotifierValidates(t *testing.T) {
	client, conn := dbtest.Client(t)
	notifier, err := NewOutboxNotifier(client, outbox.NewService(outbox.NewRepository(conn), nil))
	require.NoError(t, err)

	err = notifier.Notify(context.Background(), Notification{Type: enums.NotificationOrderConfirmed, Title: "x"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	err = notifier.Notify(context.Background(), Notification{UserID: uuid.New(), Type: "bogus", Title: "x"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
