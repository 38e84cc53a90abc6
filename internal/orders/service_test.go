package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-backend/internal/orders"
	"github.com/angelmondragon/settlement-backend/pkg/db/dbtest"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/outbox"
	"gorm.io/gorm"
)

func newService(t *testing.T) (orders.Service, *gorm.DB) {
	t.Helper()
	client, conn := dbtest.Client(t)
	svc, err := orders.NewService(orders.NewRepository(conn), client, outbox.NewService(outbox.NewRepository(conn), nil))
	require.NoError(t, err)
	return svc, conn
}

func countHistory(t *testing.T, conn *gorm.DB, orderID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.OrderStatusEvent{}).Where("order_id = ?", orderID).Count(&n).Error)
	return n
}

func TestTransitionAppliesLegalMoveWithHistoryAndEvent(t *testing.T) {
	svc, conn := newService(t)
	seller := dbtest.SeedSeller(t, conn, dbtest.CompleteBank)
	order := dbtest.SeedOrder(t, conn, seller.ID, "gw_1", 1000,
		dbtest.WithStatuses(enums.OrderStatusConfirmed, enums.PaymentStatusPaid, enums.OrderPayoutStatusPending))

	adminID := uuid.New()
	res, err := svc.Transition(context.Background(), orders.TransitionInput{
		OrderID: order.ID,
		To:      enums.OrderStatusShipped,
		Actor:   orders.Actor{ID: &adminID, Role: enums.ActorRoleAdmin},
		Note:    "handed to courier",
	})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, enums.OrderStatusConfirmed, res.From)
	assert.Equal(t, enums.OrderStatusShipped, res.Order.OrderStatus)
	require.NotNil(t, res.Order.ShippedAt)

	var history []models.OrderStatusEvent
	require.NoError(t, conn.Where("order_id = ?", order.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, enums.ActorRoleAdmin, history[0].ActorRole)
	assert.Equal(t, adminID, *history[0].ActorID)
	assert.Equal(t, "handed to courier", *history[0].Note)

	var events []models.OutboxEvent
	require.NoError(t, conn.Where("aggregate_id = ?", order.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderStatusChanged, events[0].EventType)
}

func TestTransitionRejectsIllegalMoveWithoutMutation(t *testing.T) {
	svc, conn := newService(t)
	seller := dbtest.SeedSeller(t, conn, dbtest.CompleteBank)
	order := dbtest.SeedOrder(t, conn, seller.ID, "gw_2", 1000,
		dbtest.WithStatuses(enums.OrderStatusDelivered, enums.PaymentStatusPaid, enums.OrderPayoutStatusPending))

	_, err := svc.Transition(context.Background(), orders.TransitionInput{
		OrderID: order.ID,
		To:      enums.OrderStatusCancelled,
		Actor:   orders.SystemActor,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))

	reloaded := dbtest.ReloadOrder(t, conn, order.ID)
	assert.Equal(t, enums.OrderStatusDelivered, reloaded.OrderStatus)
	assert.Nil(t, reloaded.CancelledAt)
	assert.Zero(t, countHistory(t, conn, order.ID))
}

func TestTransitionToCurrentStatusIsNoop(t *testing.T) {
	svc, conn := newService(t)
	seller := dbtest.SeedSeller(t, conn, dbtest.CompleteBank)
	order := dbtest.SeedOrder(t, conn, seller.ID, "gw_3", 500,
		dbtest.WithStatuses(enums.OrderStatusShipped, enums.PaymentStatusPaid, enums.OrderPayoutStatusPending))

	res, err := svc.Transition(context.Background(), orders.TransitionInput{OrderID: order.ID, To: enums.OrderStatusShipped})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Zero(t, countHistory(t, conn, order.ID))
}

func TestTransitionCancelStoresReasonAndTimestamp(t *testing.T) {
	svc, conn := newService(t)
	seller := dbtest.SeedSeller(t, conn, dbtest.CompleteBank)
	order := dbtest.SeedOrder(t, conn, seller.ID, "gw_4", 500)

	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	res, err := svc.Transition(context.Background(), orders.TransitionInput{
		OrderID:      order.ID,
		To:           enums.OrderStatusCancelled,
		CancelReason: "buyer request",
		At:           at,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Order.CancelledAt)
	assert.True(t, at.Equal(*res.Order.CancelledAt))
	assert.Equal(t, "buyer request", *res.Order.CancelReason)
}

func TestTransitionUnknownOrder(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Transition(context.Background(), orders.TransitionInput{OrderID: uuid.New(), To: enums.OrderStatusConfirmed})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Transition(context.Background(), orders.TransitionInput{OrderID: uuid.New(), To: "bogus"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestGetIncludesHistoryAndAllowedTransitions(t *testing.T) {
	svc, conn := newService(t)
	seller := dbtest.SeedSeller(t, conn, dbtest.CompleteBank)
	product := dbtest.SeedProduct(t, conn, seller.ID, 250, 5)
	order := dbtest.SeedOrder(t, conn, seller.ID, "gw_5", 500,
		dbtest.WithItems(models.OrderItem{ProductID: product.ID, Name: product.Name, UnitPrice: 250, Quantity: 2}))

	ctx := context.Background()
	_, err := svc.Transition(ctx, orders.TransitionInput{OrderID: order.ID, To: enums.OrderStatusConfirmed})
	require.NoError(t, err)
	require.NoError(t, svc.AppendNote(ctx, nil, order.ID, orders.SystemActor, "manual check"))

	detail, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, detail.OrderStatus)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, int64(500), detail.Items[0].LineTotal)
	assert.Len(t, detail.History, 2)
	assert.ElementsMatch(t, []enums.OrderStatus{enums.OrderStatusProcessing, enums.OrderStatusShipped, enums.OrderStatusCancelled}, detail.AllowedTransitions)
}

func TestListPaginatesAndFilters(t *testing.T) {
	svc, conn := newService(t)
	seller := dbtest.SeedSeller(t, conn, dbtest.CompleteBank)
	other := dbtest.SeedSeller(t, conn, dbtest.CompleteBank)
	for i := 0; i < 3; i++ {
		dbtest.SeedOrder(t, conn, seller.ID, "gw_list", 100)
	}
	dbtest.SeedOrder(t, conn, other.ID, "gw_other", 100)

	ctx := context.Background()
	first, err := svc.List(ctx, orders.ListParams{SellerID: &seller.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.List(ctx, orders.ListParams{SellerID: &seller.ID, Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.Empty(t, second.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, o := range append(first.Orders, second.Orders...) {
		assert.Equal(t, seller.ID, o.SellerID)
		seen[o.ID] = true
	}
	assert.Len(t, seen, 3)

	_, err = svc.List(ctx, orders.ListParams{Cursor: "%%%"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
