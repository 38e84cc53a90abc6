package shipments_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/internal/orders"
	"github.com/angelmondragon/settlement-backend/internal/shipments"
	"github.com/angelmondragon/settlement-backend/pkg/carrier"
	"github.com/angelmondragon/settlement-backend/pkg/db/dbtest"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
	"github.com/angelmondragon/settlement-backend/pkg/outbox"
)

type stubCarrier struct {
	created   []carrier.CreateShipmentRequest
	pickupErr error
}

func (s *stubCarrier) CreateShipment(_ context.Context, req carrier.CreateShipmentRequest) (*carrier.CreatedShipment, error) {
	s.created = append(s.created, req)
	return &carrier.CreatedShipment{CarrierOrderID: "co_1", CarrierShipmentID: "cs_1", Status: "NEW"}, nil
}

func (s *stubCarrier) AssignCourier(context.Context, string) (*carrier.CourierAssignment, error) {
	return &carrier.CourierAssignment{AWB: "AWB-BOOKED", CourierName: "Delhivery"}, nil
}

func (s *stubCarrier) SchedulePickup(context.Context, string) (*carrier.PickupSchedule, error) {
	if s.pickupErr != nil {
		return nil, s.pickupErr
	}
	at := time.Date(2026, time.February, 5, 10, 0, 0, 0, time.UTC)
	return &carrier.PickupSchedule{ScheduledAt: &at}, nil
}

func (s *stubCarrier) GenerateLabel(context.Context, string) (string, error) {
	return "https://labels.example/cs_1.pdf", nil
}

func newBooker(t *testing.T) (*shipments.Booker, *stubCarrier, *gorm.DB) {
	t.Helper()
	client, conn := dbtest.Client(t)
	ordersRepo := orders.NewRepository(conn)
	ordersSvc, err := orders.NewService(ordersRepo, client, outbox.NewService(outbox.NewRepository(conn), nil))
	require.NoError(t, err)
	stub := &stubCarrier{}
	booker, err := shipments.NewBooker(shipments.NewRepository(conn), ordersRepo, ordersSvc, stub, client,
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	return booker, stub, conn
}

var parcel = shipments.Parcel{WeightKG: 1.2, LengthCM: 20, BreadthCM: 15, HeightCM: 10}

func TestBookCreatesShipmentAndMovesOrderToProcessing(t *testing.T) {
	booker, stub, conn := newBooker(t)
	stub.pickupErr = errors.New("pickup window closed")
	seller := dbtest.SeedSeller(t, conn, dbtest.CompleteBank)
	product := dbtest.SeedProduct(t, conn, seller.ID, 500, 4)
	order := dbtest.SeedOrder(t, conn, seller.ID, "gw_book", 1000,
		dbtest.WithStatuses(enums.OrderStatusConfirmed, enums.PaymentStatusPaid, enums.OrderPayoutStatusPending),
		dbtest.WithItems(models.OrderItem{ProductID: product.ID, Name: "lamp", UnitPrice: 500, Quantity: 2}))

	shipment, err := booker.Book(context.Background(), shipments.BookInput{
		OrderID: order.ID, SellerID: seller.ID, ActorID: seller.UserID, Parcel: parcel,
	})
	require.NoError(t, err)
	require.NotNil(t, shipment.AWB)
	assert.Equal(t, "AWB-BOOKED", *shipment.AWB)
	assert.Equal(t, enums.ShipmentStatusCreated, shipment.Status)
	assert.Nil(t, shipment.PickupScheduledAt)
	require.NotNil(t, shipment.LabelURL)

	require.Len(t, stub.created, 1)
	assert.Equal(t, order.OrderNumber, stub.created[0].OrderNumber)
	require.Len(t, stub.created[0].Items, 1)
	assert.Equal(t, 2, stub.created[0].Items[0].Units)

	assert.Equal(t, enums.OrderStatusProcessing, dbtest.ReloadOrder(t, conn, order.ID).OrderStatus)

	_, err = booker.Book(context.Background(), shipments.BookInput{
		OrderID: order.ID, SellerID: seller.ID, ActorID: seller.UserID, Parcel: parcel,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))
}

func TestBookRejections(t *testing.T) {
	booker, stub, conn := newBooker(t)
	seller := dbtest.SeedSeller(t, conn, dbtest.CompleteBank)
	unpaid := dbtest.SeedOrder(t, conn, seller.ID, "gw_unpaid", 1000)
	paid := dbtest.SeedOrder(t, conn, seller.ID, "gw_paid", 1000,
		dbtest.WithStatuses(enums.OrderStatusConfirmed, enums.PaymentStatusPaid, enums.OrderPayoutStatusPending))
	awb := "AWB-OLD"
	require.NoError(t, conn.Create(&models.Shipment{OrderID: paid.ID, SellerID: seller.ID, AWB: &awb, Status: enums.ShipmentStatusCreated}).Error)

	ctx := context.Background()
	_, err := booker.Book(ctx, shipments.BookInput{OrderID: unpaid.ID, SellerID: uuid.New(), Parcel: parcel})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	_, err = booker.Book(ctx, shipments.BookInput{OrderID: unpaid.ID, SellerID: seller.ID, Parcel: parcel})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))

	_, err = booker.Book(ctx, shipments.BookInput{OrderID: paid.ID, SellerID: seller.ID, Parcel: parcel})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))

	_, err = booker.Book(ctx, shipments.BookInput{OrderID: uuid.New(), SellerID: seller.ID, Parcel: parcel})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	assert.Empty(t, stub.created)
}
