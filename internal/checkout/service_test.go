package checkout_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/internal/checkout"
	"github.com/angelmondragon/settlement-backend/internal/orders"
	"github.com/angelmondragon/settlement-backend/internal/settings"
	"github.com/angelmondragon/settlement-backend/pkg/db/dbtest"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/gateway"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

type stubGateway struct {
	requests []gateway.CreateOrderRequest
	err      error
}

func (s *stubGateway) CreateOrder(_ context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &gateway.Order{ID: "order_gw_1", Amount: req.Amount, AmountDue: req.Amount, Currency: "INR", Status: "created"}, nil
}

type staticSettings struct{ view settings.View }

func (s staticSettings) Current(context.Context) (settings.View, error) { return s.view, nil }

var address = types.Address{
	Name: "Asha", Phone: "9876543210", Line1: "12 Lake View",
	City: "Pune", State: "MH", PostalCode: "411001",
}

func newService(t *testing.T, gw *stubGateway) (checkout.Service, *gorm.DB) {
	t.Helper()
	client, conn := dbtest.Client(t)
	svc, err := checkout.NewService(
		client,
		checkout.NewRepository(conn),
		orders.NewRepository(conn),
		staticSettings{view: settings.View{
			CommissionRate: decimal.NewFromInt(10),
			GatewayFeeRate: decimal.NewFromInt(2),
		}},
		gw,
	)
	require.NoError(t, err)
	return svc, conn
}

func TestPlaceOrderCreatesSiblingOrdersWithFrozenSplit(t *testing.T) {
	gw := &stubGateway{}
	svc, conn := newService(t, gw)

	sellerA := dbtest.SeedSeller(t, conn, dbtest.CompleteBank)
	sellerB := dbtest.SeedSeller(t, conn, dbtest.CompleteBank)
	require.NoError(t, conn.Model(&models.Seller{}).Where("id = ?", sellerB.ID).
		Update("commission_override", decimal.NewFromInt(5)).Error)
	lamp := dbtest.SeedProduct(t, conn, sellerA.ID, 500, 10)
	rug := dbtest.SeedProduct(t, conn, sellerB.ID, 300, 1)

	buyer := uuid.New()
	res, err := svc.PlaceOrder(context.Background(), checkout.PlaceOrderInput{
		BuyerID: buyer,
		Items: []checkout.LineItem{
			{ProductID: lamp.ID, Quantity: 2},
			{ProductID: rug.ID, Quantity: 1},
		},
		ShippingAddress: address,
		Shipping:        []checkout.SellerShipping{{SellerID: sellerB.ID, Cost: 50, SellerCharge: 40}},
		CouponCode:      " welcome10 ",
	})
	require.NoError(t, err)

	require.Len(t, gw.requests, 1)
	assert.Equal(t, int64(1350), gw.requests[0].Amount)
	assert.Equal(t, res.CheckoutID.String(), gw.requests[0].Receipt)
	assert.Equal(t, "order_gw_1", res.GatewayOrderID)
	assert.Equal(t, int64(1350), res.Amount)
	assert.Equal(t, "INR", res.Currency)
	require.Len(t, res.Orders, 2)

	a, b := res.Orders[0], res.Orders[1]
	assert.Equal(t, sellerA.ID, a.SellerID)
	assert.Equal(t, int64(1000), a.TotalAmount)
	assert.Equal(t, int64(100), a.CommissionAmount)
	assert.Equal(t, int64(20), a.GatewayFeeAmount)
	assert.Equal(t, int64(880), a.SellerNetAmount)

	assert.Equal(t, sellerB.ID, b.SellerID)
	assert.Equal(t, int64(300), b.ItemTotal)
	assert.Equal(t, int64(50), b.ShippingCost)
	assert.Equal(t, int64(350), b.TotalAmount)
	assert.True(t, decimal.NewFromInt(5).Equal(b.CommissionRate))
	assert.Equal(t, int64(18), b.CommissionAmount)
	assert.Equal(t, int64(7), b.GatewayFeeAmount)
	assert.Equal(t, int64(325), b.SellerNetAmount)

	for _, placed := range res.Orders {
		assert.True(t, strings.HasPrefix(placed.OrderNumber, "ORD-"))
		assert.Len(t, placed.OrderNumber, 14)

		stored := dbtest.ReloadOrder(t, conn, placed.ID)
		assert.Equal(t, "order_gw_1", stored.GatewayOrderID)
		assert.Equal(t, res.CheckoutID, stored.CheckoutID)
		assert.Equal(t, buyer, stored.BuyerID)
		assert.Equal(t, enums.OrderStatusPending, stored.OrderStatus)
		assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
		require.NotNil(t, stored.CouponCode)
		assert.Equal(t, "WELCOME10", *stored.CouponCode)
		assert.Equal(t, "Pune", stored.ShippingAddress.City)
		assert.Equal(t, stored.TotalAmount, stored.CommissionAmount+stored.GatewayFeeAmount+stored.SellerNetAmount)
	}
	assert.Equal(t, int64(40), dbtest.ReloadOrder(t, conn, b.ID).SellerShippingCharge)

	items := dbtest.ReloadOrder(t, conn, a.ID).Items
	require.Len(t, items, 1)
	assert.Equal(t, int64(500), items[0].UnitPrice)
	assert.Equal(t, 2, items[0].Quantity)

	var history int64
	require.NoError(t, conn.Model(&models.OrderStatusEvent{}).Count(&history).Error)
	assert.Equal(t, int64(2), history)

	var product models.Product
	require.NoError(t, conn.First(&product, "id = ?", lamp.ID).Error)
	assert.Equal(t, 10, product.Stock, "stock only moves on payment")
}

func TestPlaceOrderRejectsUnavailableProducts(t *testing.T) {
	gw := &stubGateway{}
	svc, conn := newService(t, gw)
	seller := dbtest.SeedSeller(t, conn, dbtest.CompleteBank)
	scarce := dbtest.SeedProduct(t, conn, seller.ID, 100, 1)

	_, err := svc.PlaceOrder(context.Background(), checkout.PlaceOrderInput{
		BuyerID:         uuid.New(),
		Items:           []checkout.LineItem{{ProductID: uuid.New(), Quantity: 1}},
		ShippingAddress: address,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.PlaceOrder(context.Background(), checkout.PlaceOrderInput{
		BuyerID:         uuid.New(),
		Items:           []checkout.LineItem{{ProductID: scarce.ID, Quantity: 2}},
		ShippingAddress: address,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	assert.Empty(t, gw.requests)
}

func TestPlaceOrderValidatesShippingQuotes(t *testing.T) {
	gw := &stubGateway{}
	svc, conn := newService(t, gw)
	seller := dbtest.SeedSeller(t, conn, dbtest.CompleteBank)
	product := dbtest.SeedProduct(t, conn, seller.ID, 100, 5)

	_, err := svc.PlaceOrder(context.Background(), checkout.PlaceOrderInput{
		BuyerID:         uuid.New(),
		Items:           []checkout.LineItem{{ProductID: product.ID, Quantity: 1}},
		ShippingAddress: address,
		Shipping:        []checkout.SellerShipping{{SellerID: uuid.New(), Cost: 10}},
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.PlaceOrder(context.Background(), checkout.PlaceOrderInput{
		BuyerID:         uuid.New(),
		Items:           []checkout.LineItem{{ProductID: product.ID, Quantity: 1}},
		ShippingAddress: types.Address{Name: "x"},
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, gw.requests)
}

func TestPlaceOrderGatewayFailureCreatesNothing(t *testing.T) {
	gw := &stubGateway{err: pkgerrors.New(pkgerrors.CodeUpstreamUnavailable, "gateway down")}
	svc, conn := newService(t, gw)
	seller := dbtest.SeedSeller(t, conn, dbtest.CompleteBank)
	product := dbtest.SeedProduct(t, conn, seller.ID, 100, 5)

	_, err := svc.PlaceOrder(context.Background(), checkout.PlaceOrderInput{
		BuyerID:         uuid.New(),
		Items:           []checkout.LineItem{{ProductID: product.ID, Quantity: 1}},
		ShippingAddress: address,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUpstreamUnavailable))

	var count int64
	require.NoError(t, conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}
