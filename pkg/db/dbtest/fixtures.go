package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

var orderSeq atomic.Int64

// CompleteBank is a bank detail set that passes IsComplete.
var CompleteBank = types.BankDetails{
	AccountHolder: "Seller Co",
	AccountNumber: "001122334455",
	RoutingCode:   "HDFC0000123",
	BankName:      "HDFC",
}

// SeedSeller inserts a seller. Pass an empty BankDetails for a seller without bank info.
func SeedSeller(t *testing.T, conn *gorm.DB, bank types.BankDetails) models.Seller {
	t.Helper()
	seller := models.Seller{
		UserID: uuid.New(),
		Name:   "seller-" + uuid.NewString()[:8],
		Bank:   bank,
	}
	require.NoError(t, conn.Create(&seller).Error)
	return seller
}

// SeedProduct inserts a product with the given stock.
func SeedProduct(t *testing.T, conn *gorm.DB, sellerID uuid.UUID, price int64, stock int) models.Product {
	t.Helper()
	product := models.Product{
		SellerID: sellerID,
		Name:     "product-" + uuid.NewString()[:8],
		Price:    price,
		Stock:    stock,
		IsActive: true,
	}
	require.NoError(t, conn.Create(&product).Error)
	return product
}

// OrderOption customizes SeedOrder.
type OrderOption func(*models.Order)

func WithStatuses(order enums.OrderStatus, payment enums.PaymentStatus, payout enums.OrderPayoutStatus) OrderOption {
	return func(o *models.Order) {
		o.OrderStatus = order
		o.PaymentStatus = payment
		o.PayoutStatus = payout
	}
}

func WithItems(items ...models.OrderItem) OrderOption {
	return func(o *models.Order) { o.Items = items }
}

func WithDeliveredAt(at time.Time) OrderOption {
	return func(o *models.Order) {
		at = at.UTC()
		o.DeliveredAt = &at
	}
}

func WithBuyer(buyerID uuid.UUID) OrderOption {
	return func(o *models.Order) { o.BuyerID = buyerID }
}

func WithCoupon(code string) OrderOption {
	return func(o *models.Order) { o.CouponCode = &code }
}

// WithShipping adds a buyer-paid shipping cost and a seller-borne carrier charge.
func WithShipping(cost, sellerCharge int64) OrderOption {
	return func(o *models.Order) {
		o.ShippingCost = cost
		o.SellerShippingCharge = sellerCharge
	}
}

// SeedOrder inserts an order with a 10% commission and 2% gateway fee split.
func SeedOrder(t *testing.T, conn *gorm.DB, sellerID uuid.UUID, gatewayOrderID string, itemTotal int64, opts ...OrderOption) models.Order {
	t.Helper()
	order := models.Order{
		OrderNumber:    fmt.Sprintf("ORD-TEST-%06d", orderSeq.Add(1)),
		BuyerID:        uuid.New(),
		SellerID:       sellerID,
		CheckoutID:     uuid.New(),
		GatewayOrderID: gatewayOrderID,
		ItemTotal:      itemTotal,
		CommissionRate: decimal.NewFromInt(10),
		PaymentStatus:  enums.PaymentStatusPending,
		OrderStatus:    enums.OrderStatusPending,
		PayoutStatus:   enums.OrderPayoutStatusPending,
		ShippingAddress: types.Address{
			Name: "Buyer", Phone: "9999999999", Line1: "1 Main Road",
			City: "Pune", State: "MH", PostalCode: "411001",
		},
	}
	for _, opt := range opts {
		opt(&order)
	}
	order.TotalAmount = order.ItemTotal + order.ShippingCost
	order.CommissionAmount = order.TotalAmount / 10
	order.GatewayFeeAmount = order.TotalAmount * 2 / 100
	order.SellerNetAmount = order.TotalAmount - order.CommissionAmount - order.GatewayFeeAmount

	require.NoError(t, conn.Create(&order).Error)
	return order
}

// ReloadOrder fetches the order and its items.
func ReloadOrder(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, conn.Preload("Items").First(&order, "id = ?", id).Error)
	return order
}
