package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	nanoid "github.com/jaevor/go-nanoid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/internal/checkout/helpers"
	"github.com/angelmondragon/settlement-backend/internal/commission"
	"github.com/angelmondragon/settlement-backend/internal/orders"
	"github.com/angelmondragon/settlement-backend/internal/settings"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/gateway"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

const orderNumberAlphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gatewayOrders interface {
	CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error)
}

type settingsReader interface {
	Current(ctx context.Context) (settings.View, error)
}

// Service creates sibling orders for one checkout.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error)
}

// LineItem is one product and quantity in the checkout request.
type LineItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// SellerShipping is the shipping quote for one seller's parcel. Cost is paid
// by the buyer and SellerCharge is borne by the seller at payout time.
type SellerShipping struct {
	SellerID     uuid.UUID
	Cost         int64
	SellerCharge int64
}

// PlaceOrderInput captures a buyer's checkout.
type PlaceOrderInput struct {
	BuyerID         uuid.UUID
	Items           []LineItem
	ShippingAddress types.Address
	Shipping        []SellerShipping
	CouponCode      string
}

// PlacedOrder is the per-seller order created by a checkout.
type PlacedOrder struct {
	ID               uuid.UUID       `json:"id"`
	OrderNumber      string          `json:"order_number"`
	SellerID         uuid.UUID       `json:"seller_id"`
	ItemTotal        int64           `json:"item_total"`
	ShippingCost     int64           `json:"shipping_cost"`
	TotalAmount      int64           `json:"total_amount"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount int64           `json:"commission_amount"`
	GatewayFeeAmount int64           `json:"gateway_fee_amount"`
	SellerNetAmount  int64           `json:"seller_net_amount"`
}

// PlaceOrderResult is what the buyer needs to start payment.
type PlaceOrderResult struct {
	CheckoutID     uuid.UUID     `json:"checkout_id"`
	GatewayOrderID string        `json:"gateway_order_id"`
	Amount         int64         `json:"amount"`
	Currency       string        `json:"currency"`
	Orders         []PlacedOrder `json:"orders"`
}

type service struct {
	tx          txRunner
	repo        Repository
	ordersRepo  orders.Repository
	settings    settingsReader
	gateway     gatewayOrders
	orderNumber func() string
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	repo Repository,
	ordersRepo orders.Repository,
	settingsSvc settingsReader,
	gatewayClient gatewayOrders,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if settingsSvc == nil {
		return nil, fmt.Errorf("settings reader required")
	}
	if gatewayClient == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	gen, err := nanoid.CustomASCII(orderNumberAlphabet, 10)
	if err != nil {
		return nil, fmt.Errorf("order number generator: %w", err)
	}
	return &service{
		tx:          tx,
		repo:        repo,
		ordersRepo:  ordersRepo,
		settings:    settingsSvc,
		gateway:     gatewayClient,
		orderNumber: func() string { return "ORD-" + gen() },
	}, nil
}

type plannedOrder struct {
	group     helpers.SellerGroup
	shipping  SellerShipping
	total     int64
	breakdown commission.Breakdown
}

func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	requests := make([]helpers.LineRequest, 0, len(input.Items))
	for _, item := range input.Items {
		requests = append(requests, helpers.LineRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	if err := helpers.ValidateLines(requests); err != nil {
		return nil, err
	}
	if err := helpers.ValidateShippingAddress(input.ShippingAddress); err != nil {
		return nil, err
	}

	lines, err := s.priceLines(ctx, requests)
	if err != nil {
		return nil, err
	}
	groups := helpers.GroupLinesBySeller(lines)

	shipping, err := shippingBySeller(input.Shipping, groups)
	if err != nil {
		return nil, err
	}

	sellerIDs := make([]uuid.UUID, 0, len(groups))
	for _, g := range groups {
		sellerIDs = append(sellerIDs, g.SellerID)
	}
	sellers, err := s.repo.Sellers(ctx, sellerIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sellers")
	}
	current, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	terms := current.Terms()

	plans := make([]plannedOrder, 0, len(groups))
	var amount int64
	for _, g := range groups {
		seller, ok := sellers[g.SellerID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller not found").
				WithDetails(map[string]any{"seller_id": g.SellerID})
		}
		ship := shipping[g.SellerID]
		total := g.ItemTotal + ship.Cost
		rate := commission.ResolveRate(commission.TermsFromSeller(seller), terms)
		plans = append(plans, plannedOrder{
			group:     g,
			shipping:  ship,
			total:     total,
			breakdown: commission.Split(total, rate, terms.GatewayFeeRate),
		})
		amount += total
	}

	checkoutID := uuid.New()
	gwOrder, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		Amount:  amount,
		Receipt: checkoutID.String(),
		Notes: map[string]string{
			"checkout_id": checkoutID.String(),
			"buyer_id":    input.BuyerID.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	coupon := normalizeCoupon(input.CouponCode)
	result := &PlaceOrderResult{
		CheckoutID:     checkoutID,
		GatewayOrderID: gwOrder.ID,
		Amount:         amount,
		Currency:       gwOrder.Currency,
		Orders:         make([]PlacedOrder, 0, len(plans)),
	}
	buyerID := input.BuyerID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ordersRepo.WithTx(tx)
		for _, plan := range plans {
			order := s.buildOrder(input, checkoutID, gwOrder.ID, coupon, plan)
			if err := repo.Create(ctx, order); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
			}
			note := "order placed"
			if err := repo.AppendHistory(ctx, &models.OrderStatusEvent{
				OrderID:       order.ID,
				Status:        order.OrderStatus,
				PaymentStatus: order.PaymentStatus,
				ActorID:       &buyerID,
				ActorRole:     enums.ActorRoleBuyer,
				Note:          &note,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
			}
			result.Orders = append(result.Orders, toPlaced(order))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) priceLines(ctx context.Context, requests []helpers.LineRequest) ([]helpers.PricedLine, error) {
	ids := make([]uuid.UUID, 0, len(requests))
	for _, r := range requests {
		ids = append(ids, r.ProductID)
	}
	products, err := s.repo.ActiveProducts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	var unavailable []uuid.UUID
	lines := make([]helpers.PricedLine, 0, len(requests))
	stock := make(map[uuid.UUID]int, len(products))
	for _, r := range requests {
		product, ok := products[r.ProductID]
		if !ok {
			unavailable = append(unavailable, r.ProductID)
			continue
		}
		stock[product.ID] = product.Stock
		lines = append(lines, helpers.PricedLine{
			ProductID: product.ID,
			SellerID:  product.SellerID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  r.Quantity,
		})
	}
	if len(unavailable) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "some products are unavailable").
			WithDetails(map[string]any{"product_ids": unavailable})
	}
	if err := helpers.ValidateStock(lines, stock); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *service) buildOrder(input PlaceOrderInput, checkoutID uuid.UUID, gatewayOrderID string, coupon *string, plan plannedOrder) *models.Order {
	items := make([]models.OrderItem, 0, len(plan.group.Lines))
	for _, line := range plan.group.Lines {
		items = append(items, line.OrderItem())
	}
	return &models.Order{
		ID:                   uuid.New(),
		OrderNumber:          s.orderNumber(),
		BuyerID:              input.BuyerID,
		SellerID:             plan.group.SellerID,
		CheckoutID:           checkoutID,
		GatewayOrderID:       gatewayOrderID,
		CouponCode:           coupon,
		ShippingAddress:      input.ShippingAddress,
		Items:                items,
		ItemTotal:            plan.group.ItemTotal,
		ShippingCost:         plan.shipping.Cost,
		TotalAmount:          plan.total,
		CommissionRate:       plan.breakdown.CommissionRate,
		CommissionAmount:     plan.breakdown.CommissionAmount,
		GatewayFeeAmount:     plan.breakdown.GatewayFeeAmount,
		SellerNetAmount:      plan.breakdown.SellerNetAmount,
		SellerShippingCharge: plan.shipping.SellerCharge,
		PaymentStatus:        enums.PaymentStatusPending,
		OrderStatus:          enums.OrderStatusPending,
		PayoutStatus:         enums.OrderPayoutStatusPending,
	}
}

func shippingBySeller(quotes []SellerShipping, groups []helpers.SellerGroup) (map[uuid.UUID]SellerShipping, error) {
	inCheckout := make(map[uuid.UUID]struct{}, len(groups))
	for _, g := range groups {
		inCheckout[g.SellerID] = struct{}{}
	}
	out := make(map[uuid.UUID]SellerShipping, len(quotes))
	for _, q := range quotes {
		if _, ok := inCheckout[q.SellerID]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping quote for a seller not in this checkout").
				WithDetails(map[string]any{"seller_id": q.SellerID})
		}
		if q.Cost < 0 || q.SellerCharge < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping amounts must not be negative").
				WithDetails(map[string]any{"seller_id": q.SellerID})
		}
		if _, dup := out[q.SellerID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller has more than one shipping quote").
				WithDetails(map[string]any{"seller_id": q.SellerID})
		}
		out[q.SellerID] = q
	}
	return out, nil
}

func normalizeCoupon(code string) *string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	return &code
}

func toPlaced(o *models.Order) PlacedOrder {
	return PlacedOrder{
		ID:               o.ID,
		OrderNumber:      o.OrderNumber,
		SellerID:         o.SellerID,
		ItemTotal:        o.ItemTotal,
		ShippingCost:     o.ShippingCost,
		TotalAmount:      o.TotalAmount,
		CommissionRate:   o.CommissionRate,
		CommissionAmount: o.CommissionAmount,
		GatewayFeeAmount: o.GatewayFeeAmount,
		SellerNetAmount:  o.SellerNetAmount,
	}
}
