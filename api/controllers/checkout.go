package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/api/middleware"
	"github.com/angelmondragon/settlement-backend/api/responses"
	"github.com/angelmondragon/settlement-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/settlement-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

type orderPlacer interface {
	PlaceOrder(ctx context.Context, input checkoutsvc.PlaceOrderInput) (*checkoutsvc.PlaceOrderResult, error)
}

// Checkout splits the buyer's items into one order per seller and opens a
// single gateway order for the combined amount.
func Checkout(svc orderPlacer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		buyerID, ok := middleware.ActorIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthenticated, "buyer identity required"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkoutsvc.PlaceOrderInput{
			BuyerID:         buyerID,
			ShippingAddress: payload.ShippingAddress,
			CouponCode:      strings.ToUpper(validators.SanitizeString(payload.CouponCode, 64)),
		}
		for _, item := range payload.Items {
			input.Items = append(input.Items, checkoutsvc.LineItem{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		for _, quote := range payload.Shipping {
			input.Shipping = append(input.Shipping, checkoutsvc.SellerShipping{
				SellerID:     quote.SellerID,
				Cost:         quote.Cost,
				SellerCharge: quote.SellerCharge,
			})
		}

		result, err := svc.PlaceOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type checkoutRequest struct {
	Items           []checkoutItem  `json:"items" validate:"required,min=1,dive"`
	ShippingAddress types.Address   `json:"shipping_address"`
	Shipping        []shippingQuote `json:"shipping" validate:"omitempty,dive"`
	CouponCode      string          `json:"coupon_code,omitempty" validate:"max=64"`
}

type checkoutItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0,lte=1000"`
}

type shippingQuote struct {
	SellerID     uuid.UUID `json:"seller_id" validate:"required"`
	Cost         int64     `json:"cost" validate:"gte=0"`
	SellerCharge int64     `json:"seller_charge" validate:"gte=0"`
}
