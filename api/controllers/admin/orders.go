package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/api/middleware"
	"github.com/angelmondragon/settlement-backend/api/responses"
	"github.com/angelmondragon/settlement-backend/api/validators"
	"github.com/angelmondragon/settlement-backend/internal/orders"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

type orderService interface {
	Transition(ctx context.Context, input orders.TransitionInput) (*orders.TransitionResult, error)
	Get(ctx context.Context, id uuid.UUID) (*orders.OrderDetail, error)
	List(ctx context.Context, params orders.ListParams) (*orders.ListResult, error)
}

type statusRequest struct {
	Status       string `json:"status" validate:"required"`
	Note         string `json:"note" validate:"max=500"`
	CancelReason string `json:"cancel_reason" validate:"max=200"`
}

type statusResponse struct {
	From    enums.OrderStatus   `json:"from"`
	To      enums.OrderStatus   `json:"to"`
	Changed bool                `json:"changed"`
	Order   *orders.OrderDetail `json:"order"`
}

// ListOrders returns a filtered page of orders across sellers.
func ListOrders(svc orderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parseOrderFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.SellerID, err = validators.ParseQueryUUID(r, "seller_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.BuyerID, err = validators.ParseQueryUUID(r, "buyer_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetOrder returns one order with its status history.
func GetOrder(svc orderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// UpdateOrderStatus is the manual admin edit. Legality is decided by the
// order status machine, never here.
func UpdateOrderStatus(svc orderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := enums.ParseOrderStatus(strings.TrimSpace(req.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown order status"))
			return
		}

		result, err := svc.Transition(r.Context(), orders.TransitionInput{
			OrderID:      orderID,
			To:           to,
			Actor:        actorFrom(r.Context()),
			Note:         validators.SanitizeString(req.Note, 500),
			CancelReason: validators.SanitizeString(req.CancelReason, 200),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statusResponse{From: result.From, To: result.To, Changed: result.Changed, Order: detail})
	}
}

func parseOrderFilters(r *http.Request) (orders.ListParams, error) {
	var params orders.ListParams
	var err error
	if params.Limit, params.Cursor, err = validators.ParsePage(r); err != nil {
		return params, err
	}
	if params.OrderStatus, err = validators.ParseQueryEnum(r, "order_status", enums.ParseOrderStatus); err != nil {
		return params, err
	}
	if params.PaymentStatus, err = validators.ParseQueryEnum(r, "payment_status", enums.ParsePaymentStatus); err != nil {
		return params, err
	}
	if params.PayoutStatus, err = validators.ParseQueryEnum(r, "payout_status", enums.ParseOrderPayoutStatus); err != nil {
		return params, err
	}
	if params.CreatedFrom, err = validators.ParseQueryTime(r, "from"); err != nil {
		return params, err
	}
	if params.CreatedTo, err = validators.ParseQueryTime(r, "to"); err != nil {
		return params, err
	}
	return params, nil
}

func actorFrom(ctx context.Context) orders.Actor {
	actor := orders.Actor{Role: middleware.RoleFromContext(ctx)}
	if id, ok := middleware.ActorIDFromContext(ctx); ok {
		actor.ID = &id
	}
	return actor
}
