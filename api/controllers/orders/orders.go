package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/api/controllers/sellerctx"
	"github.com/angelmondragon/settlement-backend/api/middleware"
	"github.com/angelmondragon/settlement-backend/api/responses"
	"github.com/angelmondragon/settlement-backend/api/validators"
	internalorders "github.com/angelmondragon/settlement-backend/internal/orders"
	"github.com/angelmondragon/settlement-backend/internal/shipments"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

type orderReader interface {
	Get(ctx context.Context, id uuid.UUID) (*internalorders.OrderDetail, error)
	List(ctx context.Context, params internalorders.ListParams) (*internalorders.ListResult, error)
}

type shipmentBooker interface {
	Book(ctx context.Context, input shipments.BookInput) (*models.Shipment, error)
}

type shipmentReader interface {
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*shipments.Detail, error)
}

// List returns the active seller's orders. The seller filter is always
// forced from context.
func List(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		sellerID, err := sellerctx.ResolveSellerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, cursor, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := internalorders.ListParams{
			SellerID: &sellerID,
			Limit:    limit,
			Cursor:   cursor,
		}
		if params.OrderStatus, err = validators.ParseQueryEnum(r, "order_status", enums.ParseOrderStatus); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.PayoutStatus, err = validators.ParseQueryEnum(r, "payout_status", enums.ParseOrderPayoutStatus); err != nil {
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

// Detail returns the full order after ensuring the active seller owns it.
func Detail(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		detail, err := ownedOrder(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

type bookShipmentRequest struct {
	Parcel shipments.Parcel `json:"parcel"`
}

// BookShipment hands a confirmed order to the carrier.
func BookShipment(svc shipmentBooker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipment booking unavailable"))
			return
		}
		sellerID, err := sellerctx.ResolveSellerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actorID, ok := middleware.ActorIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthenticated, "actor context missing"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload bookShipmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipment, err := svc.Book(r.Context(), shipments.BookInput{
			OrderID:  orderID,
			SellerID: sellerID,
			ActorID:  actorID,
			Parcel:   payload.Parcel,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newShipmentResponse(*shipment, nil))
	}
}

// Shipment returns tracking for an order the active seller owns.
func Shipment(orders orderReader, svc shipmentReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if orders == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipments service unavailable"))
			return
		}
		detail, err := ownedOrder(r, orders)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tracking, err := svc.GetByOrder(r.Context(), detail.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newShipmentResponse(tracking.Shipment, tracking.Scans))
	}
}

func ownedOrder(r *http.Request, svc orderReader) (*internalorders.OrderDetail, error) {
	sellerID, err := sellerctx.ResolveSellerID(r)
	if err != nil {
		return nil, err
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		return nil, err
	}
	detail, err := svc.Get(r.Context(), orderID)
	if err != nil {
		return nil, err
	}
	// Another seller's order is reported as missing so ids cannot be probed.
	if detail.SellerID != sellerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return detail, nil
}
