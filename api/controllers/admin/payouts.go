package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/api/responses"
	"github.com/angelmondragon/settlement-backend/api/validators"
	"github.com/angelmondragon/settlement-backend/internal/payouts"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

type payoutService interface {
	CalculatePayouts(ctx context.Context, periodStart, periodEnd time.Time) (*payouts.BatchResult, error)
	MarkProcessing(ctx context.Context, payoutID uuid.UUID) (*payouts.PayoutView, error)
	MarkPaid(ctx context.Context, payoutID uuid.UUID, transactionID string) (*payouts.PayoutView, error)
	MarkFailed(ctx context.Context, payoutID uuid.UUID, reason string) (*payouts.PayoutView, error)
	Retry(ctx context.Context, payoutID uuid.UUID) (*payouts.PayoutView, error)
	List(ctx context.Context, params payouts.ListParams) (*payouts.ListResult, error)
	Get(ctx context.Context, payoutID uuid.UUID) (*payouts.PayoutView, error)
}

type calculateRequest struct {
	PeriodStart time.Time `json:"period_start" validate:"required"`
	PeriodEnd   time.Time `json:"period_end" validate:"required"`
}

type markPaidRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,max=120"`
}

type markFailedRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// CalculatePayouts runs the batch engine for an explicit window.
func CalculatePayouts(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req calculateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !req.PeriodEnd.After(req.PeriodStart) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "period_end must be after period_start"))
			return
		}
		result, err := svc.CalculatePayouts(r.Context(), req.PeriodStart.UTC(), req.PeriodEnd.UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ListPayouts returns a page of payouts filtered by seller and status.
func ListPayouts(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params payouts.ListParams
		var err error
		if params.Limit, params.Cursor, err = validators.ParsePage(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.SellerID, err = validators.ParseQueryUUID(r, "seller_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.Status, err = validators.ParseQueryEnum(r, "status", enums.ParsePayoutStatus); err != nil {
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

func GetPayout(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return payoutAction(logg, func(r *http.Request, id uuid.UUID) (*payouts.PayoutView, error) {
		return svc.Get(r.Context(), id)
	})
}

func MarkPayoutProcessing(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return payoutAction(logg, func(r *http.Request, id uuid.UUID) (*payouts.PayoutView, error) {
		return svc.MarkProcessing(r.Context(), id)
	})
}

// MarkPayoutPaid records the bank transfer reference and settles linked orders.
func MarkPayoutPaid(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return payoutAction(logg, func(r *http.Request, id uuid.UUID) (*payouts.PayoutView, error) {
		var req markPaidRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.MarkPaid(r.Context(), id, strings.TrimSpace(req.TransactionID))
	})
}

func MarkPayoutFailed(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return payoutAction(logg, func(r *http.Request, id uuid.UUID) (*payouts.PayoutView, error) {
		var req markFailedRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.MarkFailed(r.Context(), id, validators.SanitizeString(req.Reason, 500))
	})
}

func RetryPayout(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return payoutAction(logg, func(r *http.Request, id uuid.UUID) (*payouts.PayoutView, error) {
		return svc.Retry(r.Context(), id)
	})
}

func payoutAction(logg *logger.Logger, fn func(r *http.Request, id uuid.UUID) (*payouts.PayoutView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithPayoutID(ctx, payoutID.String())
			r = r.WithContext(ctx)
		}
		view, err := fn(r, payoutID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
