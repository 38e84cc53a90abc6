package sellers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/api/controllers/sellerctx"
	"github.com/angelmondragon/settlement-backend/api/responses"
	"github.com/angelmondragon/settlement-backend/api/validators"
	internalsellers "github.com/angelmondragon/settlement-backend/internal/sellers"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

type sellerService interface {
	Get(ctx context.Context, id uuid.UUID) (*internalsellers.SellerView, error)
	SaveBankDetails(ctx context.Context, sellerID uuid.UUID, bank types.BankDetails) (*internalsellers.BankDetailsResult, error)
}

type bankDetailsRequest struct {
	AccountHolder string `json:"account_holder" validate:"notblank,max=120"`
	AccountNumber string `json:"account_number" validate:"notblank,max=34"`
	RoutingCode   string `json:"routing_code" validate:"notblank,max=20"`
	BankName      string `json:"bank_name" validate:"omitempty,max=120"`
}

// Me returns the active seller's profile and bank completeness.
func Me(svc sellerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sellers service unavailable"))
			return
		}
		sellerID, err := sellerctx.ResolveSellerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// SaveBankDetails stores payout bank details. Completing them releases any
// payouts held for missing details; a failed release is reported in the body
// and does not fail the save.
func SaveBankDetails(svc sellerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sellers service unavailable"))
			return
		}
		sellerID, err := sellerctx.ResolveSellerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload bankDetailsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SaveBankDetails(r.Context(), sellerID, types.BankDetails{
			AccountHolder: validators.SanitizeString(payload.AccountHolder, 120),
			AccountNumber: validators.SanitizeString(payload.AccountNumber, 34),
			RoutingCode:   validators.SanitizeString(payload.RoutingCode, 20),
			BankName:      validators.SanitizeString(payload.BankName, 120),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
