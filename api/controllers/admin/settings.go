package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlement-backend/api/responses"
	"github.com/angelmondragon/settlement-backend/api/validators"
	"github.com/angelmondragon/settlement-backend/internal/settings"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

type settingsService interface {
	Current(ctx context.Context) (settings.View, error)
	Update(ctx context.Context, input settings.UpdateInput) (settings.View, error)
}

type settingsRequest struct {
	CommissionRate          decimal.Decimal  `json:"commission_rate"`
	NewSellerCommissionRate *decimal.Decimal `json:"new_seller_commission_rate"`
	GrandfatherDate         *time.Time       `json:"grandfather_date"`
	GatewayFeeRate          decimal.Decimal  `json:"gateway_fee_rate"`
	PayoutSchedule          string           `json:"payout_schedule" validate:"required"`
	MinimumPayoutAmount     int64            `json:"minimum_payout_amount" validate:"gte=0"`
}

func GetSettings(svc settingsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Current(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// UpdateSettings replaces the platform settings. Rate bounds are enforced by
// the settings service so the cron path and this handler share them.
func UpdateSettings(svc settingsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req settingsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		schedule, err := enums.ParsePayoutSchedule(strings.TrimSpace(req.PayoutSchedule))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown payout schedule"))
			return
		}
		view, err := svc.Update(r.Context(), settings.UpdateInput{
			CommissionRate:          req.CommissionRate,
			NewSellerCommissionRate: req.NewSellerCommissionRate,
			GrandfatherDate:         req.GrandfatherDate,
			GatewayFeeRate:          req.GatewayFeeRate,
			PayoutSchedule:          schedule,
			MinimumPayoutAmount:     req.MinimumPayoutAmount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
