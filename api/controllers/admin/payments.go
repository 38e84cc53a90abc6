package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/settlement-backend/api/responses"
	"github.com/angelmondragon/settlement-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

type paymentVerifier interface {
	Verify(ctx context.Context, gatewayOrderID string) (*payments.Summary, error)
}

// VerifyPayment polls the gateway for one checkout. Unlike the webhook,
// gateway and integrity errors are returned to the caller.
func VerifyPayment(svc paymentVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gatewayOrderID := strings.TrimSpace(chi.URLParam(r, "gatewayOrderId"))
		if gatewayOrderID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id is required"))
			return
		}
		summary, err := svc.Verify(r.Context(), gatewayOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
