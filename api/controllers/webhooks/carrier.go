package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/settlement-backend/api/responses"
	"github.com/angelmondragon/settlement-backend/internal/shipments"
	internalwebhooks "github.com/angelmondragon/settlement-backend/internal/webhooks"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

const (
	carrierSource = "carrier"

	headerCarrierToken = "X-Api-Key"
)

type trackingHandler interface {
	HandleEvent(ctx context.Context, ev shipments.TrackingEvent) (*shipments.Result, error)
}

// CarrierWebhook accepts tracking pushes from the shipping aggregator. The
// carrier sends no delivery id, so exact redeliveries are keyed by body digest.
func CarrierWebhook(svc trackingHandler, token string, guard deliveryGuard, metrics webhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracking service unavailable"))
			return
		}
		if token != "" {
			if err := shipments.VerifyToken(token, r.Header.Get(headerCarrierToken)); err != nil {
				count(metrics, carrierSource, outcomeRejected)
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		ev, err := shipments.NormalizeCarrierPayload(body)
		if err != nil {
			count(metrics, carrierSource, outcomeMalformed)
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "carrier webhook payload rejected")
			}
			responses.WriteSuccess(w, ack{Received: true})
			return
		}

		eventID := internalwebhooks.BodyDigest(body)
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"awb":         ev.AWB,
				"status_code": ev.StatusCode,
			})
		}

		if guard != nil {
			seen, guardErr := guard.CheckAndMark(ctx, eventID)
			switch {
			case guardErr != nil:
				count(metrics, carrierSource, outcomeGuardFailure)
				if logg != nil {
					logg.Error(ctx, "carrier webhook guard unavailable", guardErr)
				}
			case seen:
				count(metrics, carrierSource, outcomeDuplicate)
				responses.WriteSuccess(w, ack{Received: true, Duplicate: true})
				return
			}
		}

		result, err := svc.HandleEvent(ctx, ev)
		if err != nil {
			count(metrics, carrierSource, outcomeFailed)
			if guard != nil {
				if delErr := guard.Delete(ctx, eventID); delErr != nil && logg != nil {
					logg.Error(ctx, "carrier webhook guard release failed", delErr)
				}
			}
			if logg != nil {
				logg.Error(ctx, "carrier webhook processing failed", err)
			}
			responses.WriteSuccess(w, ack{Received: true})
			return
		}

		outcome := outcomeProcessed
		if result.Ignored {
			outcome = outcomeIgnored
		}
		count(metrics, carrierSource, outcome)
		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"ignored":   result.Ignored,
				"changed":   result.Changed,
				"to":        string(result.To),
				"new_scans": result.NewScans,
			})
			logg.Info(logCtx, "carrier webhook handled")
		}
		responses.WriteSuccess(w, ack{Received: true, Result: result})
	}
}
