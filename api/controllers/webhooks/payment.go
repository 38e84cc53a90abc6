package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/settlement-backend/api/responses"
	"github.com/angelmondragon/settlement-backend/internal/payments"
	internalwebhooks "github.com/angelmondragon/settlement-backend/internal/webhooks"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

const (
	paymentSource = "gateway"

	headerGatewayTimestamp = "X-Gateway-Timestamp"
	headerGatewaySignature = "X-Gateway-Signature"
	headerGatewayEventID   = "X-Gateway-Event-Id"

	maxWebhookBody = 1 << 20
)

type paymentConfirmer interface {
	Authenticate(delivery payments.Delivery) (payments.Notification, error)
	HandleNotification(ctx context.Context, n payments.Notification) (*payments.Summary, error)
}

// PaymentWebhook accepts gateway payment notifications. Only authentication
// failures are refused; everything else is acknowledged with 200 because a
// redelivery is a cheap no-op and failures surface through reconciliation.
func PaymentWebhook(svc paymentConfirmer, guard deliveryGuard, metrics webhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		n, err := svc.Authenticate(payments.Delivery{
			Timestamp: r.Header.Get(headerGatewayTimestamp),
			Signature: r.Header.Get(headerGatewaySignature),
			Body:      body,
		})
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeUnauthenticated) || pkgerrors.HasCode(err, pkgerrors.CodeInternal) {
				count(metrics, paymentSource, outcomeRejected)
				responses.WriteError(ctx, logg, w, err)
				return
			}
			count(metrics, paymentSource, outcomeMalformed)
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "gateway webhook payload rejected")
			}
			responses.WriteSuccess(w, ack{Received: true})
			return
		}

		eventID := firstNonEmpty(n.EventID, strings.TrimSpace(r.Header.Get(headerGatewayEventID)), internalwebhooks.BodyDigest(body))
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"gateway_event_id": eventID,
				"gateway_event":    n.Event,
				"gateway_order_id": n.GatewayOrderID,
			})
		}

		if guard != nil {
			seen, guardErr := guard.CheckAndMark(ctx, eventID)
			switch {
			case guardErr != nil:
				// Processing is idempotent on its own; the guard only saves work.
				count(metrics, paymentSource, outcomeGuardFailure)
				if logg != nil {
					logg.Error(ctx, "gateway webhook guard unavailable", guardErr)
				}
			case seen:
				count(metrics, paymentSource, outcomeDuplicate)
				responses.WriteSuccess(w, ack{Received: true, Duplicate: true, EventID: eventID})
				return
			}
		}

		summary, err := svc.HandleNotification(ctx, n)
		if err != nil {
			count(metrics, paymentSource, outcomeFailed)
			if guard != nil {
				if delErr := guard.Delete(ctx, eventID); delErr != nil && logg != nil {
					logg.Error(ctx, "gateway webhook guard release failed", delErr)
				}
			}
			if logg != nil {
				logg.Error(ctx, "gateway webhook processing failed", err)
			}
			responses.WriteSuccess(w, ack{Received: true, EventID: eventID})
			return
		}

		outcome := outcomeProcessed
		if summary.Reason == payments.ReasonIgnoredEvent {
			outcome = outcomeIgnored
		}
		count(metrics, paymentSource, outcome)
		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"matched":      summary.Matched,
				"processed":    summary.Processed,
				"already_paid": summary.AlreadyPaid,
				"reason":       string(summary.Reason),
			})
			logg.Info(logCtx, "gateway webhook handled")
		}
		responses.WriteSuccess(w, ack{Received: true, EventID: eventID, Result: summary})
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
