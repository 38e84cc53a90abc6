package admin

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/api/responses"
	"github.com/angelmondragon/settlement-backend/api/validators"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
	"github.com/angelmondragon/settlement-backend/pkg/outbox"
)

type deadLetterService interface {
	List(ctx context.Context, params outbox.DeadLetterListParams) (*outbox.DeadLetterPage, error)
	Replay(ctx context.Context, eventID uuid.UUID) (*outbox.DeadLetterView, error)
}

// ListDeadLetters pages through events the publisher gave up on, newest first.
func ListDeadLetters(svc deadLetterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params outbox.DeadLetterListParams
		var err error
		if params.Limit, params.Cursor, err = validators.ParsePage(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.EventType, err = validators.ParseQueryEnum(r, "event_type", enums.ParseOutboxEventType); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.Reason, err = validators.ParseQueryEnum(r, "reason", enums.ParseOutboxDLQErrorReason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// ReplayDeadLetter hands the event back to the publisher with a fresh
// attempt budget. Consumers dedupe on event id, so a replay is safe even if
// the original delivery did land.
func ReplayDeadLetter(svc deadLetterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Replay(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
