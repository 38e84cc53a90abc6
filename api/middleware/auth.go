package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/api/responses"
	"github.com/angelmondragon/settlement-backend/pkg/auth"
	"github.com/angelmondragon/settlement-backend/pkg/config"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

const (
	upstreamTokenHeader = "X-Upstream-Token"
	actorIDHeader       = "X-Actor-Id"
	actorRoleHeader     = "X-Actor-Role"
	bearerPrefix        = "Bearer "
)

// Auth seeds the actor set by the edge proxy. With assertions configured the
// actor comes from a signed bearer token; otherwise it is read from forwarded
// headers, and UpstreamToken, when set, rejects requests that bypassed the proxy.
func Auth(cfg config.AuthConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				actorID uuid.UUID
				role    enums.ActorRole
				err     error
			)
			if cfg.UsesAssertions() {
				actorID, role, err = actorFromAssertion(cfg, r)
			} else {
				actorID, role, err = actorFromHeaders(cfg, r)
			}
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithActor(r.Context(), actorID, role)
			if logg != nil {
				ctx = logg.WithActor(ctx, actorID.String(), string(role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFromAssertion(cfg config.AuthConfig, r *http.Request) (uuid.UUID, enums.ActorRole, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthenticated, "missing bearer assertion")
	}
	claims, err := auth.ParseActorToken(cfg, strings.TrimSpace(header[len(bearerPrefix):]))
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeUnauthenticated, err, "invalid actor assertion")
	}
	return claims.ActorID, claims.Role, nil
}

func actorFromHeaders(cfg config.AuthConfig, r *http.Request) (uuid.UUID, enums.ActorRole, error) {
	if cfg.UpstreamToken != "" {
		got := r.Header.Get(upstreamTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.UpstreamToken)) != 1 {
			return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthenticated, "request did not pass the edge proxy")
		}
	}

	rawID := strings.TrimSpace(r.Header.Get(actorIDHeader))
	if rawID == "" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthenticated, "missing actor")
	}
	actorID, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeUnauthenticated, err, "invalid actor id")
	}
	role, err := enums.ParseActorRole(r.Header.Get(actorRoleHeader))
	if err != nil || role == enums.ActorRoleSystem {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthenticated, "invalid actor role")
	}
	return actorID, role, nil
}
