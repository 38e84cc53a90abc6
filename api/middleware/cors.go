package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS admits browser callers from origins. Replay and throttle headers are
// exposed so dashboards can tell a replayed payout action from a fresh one.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			idempotencyHeader, requestIDHeader, actorIDHeader, actorRoleHeader,
		},
		ExposedHeaders: []string{
			requestIDHeader, "Idempotent-Replayed",
			"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining",
		},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
