package controllers

import (
	"net/http"

	"github.com/angelmondragon/settlement-backend/api/middleware"
	"github.com/angelmondragon/settlement-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// ActorPing echoes the actor the edge proxy forwarded.
func ActorPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"status": "ok", "role": string(middleware.RoleFromContext(r.Context()))}
		if id, ok := middleware.ActorIDFromContext(r.Context()); ok {
			payload["actor_id"] = id.String()
		}
		if sellerID, ok := middleware.SellerIDFromContext(r.Context()); ok {
			payload["seller_id"] = sellerID.String()
		}
		responses.WriteSuccess(w, payload)
	}
}
