package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/api/responses"
	"github.com/angelmondragon/settlement-backend/internal/sellers"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

type sellerResolver interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*sellers.SellerView, error)
}

// SellerContext resolves the seller account owned by the actor.
func SellerContext(resolver sellerResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID, ok := ActorIDFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthenticated, "missing actor"))
				return
			}
			seller, err := resolver.GetByUserID(r.Context(), actorID)
			if err != nil {
				if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
					err = pkgerrors.New(pkgerrors.CodeForbidden, "no seller account for actor")
				}
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ctx := WithSellerID(r.Context(), seller.ID)
			if logg != nil {
				ctx = logg.WithSellerID(ctx, seller.ID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
