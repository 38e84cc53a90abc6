package sellerctx

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
)

// ResolveSellerID extracts the seller resolved by the seller middleware.
func ResolveSellerID(r *http.Request) (uuid.UUID, error) {
	sellerID, ok := middleware.SellerIDFromContext(r.Context())
	if !ok || sellerID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "seller context required")
	}
	return sellerID, nil
}
