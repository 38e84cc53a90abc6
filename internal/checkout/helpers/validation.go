package helpers

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

// LineRequest is a product and quantity asked for at checkout.
type LineRequest struct {
	ProductID uuid.UUID
	Quantity  int
}

// ValidateLines rejects empty carts, non-positive quantities and repeated products.
func ValidateLines(lines []LineRequest) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout contains no items")
	}
	seen := make(map[uuid.UUID]struct{}, len(lines))
	for _, line := range lines {
		if line.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		if _, dup := seen[line.ProductID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "product listed more than once").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		seen[line.ProductID] = struct{}{}
	}
	return nil
}

// ValidateShippingAddress ensures the snapshot carries what the carrier needs.
func ValidateShippingAddress(addr types.Address) error {
	var missing []string
	check := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	check("name", addr.Name)
	check("phone", addr.Phone)
	check("line1", addr.Line1)
	check("city", addr.City)
	check("state", addr.State)
	check("postal_code", addr.PostalCode)
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

// StockShortfall is one line whose requested quantity exceeds stock.
type StockShortfall struct {
	ProductID    uuid.UUID `json:"product_id"`
	ProductName  string    `json:"product_name,omitempty"`
	AvailableQty int       `json:"available_qty"`
	RequestedQty int       `json:"requested_qty"`
}

// ValidateStock reports every line that cannot be filled from available.
// Stock is only decremented when payment confirms, so this is advisory.
func ValidateStock(lines []PricedLine, available map[uuid.UUID]int) error {
	var short []StockShortfall
	for _, line := range lines {
		have := available[line.ProductID]
		if line.Quantity <= have {
			continue
		}
		short = append(short, StockShortfall{
			ProductID:    line.ProductID,
			ProductName:  line.Name,
			AvailableQty: have,
			RequestedQty: line.Quantity,
		})
	}
	if len(short) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("insufficient stock for %d item(s)", len(short))).
		WithDetails(map[string]any{"violations": short})
}
