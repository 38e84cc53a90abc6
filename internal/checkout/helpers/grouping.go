package helpers

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/pkg/db/models"
)

// PricedLine is a requested line with its product snapshot resolved.
type PricedLine struct {
	ProductID uuid.UUID
	SellerID  uuid.UUID
	Name      string
	UnitPrice int64
	Quantity  int
}

// LineTotal is unit price times quantity.
func (l PricedLine) LineTotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// OrderItem converts the line into its persisted snapshot.
func (l PricedLine) OrderItem() models.OrderItem {
	return models.OrderItem{
		ProductID: l.ProductID,
		Name:      l.Name,
		UnitPrice: l.UnitPrice,
		Quantity:  l.Quantity,
	}
}

// SellerGroup holds the lines of one seller in request order.
type SellerGroup struct {
	SellerID  uuid.UUID
	Lines     []PricedLine
	ItemTotal int64
}

// GroupLinesBySeller groups lines by seller, keeping first-seen seller order
// so sibling orders are created deterministically.
func GroupLinesBySeller(lines []PricedLine) []SellerGroup {
	index := make(map[uuid.UUID]int, len(lines))
	var groups []SellerGroup
	for _, line := range lines {
		i, ok := index[line.SellerID]
		if !ok {
			i = len(groups)
			index[line.SellerID] = i
			groups = append(groups, SellerGroup{SellerID: line.SellerID})
		}
		groups[i].Lines = append(groups[i].Lines, line)
		groups[i].ItemTotal += line.LineTotal()
	}
	return groups
}
