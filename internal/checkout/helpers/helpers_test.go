package helpers

import (
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

func TestGroupLinesBySeller(t *testing.T) {
	t.Parallel()
	sellerA := uuid.New()
	sellerB := uuid.New()
	lines := []PricedLine{
		{ProductID: uuid.New(), SellerID: sellerA, UnitPrice: 100, Quantity: 2},
		{ProductID: uuid.New(), SellerID: sellerB, UnitPrice: 250, Quantity: 1},
		{ProductID: uuid.New(), SellerID: sellerA, UnitPrice: 50, Quantity: 3},
	}

	groups := GroupLinesBySeller(lines)
	if len(groups) != 2 {
		t.Fatalf("expected 2 sellers, got %d", len(groups))
	}
	if groups[0].SellerID != sellerA || groups[1].SellerID != sellerB {
		t.Fatalf("expected first-seen seller order")
	}
	if len(groups[0].Lines) != 2 {
		t.Fatalf("expected 2 lines for sellerA, got %d", len(groups[0].Lines))
	}
	if groups[0].ItemTotal != 350 {
		t.Fatalf("expected sellerA item total 350, got %d", groups[0].ItemTotal)
	}
	if groups[1].ItemTotal != 250 {
		t.Fatalf("expected sellerB item total 250, got %d", groups[1].ItemTotal)
	}
}

func TestValidateLines(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	cases := map[string][]LineRequest{
		"empty":     nil,
		"nil id":    {{Quantity: 1}},
		"zero qty":  {{ProductID: id}},
		"duplicate": {{ProductID: id, Quantity: 1}, {ProductID: id, Quantity: 2}},
	}
	for name, lines := range cases {
		if err := ValidateLines(lines); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if err := ValidateLines([]LineRequest{{ProductID: id, Quantity: 1}}); err != nil {
		t.Fatalf("expected valid lines, got %v", err)
	}
}

func TestValidateShippingAddress(t *testing.T) {
	t.Parallel()
	err := ValidateShippingAddress(types.Address{Name: "Buyer", City: "Pune"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details := typed.Details().(map[string]any)
	missing := details["missing"].([]string)
	if len(missing) != 4 {
		t.Fatalf("expected 4 missing fields, got %v", missing)
	}

	full := types.Address{Name: "B", Phone: "1", Line1: "x", City: "c", State: "s", PostalCode: "p"}
	if err := ValidateShippingAddress(full); err != nil {
		t.Fatalf("expected complete address, got %v", err)
	}
}

func TestValidateStock(t *testing.T) {
	t.Parallel()
	lamp, rug := uuid.New(), uuid.New()
	lines := []PricedLine{
		{ProductID: lamp, Name: "Lamp", Quantity: 3},
		{ProductID: rug, Name: "Rug", Quantity: 1},
	}
	if err := ValidateStock(lines, map[uuid.UUID]int{lamp: 3, rug: 5}); err != nil {
		t.Fatalf("expected enough stock, got %v", err)
	}

	err := ValidateStock(lines, map[uuid.UUID]int{lamp: 2})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	details, _ := pkgerrors.As(err).Details().(map[string]any)
	short, _ := details["violations"].([]StockShortfall)
	if len(short) != 2 || short[0].AvailableQty != 2 || short[1].AvailableQty != 0 {
		t.Fatalf("expected both lines reported, got %+v", short)
	}
}
