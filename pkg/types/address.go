package types

import "strings"

// Address is the shipping address snapshot captured on an order at checkout.
type Address struct {
	Name       string  `json:"name" validate:"required"`
	Phone      string  `json:"phone" validate:"required"`
	Line1      string  `json:"line1" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	State      string  `json:"state" validate:"required"`
	PostalCode string  `json:"postal_code" validate:"required"`
	Country    string  `json:"country"`
}

// CountryOrDefault returns the ISO country, falling back to the marketplace home country.
func (a Address) CountryOrDefault() string {
	if c := strings.TrimSpace(a.Country); c != "" {
		return c
	}
	return "IN"
}
