package types

import "strings"

// BankDetails holds a seller's payout destination. Payouts snapshot it at creation.
type BankDetails struct {
	AccountHolder string `json:"account_holder" gorm:"column:account_holder"`
	AccountNumber string `json:"account_number" gorm:"column:account_number"`
	RoutingCode   string `json:"routing_code" gorm:"column:routing_code"`
	BankName      string `json:"bank_name" gorm:"column:bank_name"`
}

// IsComplete reports whether every field needed for a transfer is present.
func (b BankDetails) IsComplete() bool {
	return strings.TrimSpace(b.AccountHolder) != "" &&
		strings.TrimSpace(b.AccountNumber) != "" &&
		strings.TrimSpace(b.RoutingCode) != "" &&
		strings.TrimSpace(b.BankName) != ""
}

// Masked returns a copy safe to log or return to admins.
func (b BankDetails) Masked() BankDetails {
	out := b
	n := len(b.AccountNumber)
	if n > 4 {
		out.AccountNumber = strings.Repeat("*", n-4) + b.AccountNumber[n-4:]
	}
	return out
}
