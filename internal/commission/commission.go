// Package commission resolves the effective commission rate for a seller and
// splits an order total between platform, payment processor and seller.
package commission

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlement-backend/pkg/db/models"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// SellerTerms is the subset of a seller record that affects commission.
type SellerTerms struct {
	CreatedAt time.Time
	Override  decimal.NullDecimal
}

// Settings is the subset of platform settings that affects the split.
type Settings struct {
	CommissionRate          decimal.Decimal
	NewSellerCommissionRate decimal.NullDecimal
	GrandfatherDate         *time.Time
	GatewayFeeRate          decimal.Decimal
}

// Breakdown is the three-way split of an order total in minor units.
type Breakdown struct {
	Total            int64
	CommissionRate   decimal.Decimal
	GatewayFeeRate   decimal.Decimal
	CommissionAmount int64
	GatewayFeeAmount int64
	SellerNetAmount  int64
}

func TermsFromSeller(seller models.Seller) SellerTerms {
	return SellerTerms{CreatedAt: seller.CreatedAt, Override: seller.CommissionOverride}
}

func SettingsFromModel(row models.PlatformSettings) Settings {
	return Settings{
		CommissionRate:          row.CommissionRate,
		NewSellerCommissionRate: row.NewSellerCommissionRate,
		GrandfatherDate:         row.GrandfatherDate,
		GatewayFeeRate:          row.GatewayFeeRate,
	}
}

// ResolveRate returns the commission percentage that applies to the seller.
// A per-seller override wins. When both a grandfather date and a new-seller
// rate are configured, sellers created on or after the date get the new rate.
// Otherwise the global rate applies.
func ResolveRate(seller SellerTerms, settings Settings) decimal.Decimal {
	if seller.Override.Valid {
		return clampRate(seller.Override.Decimal)
	}
	if settings.GrandfatherDate != nil && settings.NewSellerCommissionRate.Valid {
		if !seller.CreatedAt.Before(*settings.GrandfatherDate) {
			return clampRate(settings.NewSellerCommissionRate.Decimal)
		}
	}
	return clampRate(settings.CommissionRate)
}

// Split computes commission and gateway fee with round-half-up applied to each
// component independently. Rounding remainders land in the seller net, which is
// never negative; if the deductions exceed the total the fee gives way first.
func Split(total int64, commissionRate, gatewayFeeRate decimal.Decimal) Breakdown {
	if total < 0 {
		total = 0
	}
	commissionRate = clampRate(commissionRate)
	gatewayFeeRate = clampRate(gatewayFeeRate)

	commissionAmount := percentOf(total, commissionRate)
	if commissionAmount > total {
		commissionAmount = total
	}
	feeAmount := percentOf(total, gatewayFeeRate)
	if remaining := total - commissionAmount; feeAmount > remaining {
		feeAmount = remaining
	}

	return Breakdown{
		Total:            total,
		CommissionRate:   commissionRate,
		GatewayFeeRate:   gatewayFeeRate,
		CommissionAmount: commissionAmount,
		GatewayFeeAmount: feeAmount,
		SellerNetAmount:  total - commissionAmount - feeAmount,
	}
}

// percentOf rounds half-up; amounts are non-negative so half-away-from-zero is equivalent.
func percentOf(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Div(hundred).Round(0).IntPart()
}

func clampRate(rate decimal.Decimal) decimal.Decimal {
	if rate.LessThan(zero) {
		return zero
	}
	if rate.GreaterThan(hundred) {
		return hundred
	}
	return rate
}
