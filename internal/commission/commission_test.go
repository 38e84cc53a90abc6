package commission

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-backend/pkg/db/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSplitTenAndThreePercent(t *testing.T) {
	got := Split(1000, dec("10"), dec("3"))
	assert.Equal(t, int64(100), got.CommissionAmount)
	assert.Equal(t, int64(30), got.GatewayFeeAmount)
	assert.Equal(t, int64(870), got.SellerNetAmount)
}

func TestSplitRoundsHalfUpPerComponent(t *testing.T) {
	// 1005 * 2.5% = 25.125 -> 25 ; 1005 * 1.95% = 19.5975 -> 20
	got := Split(1005, dec("2.5"), dec("1.95"))
	assert.Equal(t, int64(25), got.CommissionAmount)
	assert.Equal(t, int64(20), got.GatewayFeeAmount)
	assert.Equal(t, int64(960), got.SellerNetAmount)

	// 50 * 5% = 2.5 -> 3
	half := Split(50, dec("5"), dec("0"))
	assert.Equal(t, int64(3), half.CommissionAmount)
	assert.Equal(t, int64(47), half.SellerNetAmount)
}

func TestSplitSumInvariantHoldsAcrossInputs(t *testing.T) {
	rates := []string{"0", "0.5", "2", "7.25", "10", "12.5", "33.333", "60", "99", "100"}
	for total := int64(0); total <= 2500; total += 37 {
		for _, c := range rates {
			for _, f := range rates {
				b := Split(total, dec(c), dec(f))
				require.Equal(t, total, b.CommissionAmount+b.GatewayFeeAmount+b.SellerNetAmount,
					"total=%d commission=%s fee=%s", total, c, f)
				require.GreaterOrEqual(t, b.SellerNetAmount, int64(0))
			}
		}
	}
}

func TestSplitClampsWhenDeductionsExceedTotal(t *testing.T) {
	got := Split(1000, dec("80"), dec("40"))
	assert.Equal(t, int64(800), got.CommissionAmount, "commission is never reduced")
	assert.Equal(t, int64(200), got.GatewayFeeAmount)
	assert.Equal(t, int64(0), got.SellerNetAmount)

	clamped := Split(1000, dec("150"), dec("-5"))
	assert.True(t, clamped.CommissionRate.Equal(dec("100")))
	assert.True(t, clamped.GatewayFeeRate.IsZero())
	assert.Equal(t, int64(1000), clamped.CommissionAmount)
	assert.Equal(t, int64(0), clamped.SellerNetAmount)
}

func TestResolveRatePriority(t *testing.T) {
	grandfather := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	settings := Settings{
		CommissionRate:          dec("10"),
		NewSellerCommissionRate: decimal.NewNullDecimal(dec("12")),
		GrandfatherDate:         &grandfather,
		GatewayFeeRate:          dec("2"),
	}

	oldSeller := SellerTerms{CreatedAt: grandfather.Add(-time.Hour)}
	newSeller := SellerTerms{CreatedAt: grandfather}
	override := SellerTerms{CreatedAt: grandfather.Add(time.Hour), Override: decimal.NewNullDecimal(dec("5"))}

	assert.True(t, ResolveRate(oldSeller, settings).Equal(dec("10")))
	assert.True(t, ResolveRate(newSeller, settings).Equal(dec("12")), "on the grandfather date counts as new")
	assert.True(t, ResolveRate(override, settings).Equal(dec("5")))
}

func TestResolveRateIgnoresHalfConfiguredGrandfatherRule(t *testing.T) {
	grandfather := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seller := SellerTerms{CreatedAt: grandfather.Add(24 * time.Hour)}

	onlyDate := Settings{CommissionRate: dec("10"), GrandfatherDate: &grandfather}
	assert.True(t, ResolveRate(seller, onlyDate).Equal(dec("10")))

	onlyRate := Settings{CommissionRate: dec("10"), NewSellerCommissionRate: decimal.NewNullDecimal(dec("15"))}
	assert.True(t, ResolveRate(seller, onlyRate).Equal(dec("10")))
}

func TestFromModels(t *testing.T) {
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	seller := models.Seller{CreatedAt: created, CommissionOverride: decimal.NewNullDecimal(dec("7"))}
	terms := TermsFromSeller(seller)
	assert.Equal(t, created, terms.CreatedAt)
	assert.True(t, terms.Override.Valid)

	settings := SettingsFromModel(models.PlatformSettings{CommissionRate: dec("10"), GatewayFeeRate: dec("2")})
	assert.True(t, settings.GatewayFeeRate.Equal(dec("2")))
	assert.True(t, ResolveRate(terms, settings).Equal(dec("7")))
}
