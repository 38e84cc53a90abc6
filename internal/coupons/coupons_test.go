package coupons

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-backend/pkg/db/dbtest"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
)

func TestRedeemOncePerGatewayOrder(t *testing.T) {
	conn := dbtest.Open(t)
	coupon := models.Coupon{Code: "WELCOME10"}
	require.NoError(t, conn.Create(&coupon).Error)
	ctx := context.Background()
	buyer := uuid.New()

	outcome, err := Redeem(ctx, conn, "WELCOME10", buyer, "gw_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRedeemed, outcome)

	outcome, err = Redeem(ctx, conn, "WELCOME10", buyer, "gw_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyRedeemed, outcome)

	var reloaded models.Coupon
	require.NoError(t, conn.First(&reloaded, "id = ?", coupon.ID).Error)
	assert.Equal(t, 1, reloaded.UsedCount)
}

func TestRedeemRespectsUsageLimit(t *testing.T) {
	conn := dbtest.Open(t)
	limit := 1
	coupon := models.Coupon{Code: "ONCE", UsageLimit: &limit}
	require.NoError(t, conn.Create(&coupon).Error)
	ctx := context.Background()

	outcome, err := Redeem(ctx, conn, "ONCE", uuid.New(), "gw_a")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRedeemed, outcome)

	outcome, err = Redeem(ctx, conn, "ONCE", uuid.New(), "gw_b")
	require.NoError(t, err)
	assert.Equal(t, OutcomeLimitReached, outcome)

	var redemptions int64
	require.NoError(t, conn.Model(&models.CouponRedemption{}).Where("coupon_id = ?", coupon.ID).Count(&redemptions).Error)
	assert.Equal(t, int64(1), redemptions)

	var reloaded models.Coupon
	require.NoError(t, conn.First(&reloaded, "id = ?", coupon.ID).Error)
	assert.Equal(t, 1, reloaded.UsedCount)
}

func TestRedeemUnknownCoupon(t *testing.T) {
	conn := dbtest.Open(t)
	outcome, err := Redeem(context.Background(), conn, "NOPE", uuid.New(), "gw_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownCoupon, outcome)

	_, err = Redeem(context.Background(), conn, " ", uuid.New(), "gw_1")
	assert.Error(t, err)
}
