// Package coupons records coupon usage exactly once per checkout.
package coupons

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
)

// Outcome describes what Redeem did.
type Outcome string

const (
	OutcomeRedeemed        Outcome = "redeemed"
	OutcomeAlreadyRedeemed Outcome = "already_redeemed"
	OutcomeLimitReached    Outcome = "limit_reached"
	OutcomeUnknownCoupon   Outcome = "unknown_coupon"
)

// Redeem claims one use of the coupon for a gateway order. The redemption row
// is unique per (coupon, gateway order) and the counter only moves while it is
// below the usage limit, so concurrent deliveries cannot over-count.
func Redeem(ctx context.Context, tx *gorm.DB, code string, buyerID uuid.UUID, gatewayOrderID string) (Outcome, error) {
	if tx == nil {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	code = strings.TrimSpace(code)
	if code == "" || gatewayOrderID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "coupon code and gateway order id required")
	}
	db := tx.WithContext(ctx)

	var coupon models.Coupon
	if err := db.Where("code = ?", code).First(&coupon).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OutcomeUnknownCoupon, nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}

	redemption := models.CouponRedemption{CouponID: coupon.ID, BuyerID: buyerID, GatewayOrderID: gatewayOrderID}
	inserted := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&redemption)
	if inserted.Error != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, inserted.Error, "record coupon redemption")
	}
	if inserted.RowsAffected == 0 {
		return OutcomeAlreadyRedeemed, nil
	}

	bumped := db.Model(&models.Coupon{}).
		Where("id = ? AND (usage_limit IS NULL OR used_count < usage_limit)", coupon.ID).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if bumped.Error != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, bumped.Error, "increment coupon usage")
	}
	if bumped.RowsAffected == 0 {
		if err := db.Where("id = ?", redemption.ID).Delete(&models.CouponRedemption{}).Error; err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "discard coupon redemption")
		}
		return OutcomeLimitReached, nil
	}
	return OutcomeRedeemed, nil
}
