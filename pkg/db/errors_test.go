package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_coupon_redemptions_checkout"}

	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), ""))
	assert.True(t, IsUniqueViolation(pgErr, "ux_coupon_redemptions_checkout"))
	assert.False(t, IsUniqueViolation(pgErr, "ux_other"))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: coupons.code"), ""))
	assert.False(t, IsUniqueViolation(errors.New("connection reset"), ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}

func TestIsExclusionViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23P01", ConstraintName: "ex_seller_payouts_period"}

	assert.True(t, IsExclusionViolation(fmt.Errorf("insert payout: %w", pgErr), "ex_seller_payouts_period"))
	assert.True(t, IsExclusionViolation(pgErr, ""))
	assert.False(t, IsExclusionViolation(pgErr, "ex_other"))
	assert.False(t, IsExclusionViolation(&pgconn.PgError{Code: "23505"}, ""))
	assert.False(t, IsExclusionViolation(errors.New("conflicting key value violates exclusion constraint"), ""))
	assert.False(t, IsExclusionViolation(nil, ""))
}
