package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNormalizesInput(t *testing.T) {
	status, err := ParsePaymentStatus("  Refund_Pending ")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusRefundPending, status)

	reason, err := ParseOutboxDLQErrorReason("MAX_ATTEMPTS")
	require.NoError(t, err)
	assert.Equal(t, OutboxDLQReasonMaxAttempts, reason)
}

func TestParseRejectsUnknown(t *testing.T) {
	_, err := ParseOrderStatus("teleported")
	assert.EqualError(t, err, `invalid order status "teleported"`)

	_, err = ParseOutboxEventType("")
	assert.Error(t, err)
}

func TestIsValidIsExact(t *testing.T) {
	assert.True(t, PaymentStatusPaid.IsValid())
	assert.False(t, PaymentStatus("PAID").IsValid(), "stored values are never normalized")
	assert.True(t, AggregatePayout.IsValid())
	assert.False(t, OutboxAggregateType("cart").IsValid())
}
