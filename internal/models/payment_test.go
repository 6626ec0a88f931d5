package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]PaymentStatus]bool{
		{StatusPending, StatusCompleted}:                   true,
		{StatusPending, StatusFailed}:                      true,
		{StatusCompleted, StatusPartiallyRefunded}:         true,
		{StatusCompleted, StatusRefunded}:                  true,
		{StatusPartiallyRefunded, StatusPartiallyRefunded}: true,
		{StatusPartiallyRefunded, StatusRefunded}:          true,
	}

	// Everything not in the table above is illegal, including anything out
	// of the terminal states.
	for _, from := range AllPaymentStatuses {
		for _, to := range AllPaymentStatuses {
			want := allowed[[2]PaymentStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatusActive(t *testing.T) {
	assert.True(t, StatusPending.Active())
	assert.True(t, StatusCompleted.Active())
	assert.True(t, StatusPartiallyRefunded.Active())
	assert.False(t, StatusFailed.Active())
	assert.False(t, StatusRefunded.Active())
}

func TestStatusRefundable(t *testing.T) {
	assert.True(t, StatusCompleted.Refundable())
	assert.True(t, StatusPartiallyRefunded.Refundable())
	assert.False(t, StatusPending.Refundable())
	assert.False(t, StatusFailed.Refundable())
	assert.False(t, StatusRefunded.Refundable())
}

func TestPaymentAmounts(t *testing.T) {
	p := &Payment{
		Amount:         decimal.RequireFromString("100.00"),
		PlatformFee:    decimal.RequireFromString("5.00"),
		ProcessingFee:  decimal.RequireFromString("3.20"),
		RefundedAmount: decimal.RequireFromString("30.00"),
	}
	assert.True(t, p.NetPayout().Equal(decimal.RequireFromString("91.80")))
	assert.True(t, p.RemainingRefundable().Equal(decimal.RequireFromString("70.00")))
}
