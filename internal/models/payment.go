package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusPending           PaymentStatus = "PENDING"
	StatusCompleted         PaymentStatus = "COMPLETED"
	StatusFailed            PaymentStatus = "FAILED"
	StatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	StatusRefunded          PaymentStatus = "REFUNDED"
)

// paymentTransitions is the full lifecycle. FAILED and REFUNDED are terminal.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	StatusPending:           {StatusCompleted, StatusFailed},
	StatusCompleted:         {StatusPartiallyRefunded, StatusRefunded},
	StatusPartiallyRefunded: {StatusPartiallyRefunded, StatusRefunded},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Active reports whether a payment in this status blocks new payments for
// its task. FAILED does not block: a declined charge may be retried with a
// fresh payment attempt.
func (s PaymentStatus) Active() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusPartiallyRefunded:
		return true
	}
	return false
}

// Refundable reports whether a refund may be taken against this status,
// i.e. whether the lifecycle allows stepping from it to REFUNDED.
func (s PaymentStatus) Refundable() bool {
	return CanTransition(s, StatusRefunded)
}

// AllPaymentStatuses lists every status, used to zero-initialize rollups.
var AllPaymentStatuses = []PaymentStatus{
	StatusPending,
	StatusCompleted,
	StatusFailed,
	StatusPartiallyRefunded,
	StatusRefunded,
}

type Payment struct {
	ID                   uuid.UUID       `json:"id"`
	TaskID               uuid.UUID       `json:"task_id"`
	PayerID              uuid.UUID       `json:"payer_id"`
	Amount               decimal.Decimal `json:"amount"`
	PlatformFee          decimal.Decimal `json:"platform_fee"`
	ProcessingFee        decimal.Decimal `json:"processing_fee"`
	Status               PaymentStatus   `json:"status"`
	PaymentMethod        string          `json:"payment_method"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty"`
	FailureReason        string          `json:"failure_reason,omitempty"`
	RefundedAmount       decimal.Decimal `json:"refunded_amount"`
	CreatedAt            time.Time       `json:"created_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
}

// NetPayout is the amount the assignee was credited for this payment.
func (p *Payment) NetPayout() decimal.Decimal {
	return p.Amount.Sub(p.PlatformFee).Sub(p.ProcessingFee)
}

// RemainingRefundable is the upper bound for the next partial refund.
func (p *Payment) RemainingRefundable() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}

type RefundStatus string

const (
	RefundCompleted RefundStatus = "COMPLETED"
)

type Refund struct {
	ID              uuid.UUID       `json:"id"`
	PaymentID       uuid.UUID       `json:"payment_id"`
	Amount          decimal.Decimal `json:"amount"`
	Reason          string          `json:"reason"`
	RequestedBy     uuid.UUID       `json:"requested_by"`
	Status          RefundStatus    `json:"status"`
	GatewayRefundID string          `json:"gateway_refund_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
