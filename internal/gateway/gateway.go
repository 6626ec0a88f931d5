package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChargeRequest is one charge attempt against the external processor.
// IdempotencyKey is the payment id; the processor must dedupe on it so a
// retried request returns the original outcome instead of charging twice.
type ChargeRequest struct {
	IdempotencyKey string
	Amount         decimal.Decimal
	Method         string
	Metadata       map[string]string
}

// ChargeResult is the outcome of a charge. A decline is a normal result,
// not an error: Approved is false and Details carries the processor's
// diagnostic (declined card, insufficient funds, ...).
type ChargeResult struct {
	Approved      bool
	TransactionID string
	Details       string
}

// RefundRequest reverses part of a prior charge. IdempotencyKey is the
// refund id.
type RefundRequest struct {
	IdempotencyKey string
	TransactionID  string
	Amount         decimal.Decimal
}

type RefundResult struct {
	Approved bool
	RefundID string
	Details  string
}

// Gateway is the boundary to the external payment processor. Implementations
// never persist local state. Errors mean the outcome is unknown (timeout,
// transport fault); business declines come back as unapproved results.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}
