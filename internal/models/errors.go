package models

import "errors"

// Error taxonomy surfaced to callers. Handlers map these to HTTP statuses;
// the service layer wraps them with context via %w.
var (
	ErrNotFound = errors.New("not found")

	// ErrValidation covers authorization failures, bad refund amounts and
	// missing assignees.
	ErrValidation = errors.New("validation failed")

	// ErrConflict means an active payment already exists for the task.
	ErrConflict = errors.New("active payment already exists for task")

	// ErrPaymentFailed and ErrRefundFailed are operational declines from the
	// gateway, not bugs. The gateway's diagnostic detail is wrapped around
	// them.
	ErrPaymentFailed = errors.New("payment failed")
	ErrRefundFailed  = errors.New("refund failed")

	// ErrGatewayTimeout marks an unknown outcome: the charge may or may not
	// have gone through. The payment stays PENDING and the reconciler
	// resolves it via the idempotency token. Never conflate with
	// ErrPaymentFailed.
	ErrGatewayTimeout = errors.New("gateway timeout: outcome unknown")
)
