package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/taskhive/task-marketplace/settlement-service/internal/models"
)

// PaymentRepository defines the contract for payment and refund data access.
// Mutating methods participate in a transaction when the context carries one
// (see TxManager); the compare-and-swap methods report whether the guard
// matched so callers can abort on lost races.
type PaymentRepository interface {
	// Create inserts a PENDING payment. Returns models.ErrConflict when an
	// active payment already exists for the task (partial unique index).
	Create(ctx context.Context, p *models.Payment) error

	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)

	// Settle transitions PENDING -> COMPLETED, recording the gateway
	// transaction id and completion time. Returns false when the payment was
	// not PENDING.
	Settle(ctx context.Context, id uuid.UUID, gatewayTxID string, completedAt time.Time) (bool, error)

	// MarkFailed transitions PENDING -> FAILED with the gateway diagnostic.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)

	// ApplyRefund atomically increments refunded_amount by amount and moves
	// status to PARTIALLY_REFUNDED or REFUNDED. The guard requires a
	// refundable status and amount <= remaining refundable balance; returns
	// the updated payment and false when the guard did not match.
	ApplyRefund(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*models.Payment, bool, error)

	CreateRefund(ctx context.Context, r *models.Refund) error
	ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]models.Refund, error)

	// ListStalePending returns PENDING payments created before cutoff, for
	// the reconciler.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)

	// Aggregate computes the statistics rollup over [from, to]. Nil bounds
	// are open.
	Aggregate(ctx context.Context, from, to *time.Time) (*models.Statistics, error)
}

// TaskStore is the settlement view of the external task service.
type TaskStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status models.TaskPaymentStatus) error
}

// BalanceStore adjusts user balances. Only the ledger updater calls it.
type BalanceStore interface {
	Increment(ctx context.Context, userID uuid.UUID, delta models.BalanceDelta) error
	Decrement(ctx context.Context, userID uuid.UUID, delta models.BalanceDelta) error
}

// RevenueStore appends signed platform revenue entries. Appends are
// idempotent on the entry key.
type RevenueStore interface {
	Append(ctx context.Context, entry *models.RevenueEntry) error
}

// TxManager runs fn inside a database transaction injected through the
// context; stores pick it up transparently.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes check-then-act sections per key. Backed by redis SetNX.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
