package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/taskhive/task-marketplace/settlement-service/internal/interfaces"
	"github.com/taskhive/task-marketplace/settlement-service/internal/models"
)

// Ledger applies settlement money movement: assignee balance adjustments
// plus the matching signed platform revenue entry. It must only run inside
// the processors' transactions; exactly-once is guaranteed by the caller's
// compare-and-swap on the payment row, with the deterministic revenue entry
// key as a second line of defense.
type Ledger struct {
	balances interfaces.BalanceStore
	revenue  interfaces.RevenueStore
}

func NewLedger(balances interfaces.BalanceStore, revenue interfaces.RevenueStore) *Ledger {
	return &Ledger{balances: balances, revenue: revenue}
}

// Credit pays the assignee their net payout and records the platform's fee
// take for a completed charge. eventID is the payment id.
func (l *Ledger) Credit(ctx context.Context, assigneeID uuid.UUID, net, fee decimal.Decimal, taskID, eventID uuid.UUID) error {
	if err := l.balances.Increment(ctx, assigneeID, models.BalanceDelta{
		Balance:        net,
		PendingBalance: net,
	}); err != nil {
		return fmt.Errorf("crediting assignee %s: %w", assigneeID, err)
	}

	return l.revenue.Append(ctx, &models.RevenueEntry{
		ID:          uuid.New(),
		EntryKey:    fmt.Sprintf("%s:%s", eventID, models.RevenueCharge),
		Amount:      fee,
		Source:      "task_payment",
		SourceID:    taskID,
		Direction:   models.RevenueCharge,
		Description: fmt.Sprintf("Fees for payment %s on task %s", eventID, taskID),
		CreatedAt:   time.Now(),
	})
}

// Debit reverses a previously credited payout for a refund and records
// negative platform revenue. eventID is the refund id.
func (l *Ledger) Debit(ctx context.Context, assigneeID uuid.UUID, net, fee decimal.Decimal, taskID, eventID uuid.UUID) error {
	if err := l.balances.Decrement(ctx, assigneeID, models.BalanceDelta{
		Balance:        net,
		PendingBalance: net,
	}); err != nil {
		return fmt.Errorf("debiting assignee %s: %w", assigneeID, err)
	}

	return l.revenue.Append(ctx, &models.RevenueEntry{
		ID:          uuid.New(),
		EntryKey:    fmt.Sprintf("%s:%s", eventID, models.RevenueReversal),
		Amount:      fee.Neg(),
		Source:      "task_payment",
		SourceID:    taskID,
		Direction:   models.RevenueReversal,
		Description: fmt.Sprintf("Fee reversal for refund %s on task %s", eventID, taskID),
		CreatedAt:   time.Now(),
	})
}
