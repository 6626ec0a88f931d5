package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RevenueDirection string

const (
	RevenueCharge   RevenueDirection = "charge"
	RevenueReversal RevenueDirection = "reversal"
)

// RevenueEntry is one signed row in the platform revenue ledger. Amount is
// positive for charges and negative for refund reversals. EntryKey is
// deterministic per (source event, direction) so replays collapse to no-ops.
type RevenueEntry struct {
	ID          uuid.UUID        `json:"id"`
	EntryKey    string           `json:"entry_key"`
	Amount      decimal.Decimal  `json:"amount"`
	Source      string           `json:"source"`
	SourceID    uuid.UUID        `json:"source_id"`
	Direction   RevenueDirection `json:"direction"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"created_at"`
}

// BalanceDelta is applied to a user's stored balance by the ledger updater.
type BalanceDelta struct {
	Balance        decimal.Decimal
	PendingBalance decimal.Decimal
}

// Statistics is the read-only rollup returned by the aggregator.
type Statistics struct {
	TotalVolume decimal.Decimal                   `json:"total_volume"`
	TotalFees   decimal.Decimal                   `json:"total_fees"`
	ByStatus    map[PaymentStatus]StatusBreakdown `json:"by_status"`
}

type StatusBreakdown struct {
	Count  int64           `json:"count"`
	Volume decimal.Decimal `json:"volume"`
	Fees   decimal.Decimal `json:"fees"`
}
