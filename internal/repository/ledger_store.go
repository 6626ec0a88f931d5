package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskhive/task-marketplace/settlement-service/internal/models"
)

// BalanceStore adjusts user balance rows in place. Rows are owned by the
// user service; settlement only ever increments and decrements.
type BalanceStore struct {
	db *sql.DB
}

func NewBalanceStore(db *sql.DB) *BalanceStore {
	return &BalanceStore{db: db}
}

func (s *BalanceStore) InitDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS user_balances (
			user_id UUID PRIMARY KEY,
			balance NUMERIC(12,2) NOT NULL DEFAULT 0,
			pending_balance NUMERIC(12,2) NOT NULL DEFAULT 0
		)`)
	return err
}

func (s *BalanceStore) Increment(ctx context.Context, userID uuid.UUID, delta models.BalanceDelta) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO user_balances (user_id, balance, pending_balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = user_balances.balance + $2,
		    pending_balance = user_balances.pending_balance + $3
	`, userID, delta.Balance, delta.PendingBalance)
	return err
}

func (s *BalanceStore) Decrement(ctx context.Context, userID uuid.UUID, delta models.BalanceDelta) error {
	result, err := exec(ctx, s.db).ExecContext(ctx, `
		UPDATE user_balances
		SET balance = balance - $2, pending_balance = pending_balance - $3
		WHERE user_id = $1
	`, userID, delta.Balance, delta.PendingBalance)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("balance for user %s: %w", userID, models.ErrNotFound)
	}
	return nil
}

// RevenueStore is the append-only platform revenue ledger. entry_key is
// deterministic per settlement event, so a replayed append is a no-op.
type RevenueStore struct {
	db *sql.DB
}

func NewRevenueStore(db *sql.DB) *RevenueStore {
	return &RevenueStore{db: db}
}

func (s *RevenueStore) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS platform_revenue (
			id UUID PRIMARY KEY,
			entry_key VARCHAR(255) NOT NULL UNIQUE,
			amount NUMERIC(12,2) NOT NULL,
			source VARCHAR(64) NOT NULL,
			source_id UUID NOT NULL,
			direction VARCHAR(16) NOT NULL,
			description TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_platform_revenue_source_id ON platform_revenue(source_id)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (s *RevenueStore) Append(ctx context.Context, entry *models.RevenueEntry) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO platform_revenue (id, entry_key, amount, source, source_id, direction, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (entry_key) DO NOTHING
	`, entry.ID, entry.EntryKey, entry.Amount, entry.Source, entry.SourceID, entry.Direction, entry.Description, entry.CreatedAt)
	return err
}
