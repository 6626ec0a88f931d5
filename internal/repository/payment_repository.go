package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/taskhive/task-marketplace/settlement-service/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const uniqueViolation = "23505"

func (r *PaymentRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			id UUID PRIMARY KEY,
			task_id UUID NOT NULL,
			payer_id UUID NOT NULL,
			amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
			platform_fee NUMERIC(12,2) NOT NULL,
			processing_fee NUMERIC(12,2) NOT NULL,
			status VARCHAR(32) NOT NULL,
			payment_method VARCHAR(64) NOT NULL,
			gateway_transaction_id VARCHAR(255),
			failure_reason TEXT,
			refunded_amount NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (refunded_amount <= amount),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)`,
		// One active payment per task, enforced by storage rather than a
		// check-then-insert, which races under concurrent requests.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_one_active_per_task
			ON payments(task_id)
			WHERE status IN ('PENDING', 'COMPLETED', 'PARTIALLY_REFUNDED')`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_created_at ON payments(created_at)`,
		`CREATE TABLE IF NOT EXISTS refunds (
			id UUID PRIMARY KEY,
			payment_id UUID NOT NULL REFERENCES payments(id),
			amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
			reason TEXT NOT NULL,
			requested_by UUID NOT NULL,
			status VARCHAR(32) NOT NULL,
			gateway_refund_id VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_refunds_payment_id ON refunds(payment_id)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	_, err := exec(ctx, r.db).ExecContext(ctx, `
		INSERT INTO payments (id, task_id, payer_id, amount, platform_fee, processing_fee, status, payment_method, refunded_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9)
	`, p.ID, p.TaskID, p.PayerID, p.Amount, p.PlatformFee, p.ProcessingFee, p.Status, p.PaymentMethod, p.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return models.ErrConflict
	}
	return err
}

const paymentColumns = `id, task_id, payer_id, amount, platform_fee, processing_fee, status, payment_method,
	COALESCE(gateway_transaction_id, ''), COALESCE(failure_reason, ''), refunded_amount, created_at, completed_at`

func scanPayment(row interface{ Scan(...interface{}) error }) (*models.Payment, error) {
	var p models.Payment
	var completedAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.TaskID, &p.PayerID, &p.Amount, &p.PlatformFee, &p.ProcessingFee,
		&p.Status, &p.PaymentMethod, &p.GatewayTransactionID, &p.FailureReason,
		&p.RefundedAmount, &p.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	return &p, nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	row := exec(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment %s: %w", id, models.ErrNotFound)
	}
	return p, err
}

func (r *PaymentRepository) Settle(ctx context.Context, id uuid.UUID, gatewayTxID string, completedAt time.Time) (bool, error) {
	result, err := exec(ctx, r.db).ExecContext(ctx, `
		UPDATE payments
		SET status = $1, gateway_transaction_id = $2, completed_at = $3
		WHERE id = $4 AND status = $5
	`, models.StatusCompleted, gatewayTxID, completedAt, id, models.StatusPending)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows == 1, err
}

func (r *PaymentRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	result, err := exec(ctx, r.db).ExecContext(ctx, `
		UPDATE payments
		SET status = $1, failure_reason = $2
		WHERE id = $3 AND status = $4
	`, models.StatusFailed, reason, id, models.StatusPending)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows == 1, err
}

// ApplyRefund consumes refundable balance under a guard: the update matches
// only while the payment is refundable and amount fits in what remains, so
// two concurrent refunds serialize on the row and the loser sees no match.
func (r *PaymentRepository) ApplyRefund(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*models.Payment, bool, error) {
	row := exec(ctx, r.db).QueryRowContext(ctx, `
		UPDATE payments
		SET refunded_amount = refunded_amount + $2,
		    status = CASE WHEN refunded_amount + $2 >= amount THEN 'REFUNDED' ELSE 'PARTIALLY_REFUNDED' END
		WHERE id = $1
		  AND status IN ('COMPLETED', 'PARTIALLY_REFUNDED')
		  AND amount - refunded_amount >= $2
		RETURNING `+paymentColumns,
		id, amount)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (r *PaymentRepository) CreateRefund(ctx context.Context, ref *models.Refund) error {
	_, err := exec(ctx, r.db).ExecContext(ctx, `
		INSERT INTO refunds (id, payment_id, amount, reason, requested_by, status, gateway_refund_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ref.ID, ref.PaymentID, ref.Amount, ref.Reason, ref.RequestedBy, ref.Status, ref.GatewayRefundID, ref.CreatedAt)
	return err
}

func (r *PaymentRepository) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]models.Refund, error) {
	rows, err := exec(ctx, r.db).QueryContext(ctx, `
		SELECT id, payment_id, amount, reason, requested_by, status, COALESCE(gateway_refund_id, ''), created_at
		FROM refunds WHERE payment_id = $1 ORDER BY created_at
	`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refunds []models.Refund
	for rows.Next() {
		var ref models.Refund
		if err := rows.Scan(&ref.ID, &ref.PaymentID, &ref.Amount, &ref.Reason, &ref.RequestedBy, &ref.Status, &ref.GatewayRefundID, &ref.CreatedAt); err != nil {
			return nil, err
		}
		refunds = append(refunds, ref)
	}
	return refunds, rows.Err()
}

func (r *PaymentRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	rows, err := exec(ctx, r.db).QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status = $1 AND created_at < $2
		 ORDER BY created_at LIMIT $3`,
		models.StatusPending, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) Aggregate(ctx context.Context, from, to *time.Time) (*models.Statistics, error) {
	stats := &models.Statistics{
		TotalVolume: decimal.Zero,
		TotalFees:   decimal.Zero,
		ByStatus:    make(map[models.PaymentStatus]models.StatusBreakdown, len(models.AllPaymentStatuses)),
	}
	for _, status := range models.AllPaymentStatuses {
		stats.ByStatus[status] = models.StatusBreakdown{Volume: decimal.Zero, Fees: decimal.Zero}
	}

	rows, err := exec(ctx, r.db).QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(amount), 0), COALESCE(SUM(platform_fee + processing_fee), 0)
		FROM payments
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		GROUP BY status
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status models.PaymentStatus
		var b models.StatusBreakdown
		if err := rows.Scan(&status, &b.Count, &b.Volume, &b.Fees); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = b
		stats.TotalVolume = stats.TotalVolume.Add(b.Volume)
		stats.TotalFees = stats.TotalFees.Add(b.Fees)
	}
	return stats, rows.Err()
}
