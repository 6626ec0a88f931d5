package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/taskhive/task-marketplace/settlement-service/internal/fees"
	"github.com/taskhive/task-marketplace/settlement-service/internal/gateway"
	"github.com/taskhive/task-marketplace/settlement-service/internal/interfaces"
	"github.com/taskhive/task-marketplace/settlement-service/internal/models"
	"github.com/taskhive/task-marketplace/settlement-service/internal/telemetry"
)

// RefundProcessor drives COMPLETED -> {PARTIALLY_REFUNDED, REFUNDED}.
// Partial refunds repeat until refunded_amount reaches the gross amount.
type RefundProcessor struct {
	payments interfaces.PaymentRepository
	tasks    interfaces.TaskStore
	ledger   *Ledger
	gw       gateway.Gateway
	tx       interfaces.TxManager
	locker   interfaces.Locker
	calc     *fees.Calculator
	events   Publisher

	gatewayTimeout time.Duration
	clock          func() time.Time
}

func NewRefundProcessor(
	payments interfaces.PaymentRepository,
	tasks interfaces.TaskStore,
	ledger *Ledger,
	gw gateway.Gateway,
	tx interfaces.TxManager,
	locker interfaces.Locker,
	calc *fees.Calculator,
	events Publisher,
	gatewayTimeout time.Duration,
) *RefundProcessor {
	return &RefundProcessor{
		payments:       payments,
		tasks:          tasks,
		ledger:         ledger,
		gw:             gw,
		tx:             tx,
		locker:         locker,
		calc:           calc,
		events:         events,
		gatewayTimeout: gatewayTimeout,
		clock:          time.Now,
	}
}

type RefundRequest struct {
	PaymentID uuid.UUID
	Amount    decimal.Decimal
	Reason    string
	Caller    models.Caller
}

// ProcessRefund reverses up to the remaining refundable balance of a
// completed payment. The write phase (refunded_amount, payment and task
// status, refund record, ledger debit) commits as one transaction, with the
// remaining-balance check enforced as a guard on the update itself so
// concurrent refunds cannot over-refund.
func (r *RefundProcessor) ProcessRefund(ctx context.Context, req RefundRequest) (*models.Refund, error) {
	payment, err := r.payments.FindByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}

	task, err := r.tasks.FindByID(ctx, payment.TaskID)
	if err != nil {
		return nil, err
	}
	if !r.authorized(req.Caller, payment, task) {
		return nil, fmt.Errorf("%w: only the payer, the assignee or an admin may request a refund", models.ErrValidation)
	}
	if task.AssigneeID == nil {
		return nil, fmt.Errorf("%w: task no longer has an assignee to debit", models.ErrValidation)
	}
	if err := validateRefundable(payment, req.Amount); err != nil {
		return nil, err
	}

	release, err := r.locker.Acquire(ctx, "refund_lock:"+payment.ID.String(), 30*time.Second)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			return nil, fmt.Errorf("%w: refund for payment %s in progress", models.ErrConflict, payment.ID)
		}
		return nil, err
	}
	defer release()

	// Re-load and re-check under the lock. A competing refund may have
	// committed between the first validation and acquisition, and the
	// gateway must never be asked for an amount the balance guard would
	// reject afterwards.
	payment, err = r.payments.FindByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if err := validateRefundable(payment, req.Amount); err != nil {
		return nil, err
	}

	refund := &models.Refund{
		ID:          uuid.New(),
		PaymentID:   payment.ID,
		Amount:      req.Amount,
		Reason:      req.Reason,
		RequestedBy: req.Caller.UserID,
		Status:      models.RefundCompleted,
		CreatedAt:   r.clock(),
	}

	result, err := r.refundViaGateway(ctx, refund, payment)
	if err != nil {
		telemetry.RefundsTotal.WithLabelValues("timeout").Inc()
		telemetry.Logger.Warn("Gateway refund outcome unknown",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	if !result.Approved {
		telemetry.RefundsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %s", models.ErrRefundFailed, result.Details)
	}
	refund.GatewayRefundID = result.RefundID

	reversal := r.calc.Reversal(req.Amount)
	var updated *models.Payment
	err = r.tx.RunInTx(ctx, func(ctx context.Context) error {
		var matched bool
		updated, matched, err = r.payments.ApplyRefund(ctx, payment.ID, req.Amount)
		if err != nil {
			return err
		}
		if !matched {
			return fmt.Errorf("%w: refundable balance changed, retry", models.ErrConflict)
		}
		if err := r.payments.CreateRefund(ctx, refund); err != nil {
			return err
		}
		if updated.Status == models.StatusRefunded {
			if err := r.tasks.SetPaymentStatus(ctx, task.ID, models.TaskRefunded); err != nil {
				return err
			}
		}
		return r.ledger.Debit(ctx,
			*task.AssigneeID,
			req.Amount.Sub(reversal.Total()),
			reversal.Total(),
			task.ID,
			refund.ID,
		)
	})
	if err != nil {
		return nil, err
	}

	r.events.StateChanged(ctx, payment.ID, payment.Status, updated.Status)
	r.events.Notify(ctx, "payment.refunded", refund)
	telemetry.RefundsTotal.WithLabelValues("completed").Inc()
	return refund, nil
}

func (r *RefundProcessor) refundViaGateway(ctx context.Context, refund *models.Refund, payment *models.Payment) (*gateway.RefundResult, error) {
	refundCtx, cancel := context.WithTimeout(ctx, r.gatewayTimeout)
	defer cancel()

	start := time.Now()
	result, err := r.gw.Refund(refundCtx, gateway.RefundRequest{
		IdempotencyKey: refund.ID.String(),
		TransactionID:  payment.GatewayTransactionID,
		Amount:         refund.Amount,
	})
	telemetry.GatewayLatency.WithLabelValues("refund").Observe(time.Since(start).Seconds())
	return result, err
}

func (r *RefundProcessor) authorized(caller models.Caller, payment *models.Payment, task *models.Task) bool {
	if caller.IsAdmin() || caller.UserID == payment.PayerID {
		return true
	}
	return task.AssigneeID != nil && caller.UserID == *task.AssigneeID
}

func validateRefundable(payment *models.Payment, amount decimal.Decimal) error {
	if !payment.Status.Refundable() {
		return fmt.Errorf("%w: payment is %s, only completed payments can be refunded", models.ErrValidation, payment.Status)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: refund amount must be positive", models.ErrValidation)
	}
	if amount.GreaterThan(payment.RemainingRefundable()) {
		return fmt.Errorf("%w: refund amount %s exceeds remaining refundable balance %s",
			models.ErrValidation, amount, payment.RemainingRefundable())
	}
	return nil
}
