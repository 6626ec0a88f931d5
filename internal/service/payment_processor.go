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

// errSettleRaced aborts the settle transaction when another writer already
// moved the payment out of PENDING; the work is done, just not by us.
var errSettleRaced = errors.New("payment already settled")

// PaymentProcessor drives the PENDING -> {COMPLETED, FAILED} half of the
// payment lifecycle.
type PaymentProcessor struct {
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

func NewPaymentProcessor(
	payments interfaces.PaymentRepository,
	tasks interfaces.TaskStore,
	ledger *Ledger,
	gw gateway.Gateway,
	tx interfaces.TxManager,
	locker interfaces.Locker,
	calc *fees.Calculator,
	events Publisher,
	gatewayTimeout time.Duration,
) *PaymentProcessor {
	return &PaymentProcessor{
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

type CreatePaymentRequest struct {
	PayerID uuid.UUID
	TaskID  uuid.UUID
	Amount  decimal.Decimal
	Method  string
}

// CreatePayment charges the payer for a task and settles the proceeds to the
// assignee. The write phase after a successful charge (payment status, task
// status, ledger credit) commits as one transaction. A gateway timeout
// leaves the payment PENDING for the reconciler to resolve via the
// idempotency token; it is never blindly retried here.
func (p *PaymentProcessor) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*models.Payment, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}

	task, err := p.tasks.FindByID(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	if task.OwnerID != req.PayerID {
		return nil, fmt.Errorf("%w: Only the task owner can make payments", models.ErrValidation)
	}
	if task.AssigneeID == nil {
		return nil, fmt.Errorf("%w: Task does not have an assigned tasker", models.ErrValidation)
	}

	// Serialize payment creation per task ahead of the unique index, so a
	// concurrent attempt gets a conflict instead of a constraint error.
	release, err := p.locker.Acquire(ctx, "task_payment_lock:"+req.TaskID.String(), 30*time.Second)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			return nil, fmt.Errorf("%w: payment for task %s in progress", models.ErrConflict, req.TaskID)
		}
		return nil, err
	}
	defer release()

	breakdown := p.calc.Calculate(req.Amount)
	payment := &models.Payment{
		ID:             uuid.New(),
		TaskID:         req.TaskID,
		PayerID:        req.PayerID,
		Amount:         req.Amount,
		PlatformFee:    breakdown.PlatformFee,
		ProcessingFee:  breakdown.ProcessingFee,
		Status:         models.StatusPending,
		PaymentMethod:  req.Method,
		RefundedAmount: decimal.Zero,
		CreatedAt:      p.clock(),
	}
	if err := p.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	result, err := p.charge(ctx, payment)
	if err != nil {
		// Unknown outcome: stay PENDING, hand off to the reconciler.
		telemetry.PaymentsTotal.WithLabelValues("timeout").Inc()
		telemetry.Logger.Warn("Gateway charge outcome unknown",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	if !result.Approved {
		matched, err := p.payments.MarkFailed(ctx, payment.ID, result.Details)
		if err != nil {
			return nil, err
		}
		if matched {
			p.events.StateChanged(ctx, payment.ID, models.StatusPending, models.StatusFailed)
			telemetry.PaymentsTotal.WithLabelValues("failed").Inc()
		}
		return nil, fmt.Errorf("%w: %s", models.ErrPaymentFailed, result.Details)
	}

	settled, err := p.Settle(ctx, payment, task, result.TransactionID)
	if err != nil {
		return nil, err
	}
	telemetry.PaymentsTotal.WithLabelValues("completed").Inc()
	p.events.Notify(ctx, "payment.completed", settled)
	return settled, nil
}

func (p *PaymentProcessor) charge(ctx context.Context, payment *models.Payment) (*gateway.ChargeResult, error) {
	chargeCtx, cancel := context.WithTimeout(ctx, p.gatewayTimeout)
	defer cancel()

	start := time.Now()
	result, err := p.gw.Charge(chargeCtx, gateway.ChargeRequest{
		IdempotencyKey: payment.ID.String(),
		Amount:         payment.Amount,
		Method:         payment.PaymentMethod,
		Metadata: map[string]string{
			"task_id":  payment.TaskID.String(),
			"payer_id": payment.PayerID.String(),
		},
	})
	telemetry.GatewayLatency.WithLabelValues("charge").Observe(time.Since(start).Seconds())
	return result, err
}

// Settle commits the post-charge write phase atomically: payment
// PENDING -> COMPLETED, task marked PAID, assignee credited. Idempotent: if
// the payment already left PENDING the transaction aborts without touching
// the ledger and the stored payment is returned as-is.
func (p *PaymentProcessor) Settle(ctx context.Context, payment *models.Payment, task *models.Task, gatewayTxID string) (*models.Payment, error) {
	completedAt := p.clock()
	err := p.tx.RunInTx(ctx, func(ctx context.Context) error {
		ok, err := p.payments.Settle(ctx, payment.ID, gatewayTxID, completedAt)
		if err != nil {
			return err
		}
		if !ok {
			return errSettleRaced
		}
		if err := p.tasks.SetPaymentStatus(ctx, task.ID, models.TaskPaid); err != nil {
			return err
		}
		// Credit from the fees stored on the payment, not the current
		// schedule: a schedule change between charge and settlement must
		// not break credit + fees == amount.
		return p.ledger.Credit(ctx,
			*task.AssigneeID,
			payment.NetPayout(),
			payment.PlatformFee.Add(payment.ProcessingFee),
			task.ID,
			payment.ID,
		)
	})
	if err != nil && !errors.Is(err, errSettleRaced) {
		return nil, err
	}
	if err == nil {
		p.events.StateChanged(ctx, payment.ID, models.StatusPending, models.StatusCompleted)
	}
	return p.payments.FindByID(ctx, payment.ID)
}
