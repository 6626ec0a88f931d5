package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taskhive/task-marketplace/settlement-service/internal/interfaces"
	"github.com/taskhive/task-marketplace/settlement-service/internal/models"
	"github.com/taskhive/task-marketplace/settlement-service/internal/telemetry"
)

// Reconciler resolves payments stuck in PENDING after a gateway timeout.
// It re-drives the charge with the original idempotency token (the payment
// id): the processor deduplicates on it and returns the outcome of the first
// attempt, so this never double-charges. The blind alternative, retrying as
// a new charge, is exactly what this worker exists to avoid.
type Reconciler struct {
	payments  interfaces.PaymentRepository
	tasks     interfaces.TaskStore
	processor *PaymentProcessor

	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
}

func NewReconciler(
	payments interfaces.PaymentRepository,
	tasks interfaces.TaskStore,
	processor *PaymentProcessor,
	interval, staleAfter time.Duration,
) *Reconciler {
	return &Reconciler{
		payments:   payments,
		tasks:      tasks,
		processor:  processor,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  50,
	}
}

// Run polls until the context is cancelled. Blocking; start in a goroutine.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	telemetry.Logger.Info("Reconciler started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			telemetry.Logger.Info("Reconciler stopping")
			return
		case <-ticker.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// ReconcileOnce processes one batch of stale PENDING payments.
func (r *Reconciler) ReconcileOnce(ctx context.Context) {
	cutoff := time.Now().Add(-r.staleAfter)
	stale, err := r.payments.ListStalePending(ctx, cutoff, r.batchSize)
	if err != nil {
		telemetry.Logger.Error("Failed to list stale pending payments", zap.Error(err))
		return
	}

	for i := range stale {
		if err := r.reconcile(ctx, &stale[i]); err != nil {
			telemetry.Logger.Error("Failed to reconcile payment",
				zap.String("payment_id", stale[i].ID.String()),
				zap.Error(err),
			)
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context, payment *models.Payment) error {
	result, err := r.processor.charge(ctx, payment)
	if err != nil {
		// Still unreachable; leave PENDING for the next cycle.
		telemetry.ReconciledTotal.WithLabelValues("deferred").Inc()
		return err
	}

	if !result.Approved {
		ok, err := r.payments.MarkFailed(ctx, payment.ID, result.Details)
		if err != nil {
			return err
		}
		if ok {
			r.processor.events.StateChanged(ctx, payment.ID, models.StatusPending, models.StatusFailed)
		}
		telemetry.ReconciledTotal.WithLabelValues("failed").Inc()
		telemetry.Logger.Info("Reconciled stale payment as failed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("details", result.Details),
		)
		return nil
	}

	task, err := r.tasks.FindByID(ctx, payment.TaskID)
	if err != nil {
		return err
	}
	if _, err := r.processor.Settle(ctx, payment, task, result.TransactionID); err != nil {
		return err
	}
	telemetry.ReconciledTotal.WithLabelValues("completed").Inc()
	telemetry.Logger.Info("Reconciled stale payment as completed",
		zap.String("payment_id", payment.ID.String()),
		zap.String("gateway_transaction_id", result.TransactionID),
	)
	return nil
}
