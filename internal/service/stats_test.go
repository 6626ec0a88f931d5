package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/task-marketplace/settlement-service/internal/gateway"
	"github.com/taskhive/task-marketplace/settlement-service/internal/models"
)

func TestGetStatistics_PerStatusSumsToTotal(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	agg := NewStatsAggregator(e.payments)

	// One completed payment, then one declined payment on a second task.
	e.pay(t, "100.00")

	failedTask := &models.Task{
		ID: uuid.New(), OwnerID: e.owner, AssigneeID: &e.assignee, PaymentStatus: models.TaskUnpaid,
	}
	e.tasks.items[failedTask.ID] = failedTask
	e.gw.chargeRes = &gateway.ChargeResult{Approved: false, Details: "declined"}
	_, err := e.processor.CreatePayment(ctx, CreatePaymentRequest{
		PayerID: e.owner, TaskID: failedTask.ID, Amount: dec("50.00"), Method: "card",
	})
	require.ErrorIs(t, err, models.ErrPaymentFailed)

	stats, err := agg.GetStatistics(ctx, nil, nil)
	require.NoError(t, err)

	// Every status present, absent ones zeroed.
	require.Len(t, stats.ByStatus, len(models.AllPaymentStatuses))
	assert.True(t, stats.ByStatus[models.StatusPending].Volume.IsZero())
	assert.EqualValues(t, 1, stats.ByStatus[models.StatusCompleted].Count)
	assert.EqualValues(t, 1, stats.ByStatus[models.StatusFailed].Count)

	// Per-status volumes sum to the overall total.
	sum := decimal.Zero
	for _, b := range stats.ByStatus {
		sum = sum.Add(b.Volume)
	}
	assert.True(t, sum.Equal(stats.TotalVolume), "sum %s, total %s", sum, stats.TotalVolume)
	assert.True(t, stats.TotalVolume.Equal(dec("150.00")))
}
