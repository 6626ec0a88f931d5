package service

import (
	"context"
	"time"

	"github.com/taskhive/task-marketplace/settlement-service/internal/interfaces"
	"github.com/taskhive/task-marketplace/settlement-service/internal/models"
)

// StatsAggregator serves read-only volume and fee rollups. No locking: a
// read-committed snapshot is good enough for dashboards.
type StatsAggregator struct {
	payments interfaces.PaymentRepository
}

func NewStatsAggregator(payments interfaces.PaymentRepository) *StatsAggregator {
	return &StatsAggregator{payments: payments}
}

// GetStatistics returns totals and a per-status breakdown over [from, to].
// Every status appears in the breakdown, zeroed when absent.
func (s *StatsAggregator) GetStatistics(ctx context.Context, from, to *time.Time) (*models.Statistics, error) {
	return s.payments.Aggregate(ctx, from, to)
}
