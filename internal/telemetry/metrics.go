package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Settlement metrics, served on /metrics.
var (
	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_payments_total",
		Help: "Payment attempts by terminal outcome (completed, failed, timeout).",
	}, []string{"outcome"})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_refunds_total",
		Help: "Refund attempts by outcome (completed, failed, timeout).",
	}, []string{"outcome"})

	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_gateway_latency_seconds",
		Help:    "Latency of gateway charge and refund calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	ReconciledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_reconciled_payments_total",
		Help: "Stale pending payments resolved by the reconciler, by outcome.",
	}, []string{"outcome"})
)
