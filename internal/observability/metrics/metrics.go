// Package metrics registers this service's Prometheus collectors covering
// the settlement pipeline's worker cycles.
package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "settlement_"

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	inboxProcessedTotal  *prometheus.CounterVec
	inboxAttemptsTotal   prometheus.Counter
	inboxDeadLetterTotal prometheus.Counter

	outboxDispatchedTotal *prometheus.CounterVec
	outboxDeadLetterTotal prometheus.Counter
	outboxTransientTotal  prometheus.Counter

	settlementsCalculatedTotal prometheus.Counter
	correctionsEmittedTotal    prometheus.Counter
	settlementIssuesOpenTotal  *prometheus.CounterVec

	settlementWorkerCycleLatency prometheus.Histogram
)

// Init registers every collector. Safe to call multiple times; registration
// happens once.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		inboxProcessedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "inbox_processed_total",
				Help: "Total inbox messages processed by result",
			},
			[]string{"result"},
		)
		inboxAttemptsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "inbox_retry_attempts_total",
				Help: "Total inbox retry attempts recorded",
			},
		)
		inboxDeadLetterTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "inbox_dead_lettered_total",
				Help: "Total inbox messages that exhausted their retry budget",
			},
		)

		outboxDispatchedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatched_total",
				Help: "Total outbox dispatch attempts by outcome",
			},
			[]string{"outcome"},
		)
		outboxDeadLetterTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dead_lettered_total",
				Help: "Total outbox messages rejected by the transport",
			},
		)
		outboxTransientTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_transient_failures_total",
				Help: "Total outbox dispatch attempts that failed transiently",
			},
		)

		settlementsCalculatedTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlements_calculated_total",
				Help: "Total fresh (non-correction) settlements persisted",
			},
		)
		correctionsEmittedTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "corrections_emitted_total",
				Help: "Total correction settlements persisted",
			},
		)
		settlementIssuesOpenTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_issues_total",
				Help: "Total settlement issues raised by kind",
			},
			[]string{"kind"},
		)

		settlementWorkerCycleLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_worker_cycle_seconds",
				Help:    "Settlement worker cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)

		prometheus.MustRegister(
			inboxProcessedTotal,
			inboxAttemptsTotal,
			inboxDeadLetterTotal,
			outboxDispatchedTotal,
			outboxDeadLetterTotal,
			outboxTransientTotal,
			settlementsCalculatedTotal,
			correctionsEmittedTotal,
			settlementIssuesOpenTotal,
			settlementWorkerCycleLatency,
		)

		if logger != nil && db == nil {
			logger.Printf("metrics: initialized without a db handle")
		}
	})
}

// IncInboxProcessed records one inbox cycle outcome.
func IncInboxProcessed(result string) {
	if result == "" {
		result = ResultSuccess
	}
	if inboxProcessedTotal != nil {
		inboxProcessedTotal.WithLabelValues(result).Inc()
	}
}

// IncInboxRetryAttempt records one inbox retry attempt.
func IncInboxRetryAttempt() {
	if inboxAttemptsTotal != nil {
		inboxAttemptsTotal.Inc()
	}
}

// IncInboxDeadLettered records one inbox message exhausting its retries.
func IncInboxDeadLettered() {
	if inboxDeadLetterTotal != nil {
		inboxDeadLetterTotal.Inc()
	}
}

// IncOutboxDispatched records one outbox dispatch attempt outcome.
func IncOutboxDispatched(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if outboxDispatchedTotal != nil {
		outboxDispatchedTotal.WithLabelValues(outcome).Inc()
	}
	switch outcome {
	case "rejected":
		if outboxDeadLetterTotal != nil {
			outboxDeadLetterTotal.Inc()
		}
	case "transient_failure":
		if outboxTransientTotal != nil {
			outboxTransientTotal.Inc()
		}
	}
}

// IncSettlementCalculated records one fresh settlement.
func IncSettlementCalculated() {
	if settlementsCalculatedTotal != nil {
		settlementsCalculatedTotal.Inc()
	}
}

// IncCorrectionEmitted records one correction settlement.
func IncCorrectionEmitted() {
	if correctionsEmittedTotal != nil {
		correctionsEmittedTotal.Inc()
	}
}

// IncSettlementIssue records one settlement issue by kind
// (missing_price_elements / price_coverage_gap).
func IncSettlementIssue(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if settlementIssuesOpenTotal != nil {
		settlementIssuesOpenTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveSettlementWorkerCycle records one settlement worker cycle's
// duration.
func ObserveSettlementWorkerCycle(d time.Duration) {
	if settlementWorkerCycleLatency != nil {
		settlementWorkerCycleLatency.Observe(d.Seconds())
	}
}
