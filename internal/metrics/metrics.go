package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScanResults counts processed scans by outcome (ok, parse_error,
	// scan_error, network_error, rejected).
	ScanResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "scan_results_total",
		Help:      "Scans processed by the scanning session, by outcome.",
	}, []string{"outcome"})

	Retries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "backend_retries_total",
		Help:      "Backend calls that failed with a transport error and were retried.",
	}, []string{"op"})

	ReconcileAdopted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "reconcile_adopted_total",
		Help:      "Server statuses adopted into the ledger during reconciliation.",
	})

	RecordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "records_written_total",
		Help:      "Attendance records upserted by the backend, by status.",
	}, []string{"status"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})

	SummaryRefresh = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "qrattend",
		Name:      "summary_refresh_seconds",
		Help:      "Time spent recomputing a section summary in the worker.",
		Buckets:   prometheus.DefBuckets,
	})
)

// ScanOutcome labels.
const (
	OutcomeOK           = "ok"
	OutcomeParseError   = "parse_error"
	OutcomeScanError    = "scan_error"
	OutcomeNetworkError = "network_error"
	OutcomeRejected     = "rejected"
)
