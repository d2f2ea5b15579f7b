// Package metrics holds the Prometheus collectors of the points ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger ─────────────────────────────────────────────────────────────────

// TransactionsRecorded counts committed awards and deductions.
var TransactionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "points",
	Subsystem: "ledger",
	Name:      "transactions_total",
	Help:      "Committed ledger transactions by reason and direction (credit, debit).",
}, []string{"reason", "direction"})

// Rejections counts mutations refused before any write, by error kind.
var Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "points",
	Subsystem: "ledger",
	Name:      "rejections_total",
	Help:      "Ledger mutations rejected by validation or balance policy.",
}, []string{"operation", "kind"})

// Reversals counts reversal attempts by outcome.
var Reversals = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "points",
	Subsystem: "ledger",
	Name:      "reversals_total",
	Help:      "Reversal attempts by outcome.",
}, []string{"outcome"})

// ─── Expiration sweep ───────────────────────────────────────────────────────

// SweepRuns counts expiration sweeps by outcome (completed, aborted).
var SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "points",
	Subsystem: "sweep",
	Name:      "runs_total",
	Help:      "Expiration sweeps by outcome.",
}, []string{"outcome"})

// SweepReversed counts transactions reversed by the sweep.
var SweepReversed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "points",
	Subsystem: "sweep",
	Name:      "reversed_total",
	Help:      "Expired transactions reversed by the sweep.",
})

// SweepFailed counts candidates the sweep skipped after an error.
var SweepFailed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "points",
	Subsystem: "sweep",
	Name:      "failed_total",
	Help:      "Expired transactions the sweep could not reverse.",
})

// ─── Locks ──────────────────────────────────────────────────────────────────

// LockWait observes how long mutations waited for an owner's lock.
var LockWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "points",
	Subsystem: "lock",
	Name:      "wait_seconds",
	Help:      "Time spent acquiring the per-owner lock.",
	Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
}, []string{"backend"})

// LockTimeouts counts lock acquisitions that gave up.
var LockTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "points",
	Subsystem: "lock",
	Name:      "timeouts_total",
	Help:      "Per-owner lock acquisitions that timed out.",
}, []string{"backend"})

// ─── Events ─────────────────────────────────────────────────────────────────

// EventsPublished counts ledger events handed to the broker, by result.
var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "points",
	Subsystem: "events",
	Name:      "published_total",
	Help:      "Ledger events published, by type and result (ok, error).",
}, []string{"type", "result"})

// Direction labels a delta for TransactionsRecorded.
func Direction(positive bool) string {
	if positive {
		return "credit"
	}
	return "debit"
}
