package store

import "github.com/prometheus/client_golang/prometheus"

// Reason records why an artifact was deleted.
type Reason string

const (
	ReasonTimer    Reason = "timer"
	ReasonSweep    Reason = "sweep"
	ReasonPackaged Reason = "packaged"
	ReasonFailure  Reason = "failure"
)

// Outcome is what a deletion attempt found.
type Outcome string

const (
	OutcomeRemoved     Outcome = "removed"
	OutcomeAlreadyGone Outcome = "already_gone"
	OutcomeFailed      Outcome = "failed"
)

// CleanupResult describes one deletion. It is logged and counted, never
// returned to a client.
type CleanupResult struct {
	Path    string
	Reason  Reason
	Outcome Outcome
	Err     error
}

// OK reports whether the path is gone.
func (r CleanupResult) OK() bool { return r.Outcome != OutcomeFailed }

type metrics struct {
	cleanups *prometheus.CounterVec
	swept    prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		cleanups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdftools_cleanup_total",
				Help: "Artifact deletions by reason and outcome",
			},
			[]string{"reason", "outcome"},
		),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdftools_sweeps_total",
			Help: "Completed sweeps of the managed directories",
		}),
	}
}

func (m *metrics) register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	reg.MustRegister(m.cleanups, m.swept)
}
