package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeOK labels cycles that returned hop data.
	OutcomeOK = "ok"
	// OutcomeNoData labels cycles where the probe failed or timed out.
	OutcomeNoData = "no_data"
)

var (
	probeCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mtrwatch",
			Name:      "probe_cycles_total",
			Help:      "Probe cycles executed, partitioned by target and outcome.",
		},
		[]string{"target", "outcome"},
	)

	changesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mtrwatch",
			Name:      "changes_total",
			Help:      "Detected route changes, partitioned by target and kind (path or loss).",
		},
		[]string{"target", "kind"},
	)

	storeWriteFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mtrwatch",
			Name:      "store_write_failures_total",
			Help:      "Time-series store writes that failed.",
		},
		[]string{"target"},
	)

	workersRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mtrwatch",
			Name:      "workers_running",
			Help:      "Monitor workers currently running.",
		},
	)

	reconcileActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mtrwatch",
			Name:      "reconcile_actions_total",
			Help:      "Supervisor reconciliation actions, partitioned by action.",
		},
		[]string{"action"},
	)
)

// Register attaches mtrwatch collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		probeCyclesTotal,
		changesTotal,
		storeWriteFailuresTotal,
		workersRunning,
		reconcileActionsTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCycle records one probe cycle outcome.
func ObserveCycle(target, outcome string) {
	probeCyclesTotal.WithLabelValues(target, outcome).Inc()
}

// ObserveChange records a detected path or loss change.
func ObserveChange(target, kind string) {
	changesTotal.WithLabelValues(target, kind).Inc()
}

// ObserveStoreFailure records a failed series write.
func ObserveStoreFailure(target string) {
	storeWriteFailuresTotal.WithLabelValues(target).Inc()
}

// SetWorkersRunning updates the running worker gauge.
func SetWorkersRunning(n int) {
	workersRunning.Set(float64(n))
}

// ObserveReconcileAction records a supervisor start/stop/restart action.
func ObserveReconcileAction(action string) {
	reconcileActionsTotal.WithLabelValues(action).Inc()
}
