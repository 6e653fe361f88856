package gc

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the optional prometheus instruments a Collector reports
// through. A nil *Metrics (the default) disables instrumentation entirely;
// nothing in this package requires a registry to function.
type Metrics struct {
	epoch            prometheus.Gauge
	pendingGarbage   prometheus.Gauge
	pendingPIDs      prometheus.Gauge
	reclaimedGarbage prometheus.Counter
	reclaimedPIDs    prometheus.Counter
}

// NewMetrics builds and registers a Metrics against reg. If reg is nil the
// returned Metrics still works but nothing is registered anywhere, which is
// useful for tests that want the counters without a live registry.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "gc", Name: "epoch",
			Help: "Current epoch time.",
		}),
		pendingGarbage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "gc", Name: "pending_garbage",
			Help: "Node chains submitted but not yet reclaimed.",
		}),
		pendingPIDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "gc", Name: "pending_pids",
			Help: "PIDs submitted but not yet returned to the free stack.",
		}),
		reclaimedGarbage: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gc", Name: "reclaimed_garbage_total",
			Help: "Node chains freed over the life of the collector.",
		}),
		reclaimedPIDs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gc", Name: "reclaimed_pids_total",
			Help: "PIDs returned to the free stack over the life of the collector.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.epoch, m.pendingGarbage, m.pendingPIDs, m.reclaimedGarbage, m.reclaimedPIDs)
	}
	return m
}
