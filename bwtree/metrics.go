package bwtree

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the optional prometheus instruments a Tree reports
// through. With a nil registerer at construction the counters are still
// kept but never registered, so nothing is exported.
type metrics struct {
	consolidations prometheus.Counter
	splits         prometheus.Counter
	invariantFails prometheus.Counter
	casRetries     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		consolidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bwtree", Name: "consolidations_total",
			Help: "Delta chains consolidated into a fresh Base node.",
		}),
		splits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bwtree", Name: "splits_total",
			Help: "Nodes split into two.",
		}),
		invariantFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bwtree", Name: "invariant_violations_total",
			Help: "Invariant violations observed (release mode only; strict mode panics instead).",
		}),
		casRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bwtree", Name: "cas_retries_total",
			Help: "CAS attempts that lost a race and had to retry.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.consolidations, m.splits, m.invariantFails, m.casRetries)
	}
	return m
}

func (m *metrics) incConsolidations() {
	if m != nil {
		m.consolidations.Inc()
	}
}

func (m *metrics) incSplits() {
	if m != nil {
		m.splits.Inc()
	}
}

func (m *metrics) incInvariantFails() {
	if m != nil {
		m.invariantFails.Inc()
	}
}

func (m *metrics) incCASRetries() {
	if m != nil {
		m.casRetries.Inc()
	}
}
