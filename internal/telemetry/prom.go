// Package telemetry exposes controller metrics via Prometheus and wires the
// optional OTLP exporters.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors for the controller.
type Metrics struct {
	Registry *prometheus.Registry

	CyclesTotal     *prometheus.CounterVec
	CycleDuration   *prometheus.HistogramVec
	DecisionsTotal  *prometheus.CounterVec
	ApplyFailures   *prometheus.CounterVec
	RollbacksTotal  *prometheus.CounterVec
	PromotionsTotal *prometheus.CounterVec
	CurrentWeight   *prometheus.GaugeVec
}

// NewMetrics creates and registers the controller's collectors on a fresh
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shiftwise",
			Name:      "cycles_total",
			Help:      "Evaluation cycles run, by deployment and outcome.",
		}, []string{"deployment", "outcome"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shiftwise",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a single evaluation cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"deployment"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shiftwise",
			Name:      "decisions_total",
			Help:      "Policy decisions made, by deployment and kind.",
		}, []string{"deployment", "kind"}),
		ApplyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shiftwise",
			Name:      "apply_failures_total",
			Help:      "Weight applications that failed.",
		}, []string{"deployment"}),
		RollbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shiftwise",
			Name:      "rollbacks_total",
			Help:      "Rollbacks started.",
		}, []string{"deployment"}),
		PromotionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shiftwise",
			Name:      "promotions_total",
			Help:      "Shifts promoted to 100 percent green.",
		}, []string{"deployment"}),
		CurrentWeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shiftwise",
			Name:      "current_weight_percent",
			Help:      "Percent of traffic currently routed to the green target group.",
		}, []string{"deployment"}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.DecisionsTotal,
		m.ApplyFailures,
		m.RollbacksTotal,
		m.PromotionsTotal,
		m.CurrentWeight,
	)
	return m
}

// RecordDecision bumps the decision counter and the derived rollback and
// promotion counters.
func (m *Metrics) RecordDecision(deployment, kind string) {
	m.DecisionsTotal.WithLabelValues(deployment, kind).Inc()
	switch kind {
	case "ROLLBACK":
		m.RollbacksTotal.WithLabelValues(deployment).Inc()
	case "PROMOTE":
		m.PromotionsTotal.WithLabelValues(deployment).Inc()
	}
}
