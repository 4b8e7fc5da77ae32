// Package metrics holds the prometheus collectors of the authorization engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "accessgate"

// Metrics groups every collector. Build one per registry with New.
type Metrics struct {
	Decisions        *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec

	CacheRequests      *prometheus.CounterVec
	CacheEvictions     *prometheus.CounterVec
	CachePromotions    prometheus.Counter
	CacheInvalidations *prometheus.CounterVec
	CacheEntries       *prometheus.GaugeVec

	GrantOperations *prometheus.CounterVec
	GrantsInForce   prometheus.Gauge

	AuditEvents   *prometheus.CounterVec
	AuditAlerts   *prometheus.CounterVec
	AlertsDropped prometheus.Counter

	SweepRuns    *prometheus.CounterVec
	SweepRemoved *prometheus.CounterVec
}

// New registers all collectors on reg. A nil reg gets a private registry,
// which keeps tests and one-shot commands free of global state.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)

	return &Metrics{
		Decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Authorization decisions, by deciding source and outcome.",
			},
			[]string{"source", "granted"},
		),
		DecisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decision_duration_seconds",
				Help:      "Time spent evaluating a decision.",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"cached"},
		),
		CacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "requests_total",
				Help:      "Cache lookups, by tier that answered (primary, secondary) or miss.",
			},
			[]string{"result"},
		),
		CacheEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "evictions_total",
				Help:      "Entries evicted for capacity, by tier and priority.",
			},
			[]string{"tier", "priority"},
		),
		CachePromotions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "promotions_total",
				Help:      "Entries promoted from the secondary to the primary tier.",
			},
		),
		CacheInvalidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "invalidations_total",
				Help:      "Entries removed by tag invalidation, by tag kind.",
			},
			[]string{"kind"},
		),
		CacheEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Entries currently held, by tier.",
			},
			[]string{"tier"},
		),
		GrantOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "grants",
				Name:      "operations_total",
				Help:      "Dynamic grant lifecycle transitions.",
			},
			[]string{"operation"},
		),
		GrantsInForce: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "grants",
				Name:      "in_force",
				Help:      "Dynamic grants currently in force.",
			},
		),
		AuditEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "events_total",
				Help:      "Audit events recorded, by type and risk level.",
			},
			[]string{"type", "risk"},
		),
		AuditAlerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "alerts_total",
				Help:      "Threshold alerts raised, by risk level.",
			},
			[]string{"level"},
		),
		AlertsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "alerts_dropped_total",
				Help:      "Alerts dropped because the dispatch queue was full.",
			},
		),
		SweepRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sweep",
				Name:      "runs_total",
				Help:      "Background sweep executions, by job.",
			},
			[]string{"job"},
		),
		SweepRemoved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sweep",
				Name:      "removed_total",
				Help:      "Items removed or deactivated by background sweeps, by job.",
			},
			[]string{"job"},
		),
	}
}
