// Package metrics exposes store operation counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/kongstore/internal/purchasing"
	"github.com/roach88/kongstore/internal/webapi"
)

const namespace = "kongstore"

// Collector implements purchasing.Observer with Prometheus metrics.
type Collector struct {
	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	ignored   *prometheus.CounterVec
	pending   prometheus.Gauge
}

// NewCollector creates a collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_started_total",
			Help:      "Operations started, by kind.",
		}, []string{"kind"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_completed_total",
			Help:      "Operations completed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_ignored_total",
			Help:      "Notifications that matched no pending operation, by kind.",
		}, []string{"kind"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operation_pending",
			Help:      "1 while an operation is pending, 0 otherwise.",
		}),
	}

	for _, col := range []prometheus.Collector{c.started, c.completed, c.ignored, c.pending} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) OperationStarted(op purchasing.Operation) {
	c.started.WithLabelValues(op.Kind.String()).Inc()
	c.pending.Set(1)
}

func (c *Collector) OperationCompleted(op purchasing.Operation, outcome purchasing.Outcome) {
	c.completed.WithLabelValues(op.Kind.String(), string(outcome.Status)).Inc()
	c.pending.Set(0)
}

func (c *Collector) NotificationIgnored(kind webapi.Kind, reason string) {
	c.ignored.WithLabelValues(kind.String()).Inc()
}
