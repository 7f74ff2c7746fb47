// Package metrics exposes Prometheus metrics for bosun.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set holds the operation metrics registered against one registry.
type Set struct {
	OperationsStarted  *prometheus.CounterVec
	OperationConflicts *prometheus.CounterVec
	OperationFailures  *prometheus.CounterVec
	StatusPolls        *prometheus.CounterVec
}

// New registers and returns the bosun metric set.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		OperationsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bosun",
			Name:      "operations_started_total",
			Help:      "Operations accepted and dispatched to an agent.",
		}, []string{"operation", "trigger"}),
		OperationConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bosun",
			Name:      "operation_conflicts_total",
			Help:      "Operations refused because one was already processing.",
		}, []string{"operation"}),
		OperationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bosun",
			Name:      "operation_failures_total",
			Help:      "Operations that failed before or during dispatch.",
		}, []string{"operation", "collaborator"}),
		StatusPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bosun",
			Name:      "status_polls_total",
			Help:      "Status polls served, by token operation kind.",
		}, []string{"operation"}),
	}
	reg.MustRegister(s.OperationsStarted, s.OperationConflicts, s.OperationFailures, s.StatusPolls)
	return s
}
