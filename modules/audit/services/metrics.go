package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "backoffice"

	decisionAllowedGrant    = "allowed_grant"
	decisionAllowedElevated = "allowed_elevated"
	decisionDenied          = "denied"
	decisionUnauthorized    = "unauthorized"
	decisionFailed          = "failed"
)

var (
	grantTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "edit_grants",
			Name:      "transitions_total",
			Help:      "Total number of edit grant state changes by target state.",
		},
		[]string{"to"},
	)

	gateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "mutation_gate",
			Name:      "decisions_total",
			Help:      "Total number of mutation gate outcomes by operation and decision.",
		},
		[]string{"op", "decision"},
	)

	auditEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "audit",
			Name:      "entries_total",
			Help:      "Total number of audit entry writes by action and result.",
		},
		[]string{"action", "result"},
	)
)

func recordGrantTransition(to string) {
	grantTransitionsTotal.WithLabelValues(to).Inc()
}

func recordGateDecision(op, decision string) {
	gateDecisionsTotal.WithLabelValues(op, decision).Inc()
}

func recordAuditEntry(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	auditEntriesTotal.WithLabelValues(action, result).Inc()
}
