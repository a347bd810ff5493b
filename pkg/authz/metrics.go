package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authz",
		Subsystem: "policy",
		Name:      "decisions_total",
		Help:      "Total number of policy evaluations broken down by object, action and result.",
	}, []string{"object", "action", "result"})

	decisionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "authz",
		Subsystem: "policy",
		Name:      "latency_seconds",
		Help:      "Latency distribution for policy evaluations.",
		Buckets: []float64{
			0.00005, 0.0001, 0.0005, 0.001,
			0.005, 0.01, 0.05, 0.1,
		},
	}, []string{"result"})
)

func recordDecision(req Request, allowed bool, latency time.Duration) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	decisions.WithLabelValues(req.Object, req.Action, result).Inc()
	decisionLatency.WithLabelValues(result).Observe(latency.Seconds())
}
