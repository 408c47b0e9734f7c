package stream

import "github.com/prometheus/client_golang/prometheus"

var streamTerminations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pocketd",
		Subsystem: "stream",
		Name:      "terminations_total",
		Help:      "Streaming executions by the reason they ended",
	},
	[]string{"reason"},
)

func init() {
	prometheus.MustRegister(streamTerminations)
}
