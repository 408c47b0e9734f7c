package executil

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var execDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "pocketd",
		Subsystem: "exec",
		Name:      "duration_seconds",
		Help:      "Duration of synchronous engine commands by outcome",
		Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 300, 1800},
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(execDuration)
}

func observeExec(outcome string, d time.Duration) {
	execDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
