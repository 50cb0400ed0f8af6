package worker

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the Prometheus collectors of a Pool.
type Metrics struct {
	Jobs       *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Dedup      prometheus.Counter
	QueueDepth prometheus.Gauge
}

// NewMetrics creates the pool collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mvlens",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Analysis requests processed, by command and status.",
		}, []string{"command", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mvlens",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Time spent processing analysis requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"command"}),
		Dedup: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mvlens",
			Subsystem: "worker",
			Name:      "dedup_total",
			Help:      "Requests answered by an identical in-flight request.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mvlens",
			Subsystem: "worker",
			Name:      "queue_depth",
			Help:      "Requests waiting for a worker.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Jobs, m.Duration, m.Dedup, m.QueueDepth)
	}
	return m
}
