// Package metrics exposes reefd's operational counters over a Prometheus
// /metrics endpoint, using an isolated registry the way the pack's
// integration tests stand one up per test rather than relying on the
// global default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects scheduler and pipeline counters. The zero value is not
// usable — build one with New.
type Recorder struct {
	registry *prometheus.Registry

	tickQueueDepth   prometheus.Gauge
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	notificationsSent *prometheus.CounterVec
	circuitOpenTotal prometheus.Counter
}

// New builds a Recorder and registers every collector on its own registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		tickQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reef",
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Number of runnables enqueued by the most recent scheduler tick.",
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reef",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Total runnable executions, labelled by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reef",
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of a runnable execution.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"outcome"}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reef",
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Notifications dispatched, labelled by channel and kind.",
		}, []string{"channel", "kind"}),
		circuitOpenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reef",
			Subsystem: "scheduler",
			Name:      "circuit_open_total",
			Help:      "Number of times a job's circuit breaker tripped open.",
		}),
	}

	registry.MustRegister(r.tickQueueDepth, r.runsTotal, r.runDuration, r.notificationsSent, r.circuitOpenTotal)
	return r
}

// Handler serves the registry's collected metrics in the Prometheus
// exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveTick records how many runnables the scheduler's producer tick
// enqueued.
func (r *Recorder) ObserveTick(queued int) {
	r.tickQueueDepth.Set(float64(queued))
}

// ObserveRun records a finished runnable's outcome and duration.
func (r *Recorder) ObserveRun(success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.runsTotal.WithLabelValues(outcome).Inc()
	r.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveCircuitOpen records a job's circuit breaker tripping open.
func (r *Recorder) ObserveCircuitOpen() {
	r.circuitOpenTotal.Inc()
}

// ObserveNotification records a dispatched notification.
func (r *Recorder) ObserveNotification(channel, kind string) {
	r.notificationsSent.WithLabelValues(channel, kind).Inc()
}
