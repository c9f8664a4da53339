// Package metrics holds the Prometheus collectors for sync runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zoomsync/internal/pipeline"
)

// Collector registers on its own registry, not the global default.
type Collector struct {
	registry    *prometheus.Registry
	handler     http.Handler
	meetings    *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	lastSuccess prometheus.Gauge
}

func New() *Collector {
	registry := prometheus.NewRegistry()

	meetings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zoomsync_meetings_total",
		Help: "Meetings seen by sync runs, by outcome",
	}, []string{"outcome"})

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zoomsync_runs_total",
		Help: "Sync runs by final status",
	}, []string{"status"})

	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "zoomsync_run_duration_seconds",
		Help:    "Wall time of sync runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zoomsync_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run",
	})

	registry.MustRegister(meetings, runs, runDuration, lastSuccess)

	return &Collector{
		registry:    registry,
		handler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		meetings:    meetings,
		runs:        runs,
		runDuration: runDuration,
		lastSuccess: lastSuccess,
	}
}

// Handler exposes the registry over HTTP.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return c.handler
}

// ObserveRun records one finished run. err is the error Run returned.
func (c *Collector) ObserveRun(sum pipeline.Summary, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.runs.WithLabelValues(status).Inc()

	if !sum.StartedAt.IsZero() && !sum.FinishedAt.IsZero() {
		c.runDuration.Observe(sum.FinishedAt.Sub(sum.StartedAt).Seconds())
	}
	if err != nil {
		return
	}

	c.meetings.WithLabelValues("emitted").Add(float64(sum.Emitted))
	c.meetings.WithLabelValues("skipped").Add(float64(sum.Skipped))
	c.meetings.WithLabelValues("rejected").Add(float64(sum.Rejected))
	c.lastSuccess.Set(float64(sum.FinishedAt.Unix()))
}
