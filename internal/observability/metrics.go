// Package observability exposes Prometheus metrics for refreshes and view calls.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"farmScope/internal/model"
)

const namespace = "farmscope"

// Metrics holds the application metrics.
type Metrics struct {
	ViewCalls        *prometheus.CounterVec
	ViewCallDuration *prometheus.HistogramVec

	RefreshRuns       *prometheus.CounterVec
	StepDuration      *prometheus.HistogramVec
	StepOutcomes      *prometheus.CounterVec
	CollectionSize    *prometheus.GaugeVec
	LastRefreshFinish prometheus.Gauge
}

// NewMetrics creates the metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ViewCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_calls_total",
			Help:      "View calls issued against the RPC node, by method and outcome.",
		}, []string{"method", "outcome"}),
		ViewCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "view_call_duration_seconds",
			Help:      "Duration of view calls including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RefreshRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_runs_total",
			Help:      "Refresh cycles by outcome (ok, partial, rejected).",
		}, []string{"outcome"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_step_duration_seconds",
			Help:      "Duration of each refresh step.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"step"}),
		StepOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_step_total",
			Help:      "Refresh steps by status.",
		}, []string{"step", "status"}),
		CollectionSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collection_size",
			Help:      "Number of entries in each committed collection.",
		}, []string{"collection"}),
		LastRefreshFinish: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time the last refresh finished.",
		}),
	}
}

// ObserveViewCall implements near.Observer.
func (m *Metrics) ObserveViewCall(method, outcome string, elapsed time.Duration) {
	m.ViewCalls.WithLabelValues(method, outcome).Inc()
	m.ViewCallDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveReport records the outcome of a finished refresh.
func (m *Metrics) ObserveReport(report *model.RefreshReport) {
	if report == nil {
		return
	}
	outcome := "ok"
	if !report.OK() {
		outcome = "partial"
	}
	m.RefreshRuns.WithLabelValues(outcome).Inc()
	for _, step := range report.Steps {
		m.StepOutcomes.WithLabelValues(step.Name, string(step.Status)).Inc()
		m.StepDuration.WithLabelValues(step.Name).Observe(float64(step.DurationMs) / 1000)
		if step.Status == model.StepCommitted {
			m.CollectionSize.WithLabelValues(step.Name).Set(float64(step.Count))
		}
	}
	m.LastRefreshFinish.Set(float64(report.FinishedAt.Unix()))
}

// ObserveRejected counts a refresh that could not start because another one
// held the lease.
func (m *Metrics) ObserveRejected() {
	m.RefreshRuns.WithLabelValues("rejected").Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
