package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	passDuration  prom.Histogram
	outputResults *prom.CounterVec
	passOutcome   *prom.CounterVec
	queuedChanges prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.passDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "kalamos",
			Name:      "pass_duration_seconds",
			Help:      "Duration of build passes",
			Buckets:   prom.DefBuckets,
		})
		pr.outputResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "kalamos",
			Name:      "output_results_total",
			Help:      "Per-output results by outcome",
		}, []string{"result"})
		pr.passOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "kalamos",
			Name:      "pass_outcomes_total",
			Help:      "Build pass outcomes by final status",
		}, []string{"outcome"})
		pr.queuedChanges = prom.NewGauge(prom.GaugeOpts{
			Namespace: "kalamos",
			Name:      "queued_changes",
			Help:      "Coalesced change events waiting for the next pass",
		})
		reg.MustRegister(pr.passDuration, pr.outputResults, pr.passOutcome, pr.queuedChanges)
	})
	return pr
}

func (pr *PrometheusRecorder) ObservePassDuration(d time.Duration) {
	pr.passDuration.Observe(d.Seconds())
}

func (pr *PrometheusRecorder) AddOutputResult(result OutputResult, n int) {
	if n > 0 {
		pr.outputResults.WithLabelValues(string(result)).Add(float64(n))
	}
}

func (pr *PrometheusRecorder) IncPassOutcome(outcome string) {
	pr.passOutcome.WithLabelValues(outcome).Inc()
}

func (pr *PrometheusRecorder) SetQueuedChanges(n int) {
	pr.queuedChanges.Set(float64(n))
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for
// the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
