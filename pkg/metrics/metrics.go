package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Agent is the Prometheus-backed recorder for the external interfaces
// named in the operator HTTP surface: lines_processed_total,
// parse_errors_total, queue_depth, post_latency_ms.
//
// A nil *Agent is valid and every method on it is a no-op, matching the
// rest of the pack's "metrics disabled" convention (InitRegistry(false)).
type Agent struct {
	linesProcessed *prometheus.CounterVec
	parseErrors    prometheus.Counter
	queueDepth     prometheus.Gauge
	postLatencyMs  prometheus.Histogram
}

// NewAgent constructs the agent's metrics. Returns nil if metrics are not
// enabled.
func NewAgent() *Agent {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &Agent{
		linesProcessed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lines_processed_total",
				Help: "Total number of classified printer lines processed, by line type.",
			},
			[]string{"line_type"},
		),
		parseErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "parse_errors_total",
				Help: "Total number of lines the classifier could not recognize.",
			},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "queue_depth",
				Help: "Current number of pending jobs in the outbound delivery queue.",
			},
		),
		postLatencyMs: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "post_latency_ms",
				Help:    "Latency of upstream delivery POSTs, in milliseconds.",
				Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000},
			},
		),
	}
}

// RecordLine increments the per-type line counter and, for unknown lines,
// the parse-error counter.
func (a *Agent) RecordLine(lineType string, parsedSuccessfully bool) {
	if a == nil {
		return
	}
	a.linesProcessed.WithLabelValues(lineType).Inc()
	if !parsedSuccessfully {
		a.parseErrors.Inc()
	}
}

// SetQueueDepth republishes the current queue depth gauge.
func (a *Agent) SetQueueDepth(depth int) {
	if a == nil {
		return
	}
	a.queueDepth.Set(float64(depth))
}

// ObservePostLatencyMs records one upstream delivery POST's latency.
func (a *Agent) ObservePostLatencyMs(ms float64) {
	if a == nil {
		return
	}
	a.postLatencyMs.Observe(ms)
}
