package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	pipelineRuns *prometheus.CounterVec
	mbeValue     *prometheus.GaugeVec
	riskScore    *prometheus.GaugeVec
	alertsTotal  *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		pipelineRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pumpwatch_pipeline_runs_total",
				Help: "Daily pipeline runs by outcome",
			},
			[]string{"fuel", "outcome"},
		),
		mbeValue: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pumpwatch_mbe_tl_per_liter",
				Help: "Latest cost-base effect, TL per liter",
			},
			[]string{"fuel"},
		),
		riskScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pumpwatch_risk_score",
				Help: "Latest composite risk score",
			},
			[]string{"fuel"},
		),
		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pumpwatch_alerts_total",
				Help: "Alert transitions published",
			},
			[]string{"fuel", "metric", "level", "action"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pumpwatch_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pumpwatch_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordPipelineRun counts one per-fuel pipeline run by outcome.
func (r *Recorder) RecordPipelineRun(fuel, outcome string) {
	r.pipelineRuns.WithLabelValues(fuel, outcome).Inc()
}

// RecordMBE publishes the day's cost-base effect for a fuel.
func (r *Recorder) RecordMBE(fuel string, value float64) {
	r.mbeValue.WithLabelValues(fuel).Set(value)
}

// RecordRiskScore publishes the day's composite risk score for a fuel.
func (r *Recorder) RecordRiskScore(fuel string, value float64) {
	r.riskScore.WithLabelValues(fuel).Set(value)
}

// RecordAlert counts an alert transition.
func (r *Recorder) RecordAlert(fuel, metric, level, action string) {
	r.alertsTotal.WithLabelValues(fuel, metric, level, action).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
