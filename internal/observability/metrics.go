package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aqi_pipeline"

// Metrics holds the Prometheus counters, histograms, and gauges for pipeline
// runs, the model, and the dashboard's remote control.
type Metrics struct {
	PipelineRuns    *prometheus.CounterVec // labels: status={success,failure,rejected}
	PipelineRunning prometheus.Gauge
	LastSuccess     prometheus.Gauge

	// Step metrics.
	StepDuration *prometheus.HistogramVec // labels: step
	StepFailures *prometheus.CounterVec   // labels: step

	// Model metrics.
	ModelRMSE            prometheus.Gauge
	PredictionsWritten   prometheus.Counter
	PredictionsPublished prometheus.Counter

	// Remote control metrics.
	RemoteTriggers *prometheus.CounterVec // labels: outcome={success,failure,timeout,error,disabled}
}

func newMetrics(help bool) *Metrics {
	h := func(s string) string {
		if help {
			return s
		}
		return ""
	}
	return &Metrics{
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      h("Pipeline runs by final status."),
		}, []string{"status"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running",
			Help:      h("1 while a pipeline run is in progress."),
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      h("Unix time of the last successful pipeline run."),
		}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      h("Duration of each pipeline step."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"step"}),
		StepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      h("Pipeline step failures."),
		}, []string{"step"}),
		ModelRMSE: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_rmse",
			Help:      h("Held-out RMSE of the most recently trained model."),
		}),
		PredictionsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_written_total",
			Help:      h("Prediction files written."),
		}),
		PredictionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_published_total",
			Help:      h("Prediction rows published to Kafka."),
		}),
		RemoteTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_triggers_total",
			Help:      h("Remote workflow triggers by outcome."),
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRuns,
		m.PipelineRunning,
		m.LastSuccess,
		m.StepDuration,
		m.StepFailures,
		m.ModelRMSE,
		m.PredictionsWritten,
		m.PredictionsPublished,
		m.RemoteTriggers,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics(false)
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
