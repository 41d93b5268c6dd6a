package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "urban_pulse"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	PipelineRuns    *prometheus.CounterVec // labels: status={succeeded,failed}
	RunDuration     prometheus.Histogram
	PipelineRunning prometheus.Gauge

	RowsInserted     *prometheus.CounterVec // labels: table={weather,sensor,social}
	RowsSwept        *prometheus.CounterVec // labels: table={weather,sensor,social}
	StressSamples    prometheus.Gauge
	AnomaliesFlagged prometheus.Gauge
	LatestStress     prometheus.Gauge

	// Weather API metrics.
	WeatherRequests    *prometheus.CounterVec // labels: outcome={success,error}
	WeatherAPIDuration prometheus.Histogram

	StepAttempts     *prometheus.CounterVec // labels: step, outcome={success,error}
	SamplesPublished prometheus.Counter
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      help("Pipeline runs by final status."),
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      help("Duration of a complete extract-load-transform run."),
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 while a pipeline run is in progress, 0 otherwise."),
		}),
		RowsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_inserted_total",
			Help:      help("Raw rows written by table."),
		}, []string{"table"}),
		RowsSwept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_swept_total",
			Help:      help("Raw rows removed by the retention sweep, by table."),
		}, []string{"table"}),
		StressSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stress_samples",
			Help:      help("Rows in the derived urban_stress table after the last transform."),
		}),
		AnomaliesFlagged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "anomalies_flagged",
			Help:      help("Samples flagged Anomaly by the last transform."),
		}),
		LatestStress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latest_urban_stress_index",
			Help:      help("Urban stress index of the most recent derived sample."),
		}),
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_requests_total",
			Help:      help("Weather API requests by outcome."),
		}, []string{"outcome"}),
		WeatherAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_api_duration_seconds",
			Help:      help("Weather API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		StepAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_attempts_total",
			Help:      help("Orchestrated step attempts by step and outcome."),
		}, []string{"step", "outcome"}),
		SamplesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_published_total",
			Help:      help("Derived samples written to the sink topic."),
		}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.PipelineRuns,
		m.RunDuration,
		m.PipelineRunning,
		m.RowsInserted,
		m.RowsSwept,
		m.StressSamples,
		m.AnomaliesFlagged,
		m.LatestStress,
		m.WeatherRequests,
		m.WeatherAPIDuration,
		m.StepAttempts,
		m.SamplesPublished,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
