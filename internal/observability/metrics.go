package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "temperature_anomaly"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Scan metrics.
	ScansTotal       *prometheus.CounterVec // labels: outcome={success,failure,timeout,cancelled}
	ScanDuration     prometheus.Histogram
	ScanPartitions   prometheus.Histogram
	RecordsScanned   prometheus.Counter
	AnomaliesFlagged prometheus.Counter

	// Baseline metrics.
	BaselineCache   *prometheus.CounterVec // labels: result={hit,miss}
	DatasetRecords  prometheus.Gauge
	BaselinePairs   prometheus.Gauge
	Classifications *prometheus.CounterVec // labels: status={anomalous,normal,undetermined,unknown_baseline}

	// Live weather metrics.
	WeatherRequests    *prometheus.CounterVec // labels: outcome={success,error}
	WeatherAPIDuration prometheus.Histogram
	WeatherEnabled     prometheus.Gauge

	// Live stream metrics.
	MessagesConsumed        prometheus.Counter
	MessagesProduced        prometheus.Counter
	TransformErrors         prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Parallel anomaly scans by outcome.",
		}, []string{"outcome"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall-clock duration of a parallel anomaly scan.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ScanPartitions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_partitions",
			Help:      "Number of city partitions per scan.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 250, 500},
		}),
		RecordsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_scanned_total",
			Help:      "Total records classified by completed scans.",
		}),
		AnomaliesFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_flagged_total",
			Help:      "Total records flagged anomalous by completed scans.",
		}),
		BaselineCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "baseline_cache_total",
			Help:      "Baseline memo cache lookups by result.",
		}, []string{"result"}),
		DatasetRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_records",
			Help:      "Records in the currently loaded dataset.",
		}),
		BaselinePairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "baseline_pairs",
			Help:      "Distinct (city, season) baselines in the current snapshot.",
		}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Single-reading classifications by verdict status.",
		}, []string{"status"}),
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_requests_total",
			Help:      "Live weather API requests by outcome.",
		}, []string{"outcome"}),
		WeatherAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_api_duration_seconds",
			Help:      "Live weather API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		WeatherEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "weather_enabled",
			Help:      "1 when live weather lookup is configured, 0 otherwise.",
		}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total live readings read from the source topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total verdicts written to the sink topic.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Total live readings that could not be classified.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the live stream is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of live readings per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-classify-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ScansTotal,
		m.ScanDuration,
		m.ScanPartitions,
		m.RecordsScanned,
		m.AnomaliesFlagged,
		m.BaselineCache,
		m.DatasetRecords,
		m.BaselinePairs,
		m.Classifications,
		m.WeatherRequests,
		m.WeatherAPIDuration,
		m.WeatherEnabled,
		m.MessagesConsumed,
		m.MessagesProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// NewMetricsWithRegistry registers all metrics with reg. Tests use a fresh
// registry to read values back.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}
