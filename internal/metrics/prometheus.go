// Package metrics реализует экспорт метрик в Prometheus
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"fleet-insights-service/internal/models"
)

// Prometheus метрики
var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetinsights_requests_total",
			Help: "Total number of requests processed",
		},
		[]string{"endpoint", "method", "status"},
	)

	// RequestDuration длительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetinsights_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"endpoint", "method"},
	)

	// CacheHits попадания в кэш результатов
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetinsights_cache_hits_total",
			Help: "Total number of result cache hits",
		},
		[]string{"cache"},
	)

	// CacheMisses промахи кэша результатов
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetinsights_cache_misses_total",
			Help: "Total number of result cache misses",
		},
		[]string{"cache"},
	)

	// CacheErrors ошибки хранилища кэша
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetinsights_cache_errors_total",
			Help: "Total number of cache backend errors",
		},
		[]string{"cache", "op"},
	)

	// AnalysisLatency время выполнения операций анализа
	AnalysisLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetinsights_analysis_latency_seconds",
			Help:    "Analysis computation latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .5},
		},
		[]string{"operation"},
	)

	// InsightsGenerated количество сгенерированных инсайтов
	InsightsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetinsights_insights_generated_total",
			Help: "Total number of insights generated",
		},
		[]string{"category", "severity"},
	)

	// RuleFailures сбои правил
	RuleFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetinsights_rule_failures_total",
			Help: "Total number of insight rule failures",
		},
		[]string{"rule"},
	)

	// OutliersDetected количество выбросов при сравнении
	OutliersDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetinsights_outliers_detected_total",
			Help: "Total number of outlier vehicles flagged",
		},
		[]string{"metric"},
	)

	// SnapshotRecords размер текущего снимка
	SnapshotRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetinsights_snapshot_records",
			Help: "Number of telemetry records in the active snapshot",
		},
	)

	// SnapshotReloads перезагрузки снимка
	SnapshotReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetinsights_snapshot_reloads_total",
			Help: "Total number of snapshot reload attempts",
		},
		[]string{"status"},
	)
)

// RecordInsights учитывает выданные инсайты
func RecordInsights(list []models.Insight) {
	for _, ins := range list {
		InsightsGenerated.WithLabelValues(string(ins.Category), ins.Severity.String()).Inc()
	}
}

// RecordComparison учитывает выбросы сравнения
func RecordComparison(res models.ComparisonResult) {
	if n := len(res.Outliers()); n > 0 {
		OutliersDetected.WithLabelValues(res.Metric).Add(float64(n))
	}
}
