package observability

import (
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the importer.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	stageDuration    *prometheus.HistogramVec
	rowsTotal        *prometheus.CounterVec
	importsTotal     *prometheus.CounterVec
	leadSourceChecks *prometheus.CounterVec
	externalErrors   *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	publishedReports *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "central_import_stage_duration_seconds",
				Help:    "Duration of import stages.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		rowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "central_import_rows_total",
				Help: "Rows processed by outcome.",
			},
			[]string{"outcome"},
		),
		importsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "central_imports_total",
				Help: "Import runs by final state.",
			},
			[]string{"state"},
		),
		leadSourceChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "central_lead_source_checks_total",
				Help: "hear_us_from lookups by result.",
			},
			[]string{"result"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "central_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "central_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "central_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		publishedReports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "central_import_reports_published_total",
				Help: "Import report events by publish status.",
			},
			[]string{"status"},
		),
	}
}

// RecordStageDuration records the duration of an import stage.
func (m *Metrics) RecordStageDuration(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncrRows adds n rows to the given outcome.
func (m *Metrics) IncrRows(outcome string, n int) {
	if n <= 0 {
		return
	}
	m.rowsTotal.WithLabelValues(outcome).Add(float64(n))
}

// IncrImport counts a finished run.
func (m *Metrics) IncrImport(state string) {
	m.importsTotal.WithLabelValues(state).Inc()
}

// IncrLeadSourceCheck counts one lookup ("found" or "missing").
func (m *Metrics) IncrLeadSourceCheck(result string) {
	m.leadSourceChecks.WithLabelValues(result).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrPublished counts a report event ("ok" or "error").
func (m *Metrics) IncrPublished(status string) {
	m.publishedReports.WithLabelValues(status).Inc()
}

// GetImportSnapshot returns the cumulative counters for GET /v1/metrics/import.
func (m *Metrics) GetImportSnapshot() *domain.ImportMetrics {
	var total float64
	for _, s := range []domain.ImportState{
		domain.StateCompleted, domain.StateNoOpCompleted, domain.StateAborted, domain.StateFailed,
	} {
		total += getCounterValue(m.importsTotal, string(s))
	}

	hits := getCounterValue(m.cacheHits, "worksheets")
	misses := getCounterValue(m.cacheMisses, "worksheets")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.ImportMetrics{
		ImportsTotal:       int64(total),
		ImportsAborted:     int64(getCounterValue(m.importsTotal, string(domain.StateAborted))),
		ImportsFailed:      int64(getCounterValue(m.importsTotal, string(domain.StateFailed))),
		RowsSuccessful:     int64(getCounterValue(m.rowsTotal, "successful")),
		RowsFailed:         int64(getCounterValue(m.rowsTotal, "failed")),
		RowsSkipped:        int64(getCounterValue(m.rowsTotal, "skipped")),
		RowsDuplicate:      int64(getCounterValue(m.rowsTotal, "duplicate")),
		MissingLeadSources: int64(getCounterValue(m.leadSourceChecks, "missing")),
		SheetsCacheHitRate: hitRate,
		Period:             "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
