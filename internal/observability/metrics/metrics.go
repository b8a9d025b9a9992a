// Package metrics exposes Prometheus metrics for the receipt pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stages used as the "stage" label.
const (
	StageOCR       = "ocr"
	StageStructure = "structure"
	StageNormalize = "normalize"
	StagePersist   = "persist"
	StageIndex     = "index"
)

// Metrics holds all pipeline metrics.
type Metrics struct {
	// Registry owns these metrics; the /metrics endpoint serves it.
	Registry *prometheus.Registry

	receipts       *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	stageErrors    *prometheus.CounterVec
	rowsIndexed    prometheus.Counter
	rebuilds       *prometheus.CounterVec
	classifyResult *prometheus.CounterVec
}

// New registers all metrics in a private registry, so it is safe to call
// more than once.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		receipts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receipts_processed_total",
				Help: "Receipts processed by outcome.",
			},
			[]string{"outcome"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "receipt_stage_duration_seconds",
				Help:    "Duration of each pipeline stage.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		stageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receipt_stage_errors_total",
				Help: "Pipeline stage failures.",
			},
			[]string{"stage"},
		),
		rowsIndexed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "receipt_rows_indexed_total",
				Help: "Receipt rows upserted into the search index.",
			},
		),
		rebuilds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_rebuilds_total",
				Help: "Search index rebuilds by outcome.",
			},
			[]string{"outcome"},
		),
		classifyResult: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "category_classifications_total",
				Help: "Category classifications by result.",
			},
			[]string{"result"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveStage records a stage duration and, when err is non-nil, a failure.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		m.stageErrors.WithLabelValues(stage).Inc()
	}
}

// IncrReceipt counts a processed receipt: "ok", "partial" or "failed".
func (m *Metrics) IncrReceipt(outcome string) {
	if m == nil {
		return
	}
	m.receipts.WithLabelValues(outcome).Inc()
}

// AddRowsIndexed counts upserted rows.
func (m *Metrics) AddRowsIndexed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsIndexed.Add(float64(n))
}

// IncrRebuild counts an index rebuild.
func (m *Metrics) IncrRebuild(outcome string) {
	if m == nil {
		return
	}
	m.rebuilds.WithLabelValues(outcome).Inc()
}

// IncrClassification counts a classifier result: "matched" or "fallback".
func (m *Metrics) IncrClassification(result string) {
	if m == nil {
		return
	}
	m.classifyResult.WithLabelValues(result).Inc()
}
