package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStage(StageOCR, time.Second, errors.New("x"))
	m.IncrReceipt("ok")
	m.AddRowsIndexed(3)
	m.IncrRebuild("ok")
	m.IncrClassification("fallback")
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveStage(StageIndex, 10*time.Millisecond, nil)
	m.ObserveStage(StageIndex, 10*time.Millisecond, errors.New("rejected"))
	m.IncrReceipt("partial")
	m.AddRowsIndexed(4)

	if got := testutil.ToFloat64(m.stageErrors.WithLabelValues(StageIndex)); got != 1 {
		t.Errorf("stage errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.receipts.WithLabelValues("partial")); got != 1 {
		t.Errorf("receipts{partial} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rowsIndexed); got != 4 {
		t.Errorf("rows indexed = %v, want 4", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.IncrRebuild("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `index_rebuilds_total{outcome="ok"} 1`) {
		t.Errorf("metrics output missing rebuild counter:\n%s", rec.Body.String())
	}
}

func TestNew_Twice(t *testing.T) {
	New()
	New()
}
