package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	if err := (<-ch).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncBillsSaved()
	m.IncBillsSaved()
	m.AddBillsDeleted(3)
	m.AddBillsDeleted(0)
	m.SetStoredBills(7)
	m.IncExport(ResultSuccess)
	m.ObserveRender(10 * time.Millisecond)

	if got := counterValue(t, m.billsSaved); got != 2 {
		t.Errorf("bills saved = %v, want 2", got)
	}
	if got := counterValue(t, m.billsDeleted); got != 3 {
		t.Errorf("bills deleted = %v, want 3", got)
	}
	if got := counterValue(t, m.storedBills); got != 7 {
		t.Errorf("stored bills = %v, want 7", got)
	}
	if got := counterValue(t, m.exports.WithLabelValues(ResultSuccess)); got != 1 {
		t.Errorf("exports = %v, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.IncBillsSaved()
	m.AddBillsDeleted(1)
	m.SetStoredBills(1)
	m.IncExport(ResultFailed)
	m.ObserveRender(time.Second)
}
