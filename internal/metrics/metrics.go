// Package metrics exposes the Prometheus instruments for bill activity.
// All methods are safe on a nil *Metrics so callers can run without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Export outcomes
const (
	ResultSuccess  = "success"
	ResultCached   = "cached"
	ResultFailed   = "failed"
	ResultCanceled = "canceled"
)

type Metrics struct {
	billsSaved     prometheus.Counter
	billsDeleted   prometheus.Counter
	exports        *prometheus.CounterVec
	renderDuration prometheus.Histogram
	storedBills    prometheus.Gauge
}

// New creates and registers the instruments. A nil registerer means the
// default Prometheus registry.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		billsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rentbill_bills_saved_total",
			Help: "Bills appended to the bill store.",
		}),
		billsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rentbill_bills_deleted_total",
			Help: "Bills removed from the bill store.",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentbill_exports_total",
			Help: "PNG exports by outcome.",
		}, []string{"result"}), // success | cached | failed | canceled
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rentbill_export_render_seconds",
			Help:    "Time spent rasterizing an invoice.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		storedBills: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rentbill_stored_bills",
			Help: "Bills currently held by the bill store.",
		}),
	}

	registerer.MustRegister(m.billsSaved, m.billsDeleted, m.exports, m.renderDuration, m.storedBills)
	return m
}

func (m *Metrics) IncBillsSaved() {
	if m == nil {
		return
	}
	m.billsSaved.Inc()
}

func (m *Metrics) AddBillsDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.billsDeleted.Add(float64(n))
}

func (m *Metrics) SetStoredBills(n int) {
	if m == nil {
		return
	}
	m.storedBills.Set(float64(n))
}

func (m *Metrics) IncExport(result string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRender(d time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.Observe(d.Seconds())
}
