// Package metrics provides Prometheus metrics for the ingestion pipeline
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	DocumentsTotal   *prometheus.CounterVec
	DocumentDuration *prometheus.HistogramVec
	InFlight         prometheus.Gauge

	OCRAttemptsTotal *prometheus.CounterVec
	OCRRetriesTotal  *prometheus.CounterVec

	LedgerAppendsTotal *prometheus.CounterVec
	TasksEnqueuedTotal *prometheus.CounterVec
	TablesExtracted    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{Registry: reg}

	m.DocumentsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filing_documents_total",
			Help: "Documents handled, by outcome",
		},
		[]string{"outcome"},
	)

	m.DocumentDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filing_document_duration_seconds",
			Help:    "Time spent on one document, by outcome",
			Buckets: []float64{.05, .1, .5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)

	m.InFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "filing_documents_in_flight",
			Help: "Documents currently being processed",
		},
	)

	m.OCRAttemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filing_ocr_attempts_total",
			Help: "OCR calls, by provider and result",
		},
		[]string{"provider", "result"},
	)

	m.OCRRetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filing_ocr_retries_total",
			Help: "OCR retries scheduled, by provider",
		},
		[]string{"provider"},
	)

	m.LedgerAppendsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filing_ledger_appends_total",
			Help: "Ledger appends, by ledger and result",
		},
		[]string{"ledger", "result"},
	)

	m.TasksEnqueuedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filing_tasks_enqueued_total",
			Help: "Queue submissions, by result",
		},
		[]string{"result"},
	)

	m.TablesExtracted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filing_tables_extracted_total",
			Help: "Extracted tables, by table and presence",
		},
		[]string{"table", "presence"},
	)

	return m
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordDocument records a finished document.
func (m *Metrics) RecordDocument(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DocumentsTotal.WithLabelValues(outcome).Inc()
	m.DocumentDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// Track marks a document as in flight until the returned func is called.
func (m *Metrics) Track() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}

func (m *Metrics) RecordOCRAttempt(provider string, err error) {
	if m == nil {
		return
	}
	m.OCRAttemptsTotal.WithLabelValues(provider, result(err)).Inc()
}

func (m *Metrics) RecordOCRRetry(provider string) {
	if m == nil {
		return
	}
	m.OCRRetriesTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordLedgerAppend(ledger string, err error) {
	if m == nil {
		return
	}
	m.LedgerAppendsTotal.WithLabelValues(ledger, result(err)).Inc()
}

func (m *Metrics) RecordEnqueue(err error) {
	if m == nil {
		return
	}
	m.TasksEnqueuedTotal.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) RecordTable(table string, present bool) {
	if m == nil {
		return
	}
	presence := "absent"
	if present {
		presence = "present"
	}
	m.TablesExtracted.WithLabelValues(table, presence).Inc()
}
