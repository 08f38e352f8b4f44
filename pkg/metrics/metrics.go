// Package metrics bundles Prometheus collectors for the crawl. All methods
// are nil-safe so components can run without a metrics surface configured.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors on a dedicated registry.
type Metrics struct {
	Registry          *prometheus.Registry
	FetchesTotal      *prometheus.CounterVec
	FetchDuration     prometheus.Histogram
	LedgerEventsTotal *prometheus.CounterVec
	RecordsTotal      prometheus.Counter
	ConsolidatedTotal prometheus.Counter
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamedex_fetches_total",
			Help: "Total entry fetches by classified outcome.",
		},
		[]string{"outcome"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gamedex_fetch_duration_seconds",
			Help:    "Entry fetch latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	ledgerEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamedex_ledger_events_total",
			Help: "Status ledger events appended, by status.",
		},
		[]string{"status"},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gamedex_records_total",
			Help: "Extracted records written to run batches.",
		},
	)
	consolidated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gamedex_consolidated_records_total",
			Help: "Records written to canonical datasets across consolidation passes.",
		},
	)

	registry.MustRegister(fetches, fetchDuration, ledgerEvents, records, consolidated)

	return &Metrics{
		Registry:          registry,
		FetchesTotal:      fetches,
		FetchDuration:     fetchDuration,
		LedgerEventsTotal: ledgerEvents,
		RecordsTotal:      records,
		ConsolidatedTotal: consolidated,
	}
}

// IncFetch counts one fetch with its classified outcome.
func (m *Metrics) IncFetch(outcome string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetchDuration records one fetch latency.
func (m *Metrics) ObserveFetchDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// IncLedgerEvent counts one appended status event.
func (m *Metrics) IncLedgerEvent(status string) {
	if m == nil {
		return
	}
	m.LedgerEventsTotal.WithLabelValues(status).Inc()
}

// IncRecord counts one record written to a run batch.
func (m *Metrics) IncRecord() {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
}

// AddConsolidated counts records written during a consolidation pass.
func (m *Metrics) AddConsolidated(n int) {
	if m == nil {
		return
	}
	m.ConsolidatedTotal.Add(float64(n))
}

// Handler returns an http.Handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
