package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jeeves_ambient"

// Metrics holds the ambient agent's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	Publications   *prometheus.CounterVec
	Overrides      *prometheus.CounterVec
	HistoryErrors  prometheus.Counter
	StorageErrors  prometheus.Counter
	Locations      prometheus.Gauge
	LastPublishSec *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: reg,
		Publications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publications_total",
			Help:      "Colour messages published per location.",
		}, []string{"location", "valid", "overridden"}),
		Overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "override_commands_total",
			Help:      "Manual override commands applied, by action.",
		}, []string{"action"}),
		HistoryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_write_errors_total",
			Help:      "Failed colour history inserts.",
		}),
		StorageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_write_errors_total",
			Help:      "Failed Redis colour writes.",
		}),
		Locations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locations",
			Help:      "Configured locations.",
		}),
		LastPublishSec: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_publish_timestamp_seconds",
			Help:      "Unix time of the last colour published per location.",
		}, []string{"location"}),
	}

	reg.MustRegister(
		m.Publications,
		m.Overrides,
		m.HistoryErrors,
		m.StorageErrors,
		m.Locations,
		m.LastPublishSec,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObservePublication counts one published colour
func (m *Metrics) ObservePublication(location string, valid, overridden bool, unixSec float64) {
	if m == nil {
		return
	}
	m.Publications.WithLabelValues(location, strconv.FormatBool(valid), strconv.FormatBool(overridden)).Inc()
	m.LastPublishSec.WithLabelValues(location).Set(unixSec)
}

// ObserveOverride counts an applied override command
func (m *Metrics) ObserveOverride(action string) {
	if m == nil {
		return
	}
	m.Overrides.WithLabelValues(action).Inc()
}

// HistoryError counts a failed history insert
func (m *Metrics) HistoryError() {
	if m == nil {
		return
	}
	m.HistoryErrors.Inc()
}

// StorageError counts a failed Redis write
func (m *Metrics) StorageError() {
	if m == nil {
		return
	}
	m.StorageErrors.Inc()
}

// SetLocations records the number of configured locations
func (m *Metrics) SetLocations(n int) {
	if m == nil {
		return
	}
	m.Locations.Set(float64(n))
}
