// Package metrics defines the prometheus instruments of the exchange.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles all instruments. Construct one per process with the
// registry the web server exposes; tests use their own registries.
type Metrics struct {
	// Update cycles by aggregate status (success, partial, failed).
	UpdateCycles *prometheus.CounterVec
	// Per-source fetch duration by outcome (ok, error).
	SourceFetchDuration *prometheus.HistogramVec
	// Rate resolutions by outcome (ok, inverse, unavailable).
	RateLookups *prometheus.CounterVec
	// Executed trades by side and currency.
	Trades *prometheus.CounterVec
	// End-to-end trade execution duration.
	TradeDuration prometheus.Histogram
}

// New registers all instruments with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UpdateCycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_update_cycles_total",
				Help: "Rate update cycles by aggregate status",
			},
			[]string{"status"},
		),
		SourceFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rate_source_fetch_duration_seconds",
				Help:    "Upstream quote fetch duration per source",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source", "outcome"},
		),
		RateLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_lookups_total",
				Help: "Rate resolutions by outcome",
			},
			[]string{"outcome"},
		),
		Trades: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trades_executed_total",
				Help: "Executed trades by side and currency",
			},
			[]string{"side", "currency"},
		),
		TradeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trade_duration_seconds",
				Help:    "End-to-end trade execution duration",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}
