package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placeexplorer_lookups_total",
		Help: "Place detail lookups issued, by field set (preview|full)",
	}, []string{"fields"})
	LookupFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placeexplorer_lookup_failures_total",
		Help: "Failed place detail lookups, by reason",
	}, []string{"reason"})
	LookupDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "placeexplorer_lookup_duration_ms",
		Help:    "Provider details call duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
	})
	StaleResultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "placeexplorer_stale_results_total",
		Help: "Lookup results discarded because a newer request was issued",
	})
	SelectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placeexplorer_selections_total",
		Help: "Selections applied, by origin (lookup|history)",
	}, []string{"origin"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "placeexplorer_cache_hits_total",
		Help: "Details cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "placeexplorer_cache_misses_total",
		Help: "Details cache misses",
	})
	CacheErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "placeexplorer_cache_errors_total",
		Help: "Details cache errors that fell through to the provider",
	})
	ActiveScreens = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "placeexplorer_active_screens",
		Help: "Screens currently held in memory",
	})
	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "placeexplorer_active_streams",
		Help: "Websocket streams currently attached",
	})
	DroppedEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "placeexplorer_dropped_events_total",
		Help: "Client events dropped because a screen queue was full",
	})
)

func init() {
	prometheus.MustRegister(LookupsTotal)
	prometheus.MustRegister(LookupFailuresTotal)
	prometheus.MustRegister(LookupDurationMs)
	prometheus.MustRegister(StaleResultsTotal)
	prometheus.MustRegister(SelectionsTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CacheErrorsTotal)
	prometheus.MustRegister(ActiveScreens)
	prometheus.MustRegister(ActiveStreams)
	prometheus.MustRegister(DroppedEventsTotal)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
