package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// granule tools.
type Metrics struct {
	// Search metrics.
	SearchRequests *prometheus.CounterVec // labels: outcome={success,error}
	SearchPages    prometheus.Counter
	GranulesFound  prometheus.Counter

	// Download metrics.
	Downloads        *prometheus.CounterVec // labels: outcome={success,error}
	DownloadBytes    prometheus.Counter
	DownloadDuration prometheus.Histogram
	ActiveDownloads  prometheus.Gauge

	// Cache metrics.
	CacheLookups   *prometheus.CounterVec // labels: result={hit,miss}
	CacheEvictions prometheus.Counter
	CacheBytes     prometheus.Gauge

	// Digest metrics.
	DigestsWritten prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SearchRequests,
		m.SearchPages,
		m.GranulesFound,
		m.Downloads,
		m.DownloadBytes,
		m.DownloadDuration,
		m.ActiveDownloads,
		m.CacheLookups,
		m.CacheEvictions,
		m.CacheBytes,
		m.DigestsWritten,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SearchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qkun",
			Name:      "search_requests_total",
			Help:      "CMR search page requests by outcome.",
		}, []string{"outcome"}),
		SearchPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qkun",
			Name:      "search_pages_total",
			Help:      "Total non-empty result pages returned by CMR.",
		}),
		GranulesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qkun",
			Name:      "granules_found_total",
			Help:      "Total granule entries returned by searches.",
		}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qkun",
			Name:      "downloads_total",
			Help:      "Granule downloads by outcome.",
		}, []string{"outcome"}),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qkun",
			Name:      "download_bytes_total",
			Help:      "Total bytes written by the downloader.",
		}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "qkun",
			Name:      "download_duration_seconds",
			Help:      "Duration of a single granule download.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		ActiveDownloads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qkun",
			Name:      "active_downloads",
			Help:      "Number of downloads currently in flight.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qkun",
			Name:      "cache_lookups_total",
			Help:      "File cache lookups by result.",
		}, []string{"result"}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qkun",
			Name:      "cache_evictions_total",
			Help:      "Files evicted from the cache to stay under the size cap.",
		}),
		CacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qkun",
			Name:      "cache_bytes",
			Help:      "Current total size of the file cache in bytes.",
		}),
		DigestsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qkun",
			Name:      "digests_written_total",
			Help:      "Granule digest files written.",
		}),
	}
}
