// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values shared by the counters below.
const (
	ResultOK             = "ok"
	ResultError          = "error"
	ResultNoEligible     = "no_eligible"
	ResultFetchExhausted = "fetch_exhausted"
	ResultNetworkError   = "network_error"
	ResultIntegrityError = "integrity_error"
	ResultParseError     = "parse_error"
	ResultEmpty          = "empty"
	ResultGone           = "gone"
)

// MetricsCollector is the recording interface used by the services.
type MetricsCollector interface {
	RecordSelection(result string)
	RecordCycleReset()
	RecordDownload(result string, bytes int64, duration time.Duration)
	RecordApply(result string)
	RecordSyncRun(result string)
	RecordEvictions(count int)
	SetCatalogStats(total, cached, cacheBytes int64)
}

// Collector is the Prometheus-backed implementation.
type Collector struct {
	selections       *prometheus.CounterVec
	cycleResets      prometheus.Counter
	downloads        *prometheus.CounterVec
	downloadBytes    prometheus.Counter
	downloadDuration prometheus.Histogram
	applies          *prometheus.CounterVec
	syncRuns         *prometheus.CounterVec
	evictions        prometheus.Counter
	catalogImages    prometheus.Gauge
	cachedImages     prometheus.Gauge
	cacheBytes       prometheus.Gauge
}

// Ensure Collector implements MetricsCollector
var _ MetricsCollector = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skywall_selections_total",
			Help: "Wallpaper selections by result",
		}, []string{"result"}),
		cycleResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skywall_rotation_cycles_total",
			Help: "Rotation cycle resets after pool exhaustion",
		}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skywall_downloads_total",
			Help: "Image downloads by result",
		}, []string{"result"}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skywall_download_bytes_total",
			Help: "Verified image bytes downloaded",
		}),
		downloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skywall_download_duration_seconds",
			Help:    "Time to download and verify one image",
			Buckets: prometheus.DefBuckets,
		}),
		applies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skywall_applies_total",
			Help: "Wallpaper apply command runs by result",
		}, []string{"result"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skywall_sync_runs_total",
			Help: "Catalog sync runs by result",
		}, []string{"result"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skywall_evictions_total",
			Help: "Cached images evicted by the janitor",
		}),
		catalogImages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skywall_catalog_images",
			Help: "Images known to the catalog",
		}),
		cachedImages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skywall_catalog_cached_images",
			Help: "Catalog images with verified local bytes",
		}),
		cacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skywall_cache_size_bytes",
			Help: "Bytes recorded for cached images",
		}),
	}

	reg.MustRegister(
		c.selections,
		c.cycleResets,
		c.downloads,
		c.downloadBytes,
		c.downloadDuration,
		c.applies,
		c.syncRuns,
		c.evictions,
		c.catalogImages,
		c.cachedImages,
		c.cacheBytes,
	)

	return c
}

// RecordSelection counts one selectNext outcome.
func (c *Collector) RecordSelection(result string) {
	c.selections.WithLabelValues(result).Inc()
}

// RecordCycleReset counts a pool exhaustion rollover.
func (c *Collector) RecordCycleReset() {
	c.cycleResets.Inc()
}

// RecordDownload counts one download attempt; bytes and duration are only
// recorded for verified downloads.
func (c *Collector) RecordDownload(result string, bytes int64, duration time.Duration) {
	c.downloads.WithLabelValues(result).Inc()
	if result == ResultOK {
		c.downloadBytes.Add(float64(bytes))
		c.downloadDuration.Observe(duration.Seconds())
	}
}

// RecordApply counts one apply command run.
func (c *Collector) RecordApply(result string) {
	c.applies.WithLabelValues(result).Inc()
}

// RecordSyncRun counts one catalog sync.
func (c *Collector) RecordSyncRun(result string) {
	c.syncRuns.WithLabelValues(result).Inc()
}

// RecordEvictions counts janitor evictions.
func (c *Collector) RecordEvictions(count int) {
	c.evictions.Add(float64(count))
}

// SetCatalogStats updates the catalog gauges.
func (c *Collector) SetCatalogStats(total, cached, cacheBytes int64) {
	c.catalogImages.Set(float64(total))
	c.cachedImages.Set(float64(cached))
	c.cacheBytes.Set(float64(cacheBytes))
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
