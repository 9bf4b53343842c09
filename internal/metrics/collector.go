// Package metrics provides Prometheus metrics for go-hls-player and the
// HTTP server that exposes them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the player's Prometheus metrics. Every record method is
// safe to call on a nil receiver so that metrics stay optional for
// library users.
type Collector struct {
	registry *prometheus.Registry

	playbackState    prometheus.Gauge
	currentTime      prometheus.Gauge
	bufferedSeconds  prometheus.Gauge
	bandwidthBits    prometheus.Gauge
	currentVariant   prometheus.Gauge
	manifestRequests prometheus.Counter
	playlistRequests prometheus.Counter
	segmentRequests  prometheus.Counter
	initRequests     prometheus.Counter
	cacheHits        prometheus.Counter
	downloadFailures prometheus.Counter
	bytesDownloaded  prometheus.Counter
	rebuffers        prometheus.Counter
	seeks            prometheus.Counter
	variantSwitches  prometheus.Counter
	segmentDuration  prometheus.Histogram
}

// NewCollector creates a collector and registers all metrics on a
// private registry, keeping the process default registry clean.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		playbackState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hls_player_playback_state",
			Help: "Current playback state (0=idle 1=playing 2=paused 3=waiting_for_buffer)",
		}),
		currentTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hls_player_current_time_seconds",
			Help: "Current playback position",
		}),
		bufferedSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hls_player_buffered_seconds",
			Help: "Seconds of media buffered ahead of the playback head",
		}),
		bandwidthBits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hls_player_bandwidth_estimate_bits",
			Help: "Smoothed bandwidth estimate in bits per second",
		}),
		currentVariant: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hls_player_current_variant_bandwidth",
			Help: "Declared bandwidth of the variant currently being fetched",
		}),
		manifestRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_player_manifest_requests_total",
			Help: "Total master manifest requests",
		}),
		playlistRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_player_playlist_requests_total",
			Help: "Total variant playlist requests",
		}),
		segmentRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_player_segment_requests_total",
			Help: "Total media segment requests",
		}),
		initRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_player_init_requests_total",
			Help: "Total init segment requests",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_player_segment_cache_hits_total",
			Help: "Segment requests served from the on-disk cache",
		}),
		downloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_player_download_failures_total",
			Help: "Failed downloads (any resource type)",
		}),
		bytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_player_bytes_downloaded_total",
			Help: "Total bytes downloaded",
		}),
		rebuffers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_player_rebuffer_events_total",
			Help: "Times playback entered waiting_for_buffer",
		}),
		seeks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_player_seeks_total",
			Help: "Seek operations requested",
		}),
		variantSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_player_variant_switches_total",
			Help: "Times the fill loop moved to a different variant",
		}),
		segmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hls_player_segment_download_seconds",
			Help:    "Wall time of segment downloads",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	c.registry.MustRegister(
		c.playbackState,
		c.currentTime,
		c.bufferedSeconds,
		c.bandwidthBits,
		c.currentVariant,
		c.manifestRequests,
		c.playlistRequests,
		c.segmentRequests,
		c.initRequests,
		c.cacheHits,
		c.downloadFailures,
		c.bytesDownloaded,
		c.rebuffers,
		c.seeks,
		c.variantSwitches,
		c.segmentDuration,
	)

	return c
}

// Registry returns the collector's private registry for the metrics
// server to serve. Returns nil on a nil collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) SetPlaybackState(state int) {
	if c == nil {
		return
	}
	c.playbackState.Set(float64(state))
}

func (c *Collector) SetCurrentTime(seconds float64) {
	if c == nil {
		return
	}
	c.currentTime.Set(seconds)
}

func (c *Collector) SetBufferedSeconds(seconds float64) {
	if c == nil {
		return
	}
	c.bufferedSeconds.Set(seconds)
}

func (c *Collector) SetBandwidthEstimate(bitsPerSec float64) {
	if c == nil {
		return
	}
	c.bandwidthBits.Set(bitsPerSec)
}

func (c *Collector) SetCurrentVariant(bandwidth float64) {
	if c == nil {
		return
	}
	c.currentVariant.Set(bandwidth)
}

func (c *Collector) ManifestRequested() {
	if c == nil {
		return
	}
	c.manifestRequests.Inc()
}

func (c *Collector) PlaylistRequested() {
	if c == nil {
		return
	}
	c.playlistRequests.Inc()
}

func (c *Collector) SegmentRequested() {
	if c == nil {
		return
	}
	c.segmentRequests.Inc()
}

func (c *Collector) InitRequested() {
	if c == nil {
		return
	}
	c.initRequests.Inc()
}

func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

func (c *Collector) DownloadFailed() {
	if c == nil {
		return
	}
	c.downloadFailures.Inc()
}

func (c *Collector) BytesDownloaded(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.bytesDownloaded.Add(float64(n))
}

func (c *Collector) Rebuffered() {
	if c == nil {
		return
	}
	c.rebuffers.Inc()
}

func (c *Collector) SeekRequested() {
	if c == nil {
		return
	}
	c.seeks.Inc()
}

func (c *Collector) VariantSwitched() {
	if c == nil {
		return
	}
	c.variantSwitches.Inc()
}

func (c *Collector) ObserveSegmentDownload(d time.Duration) {
	if c == nil {
		return
	}
	c.segmentDuration.Observe(d.Seconds())
}
