// Package stats tracks per-session playback statistics: request counts,
// bytes downloaded, cache effectiveness, and segment download-time
// percentiles (T-Digest, constant memory).
package stats

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-hls-player/internal/timeseries"
)

// Session holds statistics for one playback session.
//
// Counters are lock-free atomics; the download-time digest is mutex-guarded.
type Session struct {
	startTime time.Time

	ManifestRequests atomic.Int64
	PlaylistRequests atomic.Int64
	SegmentRequests  atomic.Int64
	InitRequests     atomic.Int64

	CacheHits        atomic.Int64
	DownloadFailures atomic.Int64
	BytesDownloaded  atomic.Int64
	VariantSwitches  atomic.Int64
	Rebuffers        atomic.Int64
	Seeks            atomic.Int64

	// Throughput computes rolling download-rate averages. Callers that
	// display rates sample it periodically via RecordSample.
	Throughput *timeseries.Tracker

	mu           sync.Mutex
	segmentTimes *tdigest.TDigest
	segmentCount int64
}

// NewSession creates statistics for a new playback session.
func NewSession() *Session {
	return &Session{
		startTime:    time.Now(),
		Throughput:   timeseries.New(),
		segmentTimes: tdigest.NewWithCompression(100), // ~100 centroids, ~10KB
	}
}

// RecordSegmentDownload records one completed segment (or init segment)
// network download.
func (s *Session) RecordSegmentDownload(bytes int64, elapsed time.Duration) {
	s.BytesDownloaded.Add(bytes)
	s.Throughput.AddBytes(bytes)

	s.mu.Lock()
	s.segmentTimes.Add(elapsed.Seconds(), 1)
	s.segmentCount++
	s.mu.Unlock()
}

// SegmentTimeQuantile returns the q-th quantile of segment download wall
// time in seconds, or 0 when nothing has been recorded.
func (s *Session) SegmentTimeQuantile(q float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.segmentCount == 0 {
		return 0
	}
	return s.segmentTimes.Quantile(q)
}

// Uptime returns how long this session has been running.
func (s *Session) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Summary is a point-in-time snapshot of the session's key metrics.
type Summary struct {
	Uptime           time.Duration
	ManifestRequests int64
	PlaylistRequests int64
	SegmentRequests  int64
	InitRequests     int64
	CacheHits        int64
	DownloadFailures int64
	BytesDownloaded  int64
	VariantSwitches  int64
	Rebuffers        int64
	Seeks            int64
	SegmentTimeP50   time.Duration
	SegmentTimeP95   time.Duration
	SegmentTimeP99   time.Duration
}

// GenerateSummary returns a snapshot of all key metrics.
func (s *Session) GenerateSummary() Summary {
	return Summary{
		Uptime:           s.Uptime(),
		ManifestRequests: s.ManifestRequests.Load(),
		PlaylistRequests: s.PlaylistRequests.Load(),
		SegmentRequests:  s.SegmentRequests.Load(),
		InitRequests:     s.InitRequests.Load(),
		CacheHits:        s.CacheHits.Load(),
		DownloadFailures: s.DownloadFailures.Load(),
		BytesDownloaded:  s.BytesDownloaded.Load(),
		VariantSwitches:  s.VariantSwitches.Load(),
		Rebuffers:        s.Rebuffers.Load(),
		Seeks:            s.Seeks.Load(),
		SegmentTimeP50:   s.quantileDuration(0.50),
		SegmentTimeP95:   s.quantileDuration(0.95),
		SegmentTimeP99:   s.quantileDuration(0.99),
	}
}

func (s *Session) quantileDuration(q float64) time.Duration {
	return time.Duration(s.SegmentTimeQuantile(q) * float64(time.Second))
}

// WriteSummary writes a human-readable exit summary.
func (s *Session) WriteSummary(w io.Writer) {
	sum := s.GenerateSummary()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "                      go-hls-player Session Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "Session Duration:       %s\n", formatDuration(sum.Uptime))
	fmt.Fprintf(w, "Bytes Downloaded:       %s\n", formatBytes(sum.BytesDownloaded))
	fmt.Fprintf(w, "Avg Throughput:         %s/s\n", formatBytes(int64(s.Throughput.Rates().Overall)))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Requests:")
	fmt.Fprintf(w, "  Manifest:             %d\n", sum.ManifestRequests)
	fmt.Fprintf(w, "  Playlists:            %d\n", sum.PlaylistRequests)
	fmt.Fprintf(w, "  Segments:             %d\n", sum.SegmentRequests)
	fmt.Fprintf(w, "  Init Segments:        %d\n", sum.InitRequests)
	fmt.Fprintf(w, "  Cache Hits:           %d\n", sum.CacheHits)
	fmt.Fprintf(w, "  Failures:             %d\n", sum.DownloadFailures)
	fmt.Fprintln(w)
	if sum.SegmentRequests > 0 {
		fmt.Fprintln(w, "Segment Download Time:")
		fmt.Fprintf(w, "  P50 (median):         %s\n", sum.SegmentTimeP50.Round(time.Millisecond))
		fmt.Fprintf(w, "  P95:                  %s\n", sum.SegmentTimeP95.Round(time.Millisecond))
		fmt.Fprintf(w, "  P99:                  %s\n", sum.SegmentTimeP99.Round(time.Millisecond))
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, "Playback:")
	fmt.Fprintf(w, "  Variant Switches:     %d\n", sum.VariantSwitches)
	fmt.Fprintf(w, "  Rebuffer Events:      %d\n", sum.Rebuffers)
	fmt.Fprintf(w, "  Seeks:                %d\n", sum.Seeks)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}

// formatBytes formats a byte count with a binary unit suffix.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
