// Package download issues the player's HTTP requests: manifest and
// playlist text, init segments, and media segments. Every completed
// request is reported to the bandwidth estimator as a measurement, and
// finished segment artifacts are cached on disk so a repeated fill step
// for the same segment never touches the network twice.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/randomizedcoder/go-hls-player/internal/bandwidth"
	"github.com/randomizedcoder/go-hls-player/internal/m3u8"
	"github.com/randomizedcoder/go-hls-player/internal/metrics"
	"github.com/randomizedcoder/go-hls-player/internal/stats"
	"github.com/randomizedcoder/go-hls-player/internal/storage"
)

// ErrInvalidLocator indicates a relative resource locator with no base
// URL to resolve it against, or a locator that does not parse at all.
var ErrInvalidLocator = errors.New("download: invalid locator")

// Kind classifies a text resource for accounting.
type Kind int

const (
	KindManifest Kind = iota
	KindPlaylist
)

// PlaylistResult is the outcome of one playlist download within a
// FetchPlaylists fan-out. Body is nil when Err is set.
type PlaylistResult struct {
	Variant m3u8.VariantInfo
	Body    []byte
	Err     error
}

// SegmentResult describes a locally available, decoder-ready artifact.
type SegmentResult struct {
	// Path is relative to the scheduler's storage root and points at the
	// concatenated init+media bytes.
	Path      string
	Bytes     int64
	FromCache bool
}

// Scheduler downloads player resources over HTTP.
//
// Text fetches (manifest, playlists) measure the decoded body length.
// Segment fetches measure the response's declared content length. Both
// feed the estimator; a request aborted by context cancellation feeds
// nothing.
type Scheduler struct {
	client    *http.Client
	base      *url.URL
	store     storage.Store
	estimator *bandwidth.Estimator
	session   *stats.Session
	collector *metrics.Collector
	logger    *slog.Logger

	mu       sync.Mutex
	initDone map[string]struct{} // init artifact paths already on disk
}

// NewScheduler creates a scheduler resolving relative locators against
// baseURL. baseURL may be empty, in which case only absolute locators
// are accepted. collector may be nil.
func NewScheduler(
	client *http.Client,
	baseURL string,
	store storage.Store,
	estimator *bandwidth.Estimator,
	session *stats.Session,
	collector *metrics.Collector,
	logger *slog.Logger,
) (*Scheduler, error) {
	if client == nil {
		client = http.DefaultClient
	}

	var base *url.URL
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidLocator, baseURL, err)
		}
		base = u
	}

	return &Scheduler{
		client:    client,
		base:      base,
		store:     store,
		estimator: estimator,
		session:   session,
		collector: collector,
		logger:    logger,
		initDone:  make(map[string]struct{}),
	}, nil
}

// resolve turns a locator into an absolute URL string.
func (s *Scheduler) resolve(locator string) (string, error) {
	ref, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidLocator, locator, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if s.base == nil {
		return "", fmt.Errorf("%w: relative %q with no base", ErrInvalidLocator, locator)
	}
	return s.base.ResolveReference(ref).String(), nil
}

// FetchText downloads a whole-body text resource (manifest or
// playlist). The measurement uses the decoded body length.
func (s *Scheduler) FetchText(ctx context.Context, kind Kind, locator string) ([]byte, error) {
	target, err := s.resolve(locator)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindManifest:
		s.session.ManifestRequests.Add(1)
		s.collector.ManifestRequested()
	case KindPlaylist:
		s.session.PlaylistRequests.Add(1)
		s.collector.PlaylistRequested()
	}

	start := time.Now()
	body, err := s.get(ctx, target, nil)
	finish := time.Now()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		s.reportFailure(start, finish)
		s.logger.Warn("text_fetch_failed", "url", target, "error", err)
		return nil, err
	}

	s.report(start, finish, int64(len(body)))
	s.logger.Debug("text_fetched", "url", target, "bytes", len(body))
	return body, nil
}

// FetchPlaylists downloads every variant's playlist in parallel and
// invokes done exactly once, after all downloads have finished
// (success, failure, or cancellation alike). Results are in no
// particular order; each carries its originating VariantInfo.
func (s *Scheduler) FetchPlaylists(ctx context.Context, variants []m3u8.VariantInfo, done func([]PlaylistResult)) {
	var (
		mu      sync.Mutex
		results []PlaylistResult
		wg      sync.WaitGroup
	)

	for _, v := range variants {
		wg.Add(1)
		go func(v m3u8.VariantInfo) {
			defer wg.Done()
			body, err := s.FetchText(ctx, KindPlaylist, v.URI)
			mu.Lock()
			results = append(results, PlaylistResult{Variant: v, Body: body, Err: err})
			mu.Unlock()
		}(v)
	}

	go func() {
		wg.Wait()
		done(results)
	}()
}

// FetchSegment makes the given segment locally available as a single
// decoder-ready file and returns its path. The init segment, when the
// playlist declares one, is fetched first (once per variant) and its
// bytes are prefixed onto every media segment. A segment already in the
// cache short-circuits the network entirely.
func (s *Scheduler) FetchSegment(ctx context.Context, pl *m3u8.Playlist, seg m3u8.Segment) (SegmentResult, error) {
	variantDir := fmt.Sprintf("%d", int64(pl.Bandwidth))
	artifactPath := fmt.Sprintf("%s/%s.mp4", variantDir, seg.ID)

	if s.store.Exists(artifactPath) {
		s.session.CacheHits.Add(1)
		s.collector.CacheHit()
		s.logger.Debug("segment_cache_hit", "segment", seg.ID, "path", artifactPath)
		return SegmentResult{Path: artifactPath, FromCache: true}, nil
	}

	if err := s.store.EnsureDir(variantDir); err != nil {
		return SegmentResult{}, err
	}

	var initBytes []byte
	if pl.InitURI != "" {
		b, err := s.fetchInit(ctx, pl, variantDir)
		if err != nil {
			return SegmentResult{}, err
		}
		initBytes = b
	}

	mediaBytes, err := s.fetchMedia(ctx, pl, seg)
	if err != nil {
		return SegmentResult{}, err
	}

	artifact := make([]byte, 0, len(initBytes)+len(mediaBytes))
	artifact = append(artifact, initBytes...)
	artifact = append(artifact, mediaBytes...)

	if err := s.store.WriteFile(artifactPath, artifact); err != nil {
		return SegmentResult{}, err
	}

	s.logger.Debug("segment_ready",
		"segment", seg.ID,
		"path", artifactPath,
		"bytes", len(artifact),
	)
	return SegmentResult{Path: artifactPath, Bytes: int64(len(artifact))}, nil
}

// fetchInit returns the variant's init segment bytes, downloading and
// caching them on first use.
func (s *Scheduler) fetchInit(ctx context.Context, pl *m3u8.Playlist, variantDir string) ([]byte, error) {
	initPath := variantDir + "/init.mp4"

	s.mu.Lock()
	_, cached := s.initDone[initPath]
	s.mu.Unlock()

	if cached || s.store.Exists(initPath) {
		b, err := s.store.ReadFile(initPath)
		if err == nil {
			return b, nil
		}
		// fall through to a fresh download
	}

	target, err := s.resolve(pl.InitURI)
	if err != nil {
		return nil, err
	}

	s.session.InitRequests.Add(1)
	s.collector.InitRequested()

	var rangeHdr *m3u8.ByteRange
	if pl.InitRange != nil {
		rangeHdr = pl.InitRange
	}

	start := time.Now()
	body, err := s.get(ctx, target, rangeHdr)
	finish := time.Now()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		s.reportFailure(start, finish)
		s.logger.Warn("init_fetch_failed", "url", target, "error", err)
		return nil, err
	}

	s.report(start, finish, int64(len(body)))

	if err := s.store.WriteFile(initPath, body); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.initDone[initPath] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("init_fetched", "url", target, "bytes", len(body))
	return body, nil
}

// fetchMedia downloads the media bytes for one segment.
func (s *Scheduler) fetchMedia(ctx context.Context, pl *m3u8.Playlist, seg m3u8.Segment) ([]byte, error) {
	target, err := s.resolve(seg.URI)
	if err != nil {
		return nil, err
	}

	s.session.SegmentRequests.Add(1)
	s.collector.SegmentRequested()

	rangeHdr := requestRange(pl, seg)

	start := time.Now()
	body, declared, err := s.getWithLength(ctx, target, rangeHdr)
	finish := time.Now()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		s.reportFailure(start, finish)
		s.logger.Warn("segment_fetch_failed", "url", target, "segment", seg.ID, "error", err)
		return nil, err
	}

	measured := declared
	if measured < 0 {
		measured = int64(len(body))
	}
	s.report(start, finish, measured)
	s.session.RecordSegmentDownload(measured, finish.Sub(start))
	s.collector.ObserveSegmentDownload(finish.Sub(start))

	return body, nil
}

// requestRange returns the byte range to request for seg, or nil for a
// whole-resource segment. Some origin servers reject the declared exact
// range end for the tail of the file, so the last two byte-range
// segments of a variant are requested one byte short.
func requestRange(pl *m3u8.Playlist, seg m3u8.Segment) *m3u8.ByteRange {
	if seg.Range == nil {
		return nil
	}

	r := *seg.Range
	for i := len(pl.Segments) - 1; i >= 0 && i >= len(pl.Segments)-2; i-- {
		if pl.Segments[i].ID == seg.ID {
			r.End--
			break
		}
	}
	return &r
}

// get issues a GET and returns the full body.
func (s *Scheduler) get(ctx context.Context, target string, byteRange *m3u8.ByteRange) ([]byte, error) {
	body, _, err := s.getWithLength(ctx, target, byteRange)
	return body, err
}

// getWithLength issues a GET and returns the body together with the
// response's declared content length (-1 when the server did not state
// one).
func (s *Scheduler) getWithLength(ctx context.Context, target string, byteRange *m3u8.ByteRange) ([]byte, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, -1, fmt.Errorf("download: building request for %s: %w", target, err)
	}
	if byteRange != nil {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", byteRange.Start, byteRange.End))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, -1, fmt.Errorf("download: %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		io.Copy(io.Discard, resp.Body)
		return nil, -1, fmt.Errorf("download: %s: unexpected status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, -1, fmt.Errorf("download: reading %s: %w", target, err)
	}
	return body, resp.ContentLength, nil
}

// report forwards a successful transfer to the estimator and counters.
func (s *Scheduler) report(start, finish time.Time, bytes int64) {
	s.estimator.Observe(bandwidth.Measurement{Start: start, Finish: finish, Bytes: bytes})
	s.session.BytesDownloaded.Add(bytes)
	s.collector.BytesDownloaded(bytes)
	s.collector.SetBandwidthEstimate(s.estimator.Estimate())
}

// reportFailure records a failed transfer. The zero-byte measurement
// still reaches the estimator so that failures drag the estimate down.
func (s *Scheduler) reportFailure(start, finish time.Time) {
	s.estimator.Observe(bandwidth.Measurement{Start: start, Finish: finish, Bytes: 0})
	s.session.DownloadFailures.Add(1)
	s.collector.DownloadFailed()
}
