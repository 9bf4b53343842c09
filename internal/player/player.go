package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/randomizedcoder/go-hls-player/internal/bandwidth"
	"github.com/randomizedcoder/go-hls-player/internal/download"
	"github.com/randomizedcoder/go-hls-player/internal/m3u8"
	"github.com/randomizedcoder/go-hls-player/internal/metrics"
	"github.com/randomizedcoder/go-hls-player/internal/segbuffer"
	"github.com/randomizedcoder/go-hls-player/internal/stats"
	"github.com/randomizedcoder/go-hls-player/internal/storage"
)

// ErrNoPlaylistsAvailable indicates variant selection was attempted
// before any playlist finished loading.
var ErrNoPlaylistsAvailable = errors.New("player: no playlists available")

// startTimeEpsilon bounds float drift when matching a segment's start
// time against the buffer's fill position.
const startTimeEpsilon = 1e-3

// Callbacks notify the host application of playback changes. All
// callbacks are invoked from the control loop; hosts must not call back
// into the player synchronously from them with blocking work.
type Callbacks struct {
	OnPlayingChanged   func(playing bool)
	OnBufferingChanged func(buffering bool)
	OnTimeUpdated      func(seconds float64)
	OnCompleted        func()
	OnStateChange      func(state PlaybackState)
}

// Deps carries the player's collaborators and tuning knobs.
type Deps struct {
	Client    *http.Client
	Reader    SegmentReader
	Audio     AudioPipeline
	Collector *metrics.Collector
	Session   *stats.Session
	Logger    *slog.Logger
	Callbacks Callbacks

	// CacheRoot is the directory under which per-session segment caches
	// are created and removed.
	CacheRoot string

	// TargetBuffer and MinBuffer override the segment buffer thresholds
	// when positive.
	TargetBuffer float64
	MinBuffer    float64
}

// Player is the stream orchestrator. Public methods post typed events
// onto a single control channel; a dedicated goroutine applies them
// serially, so playback state is never mutated concurrently.
type Player struct {
	logger    *slog.Logger
	client    *http.Client
	collector *metrics.Collector
	session   *stats.Session
	callbacks Callbacks
	cacheRoot string

	reader SegmentReader
	audio  AudioPipeline

	events    chan event
	done      chan struct{}
	closeOnce sync.Once

	// Control-loop state. Touched only by the run loop and its handlers.
	buffer    *segbuffer.Buffer
	estimator *bandwidth.Estimator
	scheduler *download.Scheduler
	store     *storage.Disk

	manifest        *m3u8.Manifest
	playlists       []*m3u8.Playlist
	playlistsLoaded bool
	current         *m3u8.Playlist

	state        PlaybackState
	preferred    Quality
	filling      bool
	wantPlay     bool
	pendingSeek  *float64
	resumeOnEnd  bool
	readerOffset float64
	playingStart float64
	rate         float64

	// audioPrepPending records a missed ahead-of-time audio schedule;
	// the next registered segment satisfies it.
	audioPrepPending bool

	// generation identifies the current session and fill epoch.
	// resetSession and applySeek advance it; completion events from an
	// earlier epoch are dropped on arrival.
	generation uint64

	fillCtx    context.Context
	fillCancel context.CancelFunc

	outputs []VideoOutput

	// Snapshot fields readable from any goroutine.
	snapMu      sync.RWMutex
	snapState   PlaybackState
	snapTime    float64
	snapQuality Quality
	snapAvail   []Quality
	snapBW      float64
}

// New creates a player and starts its control loop. Close releases it.
func New(deps Deps) *Player {
	p := newPlayer(deps)
	go p.run()
	return p
}

// newPlayer builds a player without starting the control loop.
func newPlayer(deps Deps) *Player {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := deps.Client
	if client == nil {
		client = http.DefaultClient
	}
	cacheRoot := deps.CacheRoot
	if cacheRoot == "" {
		cacheRoot = "hls-player-cache"
	}
	session := deps.Session
	if session == nil {
		session = stats.NewSession()
	}

	p := &Player{
		logger:    logger,
		client:    client,
		collector: deps.Collector,
		session:   session,
		callbacks: deps.Callbacks,
		cacheRoot: cacheRoot,
		reader:    deps.Reader,
		audio:     deps.Audio,
		events:    make(chan event, 256),
		done:      make(chan struct{}),
		buffer:    segbuffer.New(deps.TargetBuffer, deps.MinBuffer),
		preferred: QualityAuto,
		rate:      1.0,
	}

	p.estimator = bandwidth.NewEstimator(func(estimate float64) {
		p.collector.SetBandwidthEstimate(estimate)
		p.snapMu.Lock()
		p.snapBW = estimate
		p.snapMu.Unlock()
	})

	p.buffer.SetHandlers(segbuffer.Handlers{
		InitiallyReady: func() { p.post(bufferReadyEvent{}) },
		Increased:      func() { p.post(bufferIncreasedEvent{}) },
	})

	if p.reader != nil {
		p.reader.SetHandlers(
			func(offset float64) { p.post(readerTimeEvent{offset: offset}) },
			func() { p.post(readerAboutToEndEvent{}) },
		)
	}

	return p
}

// =============================================================================
// Public control surface
// =============================================================================

// PrepareToPlay starts a new playback session for the given manifest
// locator. Any previous session is torn down first.
func (p *Player) PrepareToPlay(locator string) { p.post(prepareEvent{locator: locator}) }

// Play starts or resumes playback. If the buffer is not ready yet, the
// player waits for it and starts automatically.
func (p *Player) Play() { p.post(playEvent{}) }

// Pause suspends playback. Buffered data and in-flight downloads are
// kept.
func (p *Player) Pause() { p.post(pauseEvent{}) }

// Seek moves the playback position to the given time in seconds.
func (p *Player) Seek(to float64) { p.post(seekEvent{to: to}) }

// Stop ends the session, discards the buffer and removes the session's
// cache directory.
func (p *Player) Stop() { p.post(stopEvent{}) }

// SetPreferredQuality pins variant selection to a tier, or restores
// automatic selection with QualityAuto. Takes effect on future fill
// steps only.
func (p *Player) SetPreferredQuality(q Quality) { p.post(setQualityEvent{quality: q}) }

// SetRate changes the playback rate for the reader and audio pipeline.
func (p *Player) SetRate(rate float64) { p.post(setRateEvent{rate: rate}) }

// SetVolume changes the audio volume, 0.0 to 1.0.
func (p *Player) SetVolume(volume float64) { p.post(setVolumeEvent{volume: volume}) }

// AddOutput attaches a render surface to the segment reader.
func (p *Player) AddOutput(out VideoOutput) { p.post(addOutputEvent{output: out}) }

// InterruptionBegan tells the player an external playback interruption
// started (for example a device audio conflict). The host calls this
// directly; the player holds no ambient subscriptions.
func (p *Player) InterruptionBegan() { p.post(interruptionEvent{began: true}) }

// InterruptionEnded tells the player the interruption cleared.
// shouldResume indicates whether resuming playback is permitted.
func (p *Player) InterruptionEnded(shouldResume bool) {
	p.post(interruptionEvent{began: false, shouldResume: shouldResume})
}

// Close stops the control loop. The player must not be used afterward.
func (p *Player) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// CurrentTime returns the playback position in seconds.
func (p *Player) CurrentTime() float64 {
	p.snapMu.RLock()
	defer p.snapMu.RUnlock()
	return p.snapTime
}

// PlaybackState returns the current state.
func (p *Player) PlaybackState() PlaybackState {
	p.snapMu.RLock()
	defer p.snapMu.RUnlock()
	return p.snapState
}

// CurrentQuality returns the preferred quality setting.
func (p *Player) CurrentQuality() Quality {
	p.snapMu.RLock()
	defer p.snapMu.RUnlock()
	return p.snapQuality
}

// AvailableQualities lists the tiers declared by the loaded manifest.
func (p *Player) AvailableQualities() []Quality {
	p.snapMu.RLock()
	defer p.snapMu.RUnlock()
	out := make([]Quality, len(p.snapAvail))
	copy(out, p.snapAvail)
	return out
}

// Status is a point-in-time snapshot for dashboards.
type Status struct {
	State              PlaybackState
	CurrentTime        float64
	BufferedDuration   float64
	BufferedUpTo       float64
	BandwidthEstimate  float64
	PreferredQuality   Quality
	AvailableQualities []Quality
}

// Status returns a consistent snapshot of the player's externally
// visible state.
func (p *Player) Status() Status {
	p.snapMu.RLock()
	defer p.snapMu.RUnlock()
	avail := make([]Quality, len(p.snapAvail))
	copy(avail, p.snapAvail)
	return Status{
		State:              p.snapState,
		CurrentTime:        p.snapTime,
		BufferedDuration:   p.buffer.BufferedDuration(),
		BufferedUpTo:       p.buffer.BufferedUpTo(),
		BandwidthEstimate:  p.snapBW,
		PreferredQuality:   p.snapQuality,
		AvailableQualities: avail,
	}
}

// =============================================================================
// Control loop
// =============================================================================

func (p *Player) post(ev event) {
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

func (p *Player) run() {
	for {
		select {
		case ev := <-p.events:
			p.handle(ev)
		case <-p.done:
			p.teardown()
			return
		}
	}
}

func (p *Player) handle(ev event) {
	switch ev := ev.(type) {
	case prepareEvent:
		p.handlePrepare(ev.locator)
	case playEvent:
		p.handlePlay()
	case pauseEvent:
		p.handlePause()
	case stopEvent:
		p.handleStop()
	case seekEvent:
		p.handleSeek(ev.to)
	case setQualityEvent:
		p.handleSetQuality(ev.quality)
	case setRateEvent:
		p.handleSetRate(ev.rate)
	case setVolumeEvent:
		if p.audio != nil {
			p.audio.SetVolume(ev.volume)
		}
	case addOutputEvent:
		p.outputs = append(p.outputs, ev.output)
		if p.reader != nil {
			ev.output.AttachReader(p.reader)
		}
	case interruptionEvent:
		p.handleInterruption(ev)
	case manifestLoadedEvent:
		p.handleManifestLoaded(ev)
	case playlistsLoadedEvent:
		p.handlePlaylistsLoaded(ev)
	case segmentFetchedEvent:
		p.handleSegmentFetched(ev)
	case bufferReadyEvent:
		p.handleBufferReady()
	case bufferIncreasedEvent:
		p.handleBufferIncreased()
	case readerTimeEvent:
		p.handleReaderTime(ev.offset)
	case readerAboutToEndEvent:
		p.handleReaderAboutToEnd()
	case readerDoneEvent:
		p.handleReaderDone(ev.isLast)
	}
}

// drain synchronously applies every queued event. Test helper.
func (p *Player) drain() {
	for {
		select {
		case ev := <-p.events:
			p.handle(ev)
		default:
			return
		}
	}
}

// =============================================================================
// Session setup
// =============================================================================

func (p *Player) handlePrepare(locator string) {
	p.resetSession()

	store, err := storage.NewDisk(sessionCachePath(p.cacheRoot, locator))
	if err != nil {
		p.logger.Error("cache_create_failed", "error", err)
		return
	}
	p.store = store

	sch, err := download.NewScheduler(
		p.client, locator, store, p.estimator, p.session, p.collector, p.logger,
	)
	if err != nil {
		p.logger.Error("prepare_failed", "locator", locator, "error", err)
		return
	}
	p.scheduler = sch

	p.logger.Info("session_preparing", "locator", locator)

	ctx := p.fillCtx
	gen := p.generation
	go func() {
		body, err := sch.FetchText(ctx, download.KindManifest, locator)
		if err != nil {
			p.post(manifestLoadedEvent{generation: gen, err: err})
			return
		}
		manifest, err := m3u8.ParseManifest(body)
		p.post(manifestLoadedEvent{generation: gen, manifest: manifest, err: err})
	}()
}

// resetSession tears down the previous session, if any, and reinitializes
// per-session state.
func (p *Player) resetSession() {
	p.generation++
	if p.fillCancel != nil {
		p.fillCancel()
	}
	p.fillCtx, p.fillCancel = context.WithCancel(context.Background())

	if p.reader != nil {
		p.reader.Stop()
	}
	if p.audio != nil {
		p.audio.Stop()
	}
	if p.store != nil {
		if err := p.store.RemoveAll(); err != nil {
			p.logger.Warn("cache_cleanup_failed", "error", err)
		}
		p.store = nil
	}

	p.buffer.Flush()
	p.estimator.Reset()
	p.manifest = nil
	p.playlists = nil
	p.playlistsLoaded = false
	p.current = nil
	p.scheduler = nil
	p.filling = false
	p.wantPlay = false
	p.pendingSeek = nil
	p.resumeOnEnd = false
	p.audioPrepPending = false
	p.readerOffset = 0
	p.playingStart = 0

	p.setTime(0)
	p.setState(StateIdle)
}

func (p *Player) teardown() {
	if p.fillCancel != nil {
		p.fillCancel()
	}
	if p.reader != nil {
		p.reader.Stop()
	}
	if p.audio != nil {
		p.audio.Stop()
	}
	if p.store != nil {
		if err := p.store.RemoveAll(); err != nil {
			p.logger.Warn("cache_cleanup_failed", "error", err)
		}
	}
}

func (p *Player) handleManifestLoaded(ev manifestLoadedEvent) {
	if ev.generation != p.generation {
		return
	}
	if ev.err != nil {
		p.logger.Error("manifest_load_failed", "error", ev.err)
		return
	}
	p.manifest = ev.manifest

	avail := make([]Quality, 0, len(ev.manifest.Variants))
	for _, v := range ev.manifest.Variants {
		if q := QualityForResolution(v.Resolution); q != QualityAuto {
			avail = append(avail, q)
		}
	}
	p.snapMu.Lock()
	p.snapAvail = avail
	p.snapMu.Unlock()

	p.logger.Info("manifest_loaded", "variants", len(ev.manifest.Variants))

	gen := p.generation
	p.scheduler.FetchPlaylists(p.fillCtx, ev.manifest.Variants, func(results []download.PlaylistResult) {
		p.post(playlistsLoadedEvent{generation: gen, results: results})
	})
}

func (p *Player) handlePlaylistsLoaded(ev playlistsLoadedEvent) {
	if ev.generation != p.generation {
		return
	}
	if p.manifest == nil {
		return
	}

	// Results arrive in completion order; restore manifest order so
	// "first variant" fallbacks are deterministic.
	byURI := make(map[string]download.PlaylistResult, len(ev.results))
	for _, r := range ev.results {
		byURI[r.Variant.URI] = r
	}

	p.playlists = p.playlists[:0]
	for _, v := range p.manifest.Variants {
		r, ok := byURI[v.URI]
		if !ok {
			continue
		}
		if r.Err != nil {
			p.logger.Warn("playlist_load_failed", "uri", v.URI, "error", r.Err)
			continue
		}
		pl, err := m3u8.ParsePlaylist(r.Body, v.Resolution, v.Bandwidth)
		if err != nil {
			p.logger.Warn("playlist_parse_failed", "uri", v.URI, "error", err)
			continue
		}
		p.playlists = append(p.playlists, pl)
	}
	p.playlistsLoaded = true

	p.logger.Info("playlists_loaded", "loaded", len(p.playlists), "declared", len(p.manifest.Variants))

	if p.pendingSeek != nil {
		to := *p.pendingSeek
		p.pendingSeek = nil
		p.applySeek(to)
		return
	}
	p.maybeFill()
}

// =============================================================================
// Fill loop
// =============================================================================

// maybeFill starts one download step when the buffer wants more data
// and no step is already in flight.
func (p *Player) maybeFill() {
	if p.filling || !p.playlistsLoaded || p.scheduler == nil {
		return
	}
	if !p.buffer.ShouldFill() {
		return
	}

	pl, err := p.selectPlaylist()
	if err != nil {
		p.logger.Warn("fill_blocked", "error", err)
		return
	}

	upTo := p.buffer.BufferedUpTo()
	seg, ok := segmentAt(pl.Segments, upTo)
	if !ok {
		// End of variant, or timing mismatch across variants. Not an
		// error; another fill runs on the next trigger.
		return
	}

	if p.current != pl {
		if p.current != nil {
			p.session.VariantSwitches.Add(1)
			p.collector.VariantSwitched()
			p.logger.Info("variant_switched",
				"from", p.current.Bandwidth,
				"to", pl.Bandwidth,
				"estimate", p.estimator.Estimate(),
			)
		}
		p.current = pl
		p.collector.SetCurrentVariant(pl.Bandwidth)
	}

	p.filling = true
	ctx := p.fillCtx
	gen := p.generation
	sch := p.scheduler

	go func() {
		result, err := sch.FetchSegment(ctx, pl, seg)
		if ctx.Err() != nil {
			// Cancelled fills post nothing; the canceller resets the
			// busy flag.
			return
		}
		p.post(segmentFetchedEvent{generation: gen, playlist: pl, segment: seg, result: result, err: err})
	}()
}

func (p *Player) handleSegmentFetched(ev segmentFetchedEvent) {
	if ev.generation != p.generation {
		// Fetch outran a stop or seek; the session it belongs to is
		// gone and the flush already cleared the busy flag.
		return
	}
	p.filling = false

	if ev.err != nil {
		p.logger.Warn("segment_fetch_failed", "segment", ev.segment.ID, "error", ev.err)
		return
	}

	isLast := false
	if last, ok := ev.playlist.LastSegment(); ok {
		isLast = last.ID == ev.segment.ID
	}

	p.buffer.Register(segbuffer.Item{
		Segment:   ev.segment,
		Bandwidth: ev.playlist.Bandwidth,
		Path:      p.store.Abs(ev.result.Path),
		IsLast:    isLast,
	})
	p.collector.SetBufferedSeconds(p.buffer.BufferedDuration())

	if p.audioPrepPending {
		p.audioPrepPending = false
		p.handleReaderAboutToEnd()
	}

	p.maybeFill()
}

// selectPlaylist picks the variant for the next fill step.
//
// A manual preference matches on resolution tier, falling back to the
// first variant. Automatic selection takes the largest declared
// bandwidth not exceeding the current estimate, falling back to the
// cheapest variant when nothing qualifies or no estimate exists yet.
func (p *Player) selectPlaylist() (*m3u8.Playlist, error) {
	if len(p.playlists) == 0 {
		return nil, ErrNoPlaylistsAvailable
	}

	if p.preferred != QualityAuto {
		want := p.preferred.Resolution()
		for _, pl := range p.playlists {
			if pl.Resolution == want {
				return pl, nil
			}
		}
		return p.playlists[0], nil
	}

	sorted := make([]*m3u8.Playlist, len(p.playlists))
	copy(sorted, p.playlists)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Bandwidth > sorted[j].Bandwidth })

	estimate := p.estimator.Estimate()
	if estimate > 0 {
		for _, pl := range sorted {
			if pl.Bandwidth <= estimate {
				return pl, nil
			}
		}
	}
	return sorted[len(sorted)-1], nil
}

// segmentAt returns the segment whose start time matches t.
func segmentAt(segments []m3u8.Segment, t float64) (m3u8.Segment, bool) {
	for _, s := range segments {
		if math.Abs(s.StartTime-t) < startTimeEpsilon {
			return s, true
		}
	}
	return m3u8.Segment{}, false
}

// =============================================================================
// Playback transitions
// =============================================================================

func (p *Player) handlePlay() {
	switch p.state {
	case StatePlaying:
		return
	case StatePaused:
		p.setState(StatePlaying)
		if p.reader != nil {
			p.reader.Resume()
		}
		if p.audio != nil {
			p.audio.Play()
		}
	default: // Idle, WaitingForBuffer
		p.wantPlay = true
		if p.buffer.IsReadyToPlay() {
			p.startPlayback()
		} else {
			p.setState(StateWaitingForBuffer)
			p.maybeFill()
		}
	}
}

func (p *Player) handlePause() {
	if p.state != StatePlaying {
		return
	}
	p.setState(StatePaused)
	p.wantPlay = false
	if p.reader != nil {
		p.reader.Pause()
	}
	if p.audio != nil {
		p.audio.Pause()
	}
}

func (p *Player) handleStop() {
	p.resetSession()
}

func (p *Player) handleSeek(to float64) {
	p.session.Seeks.Add(1)
	p.collector.SeekRequested()

	if !p.playlistsLoaded {
		// Replayed once playlists arrive.
		p.pendingSeek = &to
		p.logger.Debug("seek_deferred", "to", to)
		return
	}
	p.applySeek(to)
}

// applySeek cancels in-flight downloads, flushes the buffer and
// realigns the fill position with the segment covering the target.
func (p *Player) applySeek(to float64) {
	p.generation++
	p.fillCancel()
	p.fillCtx, p.fillCancel = context.WithCancel(context.Background())
	p.filling = false
	p.audioPrepPending = false

	if p.reader != nil {
		p.reader.Stop()
	}
	if p.audio != nil {
		p.audio.Stop()
	}

	p.buffer.Flush()

	pl, err := p.selectPlaylist()
	if err != nil {
		p.logger.Warn("seek_blocked", "to", to, "error", err)
		return
	}

	seg, ok := locateSegment(pl.Segments, to)
	if !ok {
		p.logger.Warn("seek_out_of_range", "to", to, "duration", pl.Duration())
		return
	}

	p.buffer.SetBufferedUpTo(seg.StartTime)
	p.readerOffset = to - seg.StartTime
	p.playingStart = seg.StartTime
	p.setTime(to)

	p.logger.Info("seek_applied", "to", to, "segment", seg.ID, "segment_start", seg.StartTime)

	p.setState(StateWaitingForBuffer)
	p.maybeFill()
}

// locateSegment finds the segment whose interval covers t, preferring
// the qualifying segment scanned last.
func locateSegment(segments []m3u8.Segment, t float64) (m3u8.Segment, bool) {
	var (
		best     m3u8.Segment
		bestDiff = math.MaxFloat64
		found    bool
	)
	for _, s := range segments {
		diff := t - s.StartTime
		if diff >= 0 && diff < s.Duration && diff <= bestDiff {
			best = s
			bestDiff = diff
			found = true
		}
	}
	return best, found
}

func (p *Player) handleSetQuality(q Quality) {
	p.preferred = q
	p.snapMu.Lock()
	p.snapQuality = q
	p.snapMu.Unlock()
	p.logger.Info("quality_preference_changed", "quality", q.String())
}

func (p *Player) handleSetRate(rate float64) {
	if rate <= 0 {
		return
	}
	p.rate = rate
	if p.reader != nil {
		p.reader.SetRate(rate)
	}
	if p.audio != nil {
		p.audio.SetRate(rate)
	}
}

func (p *Player) handleInterruption(ev interruptionEvent) {
	if ev.began {
		if p.state == StatePlaying {
			p.handlePause()
			p.resumeOnEnd = true
			p.logger.Info("interruption_began", "will_resume", true)
		}
		return
	}
	if p.resumeOnEnd && ev.shouldResume {
		p.logger.Info("interruption_ended", "resuming", true)
		p.handlePlay()
	}
	p.resumeOnEnd = false
}

// =============================================================================
// Buffer and reader signals
// =============================================================================

func (p *Player) handleBufferReady() {
	if p.wantPlay && p.state == StateWaitingForBuffer {
		p.startPlayback()
	}
}

func (p *Player) handleBufferIncreased() {
	p.collector.SetBufferedSeconds(p.buffer.BufferedDuration())
	if p.wantPlay && p.state == StateWaitingForBuffer && p.buffer.IsReadyToPlay() {
		p.startPlayback()
	}
}

// startPlayback moves to Playing and pushes the next buffered segment
// into the reader and audio pipeline.
func (p *Player) startPlayback() {
	p.setState(StatePlaying)
	if p.audio != nil {
		p.audio.Play()
	}
	p.advanceReader()
}

// advanceReader hands the next buffered artifact to the reader. An
// empty buffer while playing means a stall: back to WaitingForBuffer
// until registrations catch up.
func (p *Player) advanceReader() {
	item, ok := p.buffer.TakeNext()
	if !ok {
		p.setState(StateWaitingForBuffer)
		p.maybeFill()
		return
	}
	p.collector.SetBufferedSeconds(p.buffer.BufferedDuration())

	offset := p.readerOffset
	p.readerOffset = 0
	p.playingStart = item.Segment.StartTime
	p.audioPrepPending = false

	artifact := Artifact{
		Path:        item.Path,
		StartOffset: offset,
		Duration:    item.Segment.Duration,
	}

	if p.reader == nil {
		// Headless session: synthesize completion so the state machine
		// still advances.
		p.post(readerDoneEvent{isLast: item.IsLast})
		return
	}

	if err := p.reader.Prepare(artifact); err != nil {
		p.logger.Error("reader_prepare_failed", "segment", item.Segment.ID, "error", err)
		return
	}
	if p.audio != nil {
		if err := p.audio.Schedule(item.Path, offset); err != nil {
			p.logger.Warn("audio_schedule_failed", "segment", item.Segment.ID, "error", err)
		}
	}

	isLast := item.IsLast
	p.reader.Start(func() { p.post(readerDoneEvent{isLast: isLast}) })

	p.maybeFill()
}

func (p *Player) handleReaderTime(offset float64) {
	t := p.playingStart + offset
	p.setTime(t)
	if cb := p.callbacks.OnTimeUpdated; cb != nil {
		cb(t)
	}
	p.maybeFill()
}

// handleReaderAboutToEnd pre-schedules the next segment's audio so the
// pipeline never runs dry across a segment boundary. When the next
// segment is not buffered yet, scheduling is deferred until it arrives.
func (p *Player) handleReaderAboutToEnd() {
	if p.audio == nil {
		return
	}
	next, ok := p.buffer.PeekNext()
	if !ok {
		p.audioPrepPending = true
		return
	}
	if err := p.audio.Schedule(next.Path, 0); err != nil {
		p.logger.Warn("audio_schedule_failed", "segment", next.Segment.ID, "error", err)
	}
}

func (p *Player) handleReaderDone(isLast bool) {
	if p.state != StatePlaying {
		return
	}

	if isLast {
		p.logger.Info("playback_completed")
		if cb := p.callbacks.OnCompleted; cb != nil {
			cb()
		}
		// Rewind for restart and go idle.
		p.generation++
		p.fillCancel()
		p.fillCtx, p.fillCancel = context.WithCancel(context.Background())
		p.filling = false
		p.wantPlay = false
		p.buffer.Flush()
		p.buffer.SetBufferedUpTo(0)
		p.readerOffset = 0
		p.playingStart = 0
		p.setTime(0)
		if p.audio != nil {
			p.audio.Stop()
		}
		p.setState(StateIdle)
		return
	}

	p.advanceReader()
}

// =============================================================================
// State bookkeeping
// =============================================================================

func (p *Player) setState(s PlaybackState) {
	if s == p.state {
		return
	}
	old := p.state
	p.state = s

	p.snapMu.Lock()
	p.snapState = s
	p.snapMu.Unlock()

	p.collector.SetPlaybackState(int(s))
	if s == StateWaitingForBuffer {
		p.session.Rebuffers.Add(1)
		p.collector.Rebuffered()
	}

	p.logger.Debug("state_changed", "from", old.String(), "to", s.String())

	if cb := p.callbacks.OnStateChange; cb != nil {
		cb(s)
	}
	wasBuffering := old == StateWaitingForBuffer
	isBuffering := s == StateWaitingForBuffer
	if wasBuffering != isBuffering {
		if cb := p.callbacks.OnBufferingChanged; cb != nil {
			cb(isBuffering)
		}
	}
	wasPlaying := old == StatePlaying
	isPlaying := s == StatePlaying
	if wasPlaying != isPlaying {
		if cb := p.callbacks.OnPlayingChanged; cb != nil {
			cb(isPlaying)
		}
	}
}

func (p *Player) setTime(t float64) {
	p.snapMu.Lock()
	p.snapTime = t
	p.snapMu.Unlock()
	p.collector.SetCurrentTime(t)
}

// sessionCachePath derives a unique cache directory for one session.
func sessionCachePath(root, locator string) string {
	name := "stream"
	if u, err := url.Parse(locator); err == nil && u.Path != "" {
		base := path.Base(u.Path)
		base = strings.TrimSuffix(base, path.Ext(base))
		if base != "" && base != "." && base != "/" {
			name = base
		}
	}
	return fmt.Sprintf("%s/%s-%d", root, name, time.Now().UnixNano())
}
