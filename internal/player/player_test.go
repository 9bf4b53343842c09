package player

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-hls-player/internal/bandwidth"
	"github.com/randomizedcoder/go-hls-player/internal/download"
	"github.com/randomizedcoder/go-hls-player/internal/m3u8"
	"github.com/randomizedcoder/go-hls-player/internal/segbuffer"
	"github.com/randomizedcoder/go-hls-player/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeReader records collaborator calls for assertion.
type fakeReader struct {
	mu       sync.Mutex
	prepared []Artifact
	started  int
	paused   int
	resumed  int
	stopped  int
	rate     float64
	done     func()
}

func (r *fakeReader) Prepare(a Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prepared = append(r.prepared, a)
	return nil
}

func (r *fakeReader) Start(done func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	r.done = done
}

func (r *fakeReader) Pause()  { r.mu.Lock(); r.paused++; r.mu.Unlock() }
func (r *fakeReader) Resume() { r.mu.Lock(); r.resumed++; r.mu.Unlock() }
func (r *fakeReader) Stop()   { r.mu.Lock(); r.stopped++; r.mu.Unlock() }

func (r *fakeReader) SetRate(rate float64) { r.mu.Lock(); r.rate = rate; r.mu.Unlock() }

func (r *fakeReader) SetHandlers(func(float64), func()) {}

// fakeAudio records scheduled paths.
type fakeAudio struct {
	mu        sync.Mutex
	scheduled []string
}

func (a *fakeAudio) Schedule(path string, offset float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scheduled = append(a.scheduled, path)
	return nil
}

func (a *fakeAudio) Play()             {}
func (a *fakeAudio) Pause()            {}
func (a *fakeAudio) Stop()             {}
func (a *fakeAudio) SetRate(float64)   {}
func (a *fakeAudio) SetVolume(float64) {}

func (a *fakeAudio) scheduledPaths() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.scheduled...)
}

// instantReader completes every artifact immediately.
type instantReader struct{ fakeReader }

func (r *instantReader) Start(done func()) {
	r.fakeReader.Start(done)
	go done()
}

func newTestPlayer(t *testing.T, reader SegmentReader) *Player {
	t.Helper()
	return newPlayer(Deps{
		Reader:    reader,
		Audio:     NopAudio{},
		Logger:    discardLogger(),
		CacheRoot: t.TempDir(),
	})
}

// testPlaylist builds one variant of contiguous fixed-duration segments.
func testPlaylist(res m3u8.Resolution, bw float64, durations ...float64) *m3u8.Playlist {
	pl := &m3u8.Playlist{Resolution: res, Bandwidth: bw}
	start := 0.0
	for i, d := range durations {
		pl.Segments = append(pl.Segments, m3u8.Segment{
			ID:         segName(i),
			URI:        "seg.mp4",
			Duration:   d,
			StartTime:  start,
			Resolution: res,
		})
		start += d
	}
	return pl
}

func segName(i int) string {
	names := []string{"seg00000", "seg00001", "seg00002", "seg00003", "seg00004", "seg00005"}
	return names[i]
}

func loadPlaylists(p *Player, playlists ...*m3u8.Playlist) {
	p.playlists = playlists
	p.playlistsLoaded = true
}

// feedEstimate drives the estimator to a known stable value by feeding
// two observations with identical throughput.
func feedEstimate(p *Player, bitsPerSec float64) {
	bytes := int64(bitsPerSec / 8)
	base := time.Now()
	p.estimator.Observe(bandwidth.Measurement{Start: base, Finish: base.Add(time.Second), Bytes: bytes})
	p.estimator.Observe(bandwidth.Measurement{
		Start:  base.Add(2 * time.Second),
		Finish: base.Add(3 * time.Second),
		Bytes:  bytes,
	})
}

// =============================================================================
// Variant Selection
// =============================================================================

func TestSelectPlaylistAuto(t *testing.T) {
	tests := []struct {
		name     string
		estimate float64
		wantBW   float64
	}{
		{"best fit below estimate", 900_000, 800_000},
		{"estimate below cheapest", 100_000, 200_000},
		{"no estimate yet", 0, 200_000},
		{"estimate above all", 2_000_000, 1_500_000},
		{"exact match", 800_000, 800_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPlayer(t, &fakeReader{})
			loadPlaylists(p,
				testPlaylist(m3u8.Resolution240, 200_000, 4, 4, 4),
				testPlaylist(m3u8.Resolution480, 800_000, 4, 4, 4),
				testPlaylist(m3u8.Resolution720, 1_500_000, 4, 4, 4),
			)
			if tt.estimate > 0 {
				feedEstimate(p, tt.estimate)
			}

			pl, err := p.selectPlaylist()
			if err != nil {
				t.Fatalf("selectPlaylist() error: %v", err)
			}
			if pl.Bandwidth != tt.wantBW {
				t.Errorf("selectPlaylist() bandwidth = %v, want %v", pl.Bandwidth, tt.wantBW)
			}
		})
	}
}

func TestSelectPlaylistManualPreference(t *testing.T) {
	p := newTestPlayer(t, &fakeReader{})
	loadPlaylists(p,
		testPlaylist(m3u8.Resolution240, 200_000, 4),
		testPlaylist(m3u8.Resolution480, 800_000, 4),
	)
	feedEstimate(p, 2_000_000)

	p.handleSetQuality(Quality480)
	pl, err := p.selectPlaylist()
	if err != nil {
		t.Fatalf("selectPlaylist() error: %v", err)
	}
	if pl.Resolution != m3u8.Resolution480 {
		t.Errorf("preferred 480p selected %v", pl.Resolution)
	}

	// No matching tier falls back to the first variant.
	p.handleSetQuality(Quality1080)
	pl, err = p.selectPlaylist()
	if err != nil {
		t.Fatalf("selectPlaylist() error: %v", err)
	}
	if pl.Resolution != m3u8.Resolution240 {
		t.Errorf("unmatched preference selected %v, want first variant", pl.Resolution)
	}
}

func TestSelectPlaylistEmpty(t *testing.T) {
	p := newTestPlayer(t, &fakeReader{})
	p.playlistsLoaded = true

	if _, err := p.selectPlaylist(); err != ErrNoPlaylistsAvailable {
		t.Errorf("selectPlaylist() error = %v, want ErrNoPlaylistsAvailable", err)
	}
}

// =============================================================================
// Seek
// =============================================================================

func TestLocateSegment(t *testing.T) {
	segs := testPlaylist(m3u8.Resolution480, 800_000, 10, 10, 10).Segments

	tests := []struct {
		name      string
		to        float64
		wantStart float64
		wantOK    bool
	}{
		{"start of stream", 0, 0, true},
		{"mid second segment", 15, 10, true},
		{"segment boundary", 10, 10, true},
		{"near end", 29.9, 20, true},
		{"past end", 35, 0, false},
		{"negative", -1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg, ok := locateSegment(segs, tt.to)
			if ok != tt.wantOK {
				t.Fatalf("locateSegment(%v) ok = %v, want %v", tt.to, ok, tt.wantOK)
			}
			if ok && seg.StartTime != tt.wantStart {
				t.Errorf("locateSegment(%v) start = %v, want %v", tt.to, seg.StartTime, tt.wantStart)
			}
		})
	}
}

func TestSeekFlushesBufferAndWaits(t *testing.T) {
	reader := &fakeReader{}
	p := newTestPlayer(t, reader)
	pl := testPlaylist(m3u8.Resolution480, 800_000, 10, 10, 10)
	loadPlaylists(p, pl)
	p.fillCtx, p.fillCancel = newCancellable()

	for _, seg := range pl.Segments[:2] {
		p.buffer.Register(segbuffer.Item{Segment: seg, Path: "/tmp/x", Bandwidth: pl.Bandwidth})
	}
	p.drain()

	p.handleSeek(15)

	if got := p.buffer.Len(); got != 0 {
		t.Errorf("buffer length after seek = %d, want 0", got)
	}
	if got := p.buffer.BufferedUpTo(); got != 10 {
		t.Errorf("bufferedUpTo after seek = %v, want 10", got)
	}
	if p.state != StateWaitingForBuffer {
		t.Errorf("state after seek = %v, want waiting_for_buffer", p.state)
	}
	if p.readerOffset != 5 {
		t.Errorf("reader offset after seek = %v, want 5", p.readerOffset)
	}
	if p.CurrentTime() != 15 {
		t.Errorf("current time after seek = %v, want 15", p.CurrentTime())
	}
}

func TestSeekBeforePlaylistsIsDeferred(t *testing.T) {
	p := newTestPlayer(t, &fakeReader{})
	p.fillCtx, p.fillCancel = newCancellable()

	p.handleSeek(15)

	if p.pendingSeek == nil || *p.pendingSeek != 15 {
		t.Fatal("seek before playlists should be recorded as pending")
	}
	if p.state != StateIdle {
		t.Errorf("deferred seek changed state to %v", p.state)
	}

	// Playlists arriving replays the seek.
	p.manifest = &m3u8.Manifest{Variants: []m3u8.VariantInfo{
		{Bandwidth: 800_000, Resolution: m3u8.Resolution480, URI: "480p.m3u8"},
	}}
	p.handlePlaylistsLoaded(playlistsLoadedEvent{results: playlistBodies(map[string]string{
		"480p.m3u8": "#EXTM3U\n#EXTINF:10,\na.mp4\n#EXTINF:10,\nb.mp4\n#EXTINF:10,\nc.mp4\n",
	}, p.manifest.Variants)})

	if p.pendingSeek != nil {
		t.Error("pending seek not cleared after playlists loaded")
	}
	if got := p.buffer.BufferedUpTo(); got != 10 {
		t.Errorf("bufferedUpTo after deferred seek = %v, want 10", got)
	}
	if p.state != StateWaitingForBuffer {
		t.Errorf("state after deferred seek = %v, want waiting_for_buffer", p.state)
	}
}

// =============================================================================
// State Machine
// =============================================================================

func TestPausePreservesBuffer(t *testing.T) {
	reader := &fakeReader{}
	p := newTestPlayer(t, reader)
	pl := testPlaylist(m3u8.Resolution480, 800_000, 4, 4)
	loadPlaylists(p, pl)

	for _, seg := range pl.Segments {
		p.buffer.Register(segbuffer.Item{Segment: seg, Path: "/tmp/x", Bandwidth: pl.Bandwidth})
	}
	p.state = StatePlaying
	before := p.buffer.BufferedDuration()

	p.handlePause()

	if p.state != StatePaused {
		t.Errorf("state after pause = %v, want paused", p.state)
	}
	if got := p.buffer.BufferedDuration(); got != before {
		t.Errorf("pause changed bufferedDuration from %v to %v", before, got)
	}
	if reader.paused != 1 {
		t.Errorf("reader.Pause called %d times, want 1", reader.paused)
	}
}

func TestPlayFromPausedResumes(t *testing.T) {
	reader := &fakeReader{}
	p := newTestPlayer(t, reader)
	p.state = StatePaused

	p.handlePlay()

	if p.state != StatePlaying {
		t.Errorf("state = %v, want playing", p.state)
	}
	if reader.resumed != 1 {
		t.Errorf("reader.Resume called %d times, want 1", reader.resumed)
	}
	if reader.started != 0 {
		t.Error("resume must not restart the reader")
	}
}

func TestPlayBeforeReadyWaitsForBuffer(t *testing.T) {
	p := newTestPlayer(t, &fakeReader{})

	p.handlePlay()

	if p.state != StateWaitingForBuffer {
		t.Errorf("state = %v, want waiting_for_buffer", p.state)
	}
	if !p.wantPlay {
		t.Error("play intent not recorded")
	}
}

func TestBufferReadyStartsDeferredPlayback(t *testing.T) {
	reader := &fakeReader{}
	p := newTestPlayer(t, reader)
	pl := testPlaylist(m3u8.Resolution480, 800_000, 4, 4)
	loadPlaylists(p, pl)

	p.handlePlay()

	for _, seg := range pl.Segments {
		p.buffer.Register(segbuffer.Item{Segment: seg, Path: "/tmp/x", Bandwidth: pl.Bandwidth})
	}
	p.drain()

	if p.state != StatePlaying {
		t.Fatalf("state = %v, want playing after buffer became ready", p.state)
	}
	if reader.started != 1 {
		t.Errorf("reader.Start called %d times, want 1", reader.started)
	}
	if len(reader.prepared) != 1 || reader.prepared[0].Duration != 4 {
		t.Errorf("unexpected prepared artifacts: %+v", reader.prepared)
	}
}

func TestInterruptionPausesAndAutoResumes(t *testing.T) {
	reader := &fakeReader{}
	p := newTestPlayer(t, reader)
	p.state = StatePlaying

	p.handleInterruption(interruptionEvent{began: true})
	if p.state != StatePaused {
		t.Fatalf("state after interruption = %v, want paused", p.state)
	}

	p.handleInterruption(interruptionEvent{began: false, shouldResume: true})
	if p.state != StatePlaying {
		t.Errorf("state after interruption end = %v, want playing", p.state)
	}
}

func TestInterruptionEndWithoutResumePermission(t *testing.T) {
	p := newTestPlayer(t, &fakeReader{})
	p.state = StatePlaying

	p.handleInterruption(interruptionEvent{began: true})
	p.handleInterruption(interruptionEvent{began: false, shouldResume: false})

	if p.state != StatePaused {
		t.Errorf("state = %v, want paused to stay", p.state)
	}
}

func TestInterruptionWhileNotPlayingIsIgnored(t *testing.T) {
	p := newTestPlayer(t, &fakeReader{})
	p.state = StatePaused

	p.handleInterruption(interruptionEvent{began: true})
	p.handleInterruption(interruptionEvent{began: false, shouldResume: true})

	if p.state != StatePaused {
		t.Errorf("state = %v, interruption without playback must not resume", p.state)
	}
}

func TestCompletionResetsToIdle(t *testing.T) {
	completed := false
	p := newPlayer(Deps{
		Reader:    &fakeReader{},
		Audio:     NopAudio{},
		Logger:    discardLogger(),
		CacheRoot: t.TempDir(),
		Callbacks: Callbacks{OnCompleted: func() { completed = true }},
	})
	pl := testPlaylist(m3u8.Resolution480, 800_000, 4, 4)
	loadPlaylists(p, pl)
	p.fillCtx, p.fillCancel = newCancellable()
	p.state = StatePlaying
	p.setTime(7.5)

	p.handleReaderDone(true)

	if !completed {
		t.Error("completion callback not invoked")
	}
	if p.state != StateIdle {
		t.Errorf("state after completion = %v, want idle", p.state)
	}
	if p.CurrentTime() != 0 {
		t.Errorf("time after completion = %v, want 0", p.CurrentTime())
	}
	if p.buffer.BufferedUpTo() != 0 {
		t.Errorf("bufferedUpTo after completion = %v, want 0", p.buffer.BufferedUpTo())
	}
}

func TestReaderDoneAdvancesToNextSegment(t *testing.T) {
	reader := &fakeReader{}
	p := newTestPlayer(t, reader)
	pl := testPlaylist(m3u8.Resolution480, 800_000, 4, 4)
	loadPlaylists(p, pl)

	for _, seg := range pl.Segments {
		p.buffer.Register(segbuffer.Item{Segment: seg, Path: "/tmp/x", Bandwidth: pl.Bandwidth})
	}
	p.drain()
	p.handlePlay()

	if reader.started != 1 {
		t.Fatalf("reader.Start calls = %d, want 1", reader.started)
	}

	p.handleReaderDone(false)

	if reader.started != 2 {
		t.Errorf("reader.Start calls after advance = %d, want 2", reader.started)
	}
	if p.playingStart != 4 {
		t.Errorf("playingStart = %v, want 4 (second segment)", p.playingStart)
	}
}

func TestReaderTimeUpdatesAbsolutePosition(t *testing.T) {
	var lastTime float64
	p := newPlayer(Deps{
		Reader:    &fakeReader{},
		Audio:     NopAudio{},
		Logger:    discardLogger(),
		CacheRoot: t.TempDir(),
		Callbacks: Callbacks{OnTimeUpdated: func(s float64) { lastTime = s }},
	})
	p.playingStart = 10

	p.handleReaderTime(2.5)

	if p.CurrentTime() != 12.5 {
		t.Errorf("CurrentTime() = %v, want 12.5", p.CurrentTime())
	}
	if lastTime != 12.5 {
		t.Errorf("OnTimeUpdated received %v, want 12.5", lastTime)
	}
}

// =============================================================================
// End-to-End Against a Test Origin
// =============================================================================

func TestPlaybackRunsToCompletion(t *testing.T) {
	const master = "#EXTM3U\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=854x480\n" +
		"480p.m3u8\n"
	const playlist = "#EXTM3U\n" +
		"#EXTINF:4,\nseg0.mp4\n" +
		"#EXTINF:4,\nseg1.mp4\n" +
		"#EXTINF:4,\nseg2.mp4\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/master.m3u8":
			io.WriteString(w, master)
		case "/480p.m3u8":
			io.WriteString(w, playlist)
		default:
			w.Write([]byte("media"))
		}
	}))
	defer srv.Close()

	completedCh := make(chan struct{}, 1)
	p := New(Deps{
		Reader:    &instantReader{},
		Audio:     NopAudio{},
		Logger:    discardLogger(),
		CacheRoot: t.TempDir(),
		MinBuffer: 4,
		Callbacks: Callbacks{OnCompleted: func() {
			select {
			case completedCh <- struct{}{}:
			default:
			}
		}},
	})
	defer p.Close()

	p.PrepareToPlay(srv.URL + "/master.m3u8")
	p.Play()

	select {
	case <-completedCh:
	case <-time.After(10 * time.Second):
		t.Fatalf("playback did not complete; state=%v", p.PlaybackState())
	}

	if p.PlaybackState() != StateIdle {
		// Completion posts may still be settling; give the loop a moment.
		time.Sleep(100 * time.Millisecond)
	}
	if got := p.PlaybackState(); got != StateIdle {
		t.Errorf("state after completion = %v, want idle", got)
	}
}

// =============================================================================
// Stale completion events
// =============================================================================

func TestStopDropsInFlightSegmentCompletion(t *testing.T) {
	p := newTestPlayer(t, &fakeReader{})
	pl := testPlaylist(m3u8.Resolution480, 800_000, 4, 4)
	loadPlaylists(p, pl)

	// A fetch spawned before the stop carries the pre-stop generation.
	stale := segmentFetchedEvent{
		generation: p.generation,
		playlist:   pl,
		segment:    pl.Segments[0],
		result:     download.SegmentResult{Path: "800000/seg00000.mp4", Bytes: 4},
	}

	p.handle(stopEvent{})
	p.handle(stale)

	if got := p.buffer.Len(); got != 0 {
		t.Errorf("buffer length after stale completion = %d, want 0", got)
	}
	if got := p.PlaybackState(); got != StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestSeekDropsPreSeekSegmentCompletion(t *testing.T) {
	p := newTestPlayer(t, &fakeReader{})
	pl := testPlaylist(m3u8.Resolution480, 800_000, 4, 4, 4, 4)
	loadPlaylists(p, pl)
	p.fillCtx, p.fillCancel = newCancellable()

	stale := segmentFetchedEvent{
		generation: p.generation,
		playlist:   pl,
		segment:    pl.Segments[0],
		result:     download.SegmentResult{Path: "800000/seg00000.mp4", Bytes: 4},
	}

	p.applySeek(10)
	upTo := p.buffer.BufferedUpTo()

	p.handle(stale)

	if got := p.buffer.BufferedUpTo(); got != upTo {
		t.Errorf("bufferedUpTo = %v after stale completion, want %v", got, upTo)
	}
	if got := p.buffer.Len(); got != 0 {
		t.Errorf("buffer length after stale completion = %d, want 0", got)
	}
}

func TestStopDropsInFlightManifestCompletion(t *testing.T) {
	p := newTestPlayer(t, &fakeReader{})

	stale := manifestLoadedEvent{
		generation: p.generation,
		manifest: &m3u8.Manifest{Variants: []m3u8.VariantInfo{
			{Bandwidth: 800_000, Resolution: m3u8.Resolution480, URI: "480p.m3u8"},
		}},
	}

	p.handle(stopEvent{})
	p.handle(stale)

	if p.manifest != nil {
		t.Error("stale manifest applied to torn-down session")
	}
	if len(p.AvailableQualities()) != 0 {
		t.Error("stale manifest populated available qualities")
	}
}

// =============================================================================
// Audio pre-scheduling
// =============================================================================

func TestAboutToEndSchedulesNextSegmentAudio(t *testing.T) {
	audio := &fakeAudio{}
	p := newPlayer(Deps{
		Reader:    &fakeReader{},
		Audio:     audio,
		Logger:    discardLogger(),
		CacheRoot: t.TempDir(),
	})

	pl := testPlaylist(m3u8.Resolution480, 800_000, 4, 4)
	loadPlaylists(p, pl)
	p.buffer.Register(segbuffer.Item{
		Segment:   pl.Segments[1],
		Bandwidth: pl.Bandwidth,
		Path:      "/cache/800000/seg00001.mp4",
	})

	p.handleReaderAboutToEnd()

	got := audio.scheduledPaths()
	if len(got) != 1 || got[0] != "/cache/800000/seg00001.mp4" {
		t.Fatalf("scheduled = %v, want next segment path", got)
	}
}

func TestAboutToEndDefersUntilSegmentArrives(t *testing.T) {
	audio := &fakeAudio{}
	p := newPlayer(Deps{
		Reader:    &fakeReader{},
		Audio:     audio,
		Logger:    discardLogger(),
		CacheRoot: t.TempDir(),
	})

	store, err := storage.NewDisk(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	p.store = store

	pl := testPlaylist(m3u8.Resolution480, 800_000, 4, 4)
	loadPlaylists(p, pl)

	p.handleReaderAboutToEnd()
	if n := len(audio.scheduledPaths()); n != 0 {
		t.Fatalf("scheduled %d paths before any segment arrived", n)
	}

	p.handleSegmentFetched(segmentFetchedEvent{
		playlist: pl,
		segment:  pl.Segments[1],
		result:   download.SegmentResult{Path: "800000/seg00001.mp4", Bytes: 4},
	})

	got := audio.scheduledPaths()
	if len(got) != 1 {
		t.Fatalf("scheduled = %v, want one deferred schedule", got)
	}
}

// =============================================================================
// Helpers
// =============================================================================

func newCancellable() (ctx context.Context, cancel context.CancelFunc) {
	return context.WithCancel(context.Background())
}

func playlistBodies(bodies map[string]string, variants []m3u8.VariantInfo) []download.PlaylistResult {
	var out []download.PlaylistResult
	for _, v := range variants {
		out = append(out, download.PlaylistResult{Variant: v, Body: []byte(bodies[v.URI])})
	}
	return out
}
