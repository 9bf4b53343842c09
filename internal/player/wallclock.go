package player

import (
	"sync"
	"time"
)

const (
	wallClockTick = 50 * time.Millisecond
	// aboutToEndLead is how far before artifact exhaustion the
	// about-to-end handler fires.
	aboutToEndLead = 1.0
)

// WallClockReader is a SegmentReader that paces through artifacts in
// real time without decoding anything. It lets the player run headless
// against a live origin, which is how the CLI exercises the full
// control loop.
type WallClockReader struct {
	mu           sync.Mutex
	artifact     Artifact
	rate         float64
	playing      bool
	elapsed      float64
	stop         chan struct{}
	onTime       func(float64)
	onAboutToEnd func()
}

func NewWallClockReader() *WallClockReader {
	return &WallClockReader{rate: 1.0}
}

func (r *WallClockReader) SetHandlers(onTime func(float64), onAboutToEnd func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTime = onTime
	r.onAboutToEnd = onAboutToEnd
}

func (r *WallClockReader) Prepare(a Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifact = a
	r.elapsed = 0
	return nil
}

func (r *WallClockReader) Start(done func()) {
	r.mu.Lock()
	if r.stop != nil {
		close(r.stop)
	}
	stop := make(chan struct{})
	r.stop = stop
	r.playing = true
	r.mu.Unlock()

	go r.loop(stop, done)
}

func (r *WallClockReader) loop(stop chan struct{}, done func()) {
	ticker := time.NewTicker(wallClockTick)
	defer ticker.Stop()

	aboutFired := false
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			if !r.playing {
				r.mu.Unlock()
				continue
			}
			r.elapsed += wallClockTick.Seconds() * r.rate
			position := r.artifact.StartOffset + r.elapsed
			remaining := r.artifact.Duration - position
			onTime := r.onTime
			onAbout := r.onAboutToEnd
			fireAbout := !aboutFired && remaining <= aboutToEndLead
			if fireAbout {
				aboutFired = true
			}
			finished := remaining <= 0
			r.mu.Unlock()

			if onTime != nil {
				onTime(position)
			}
			if fireAbout && onAbout != nil {
				onAbout()
			}
			if finished {
				done()
				return
			}
		}
	}
}

func (r *WallClockReader) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playing = false
}

func (r *WallClockReader) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playing = true
}

func (r *WallClockReader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
	r.playing = false
	r.elapsed = 0
}

func (r *WallClockReader) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate = rate
}

// NopAudio is an AudioPipeline that discards everything. Used by the
// headless CLI.
type NopAudio struct{}

func (NopAudio) Schedule(string, float64) error { return nil }
func (NopAudio) Play()                          {}
func (NopAudio) Pause()                         {}
func (NopAudio) Stop()                          {}
func (NopAudio) SetRate(float64)                {}
func (NopAudio) SetVolume(float64)              {}
