package player

import (
	"github.com/randomizedcoder/go-hls-player/internal/download"
	"github.com/randomizedcoder/go-hls-player/internal/m3u8"
)

// Every asynchronous completion and every public command is delivered
// to the control loop as a typed event on a single channel. The loop
// processes events serially, so handler code never needs locking for
// orchestrator state.
type event interface {
	isEvent()
}

type prepareEvent struct{ locator string }
type playEvent struct{}
type pauseEvent struct{}
type stopEvent struct{}
type seekEvent struct{ to float64 }
type setQualityEvent struct{ quality Quality }
type setRateEvent struct{ rate float64 }
type setVolumeEvent struct{ volume float64 }
type addOutputEvent struct{ output VideoOutput }

type interruptionEvent struct {
	began        bool
	shouldResume bool
}

// Completion events carry the session generation they were spawned
// under. The control loop drops events whose generation no longer
// matches: a fetch finishing behind a stop, seek, or re-prepare must
// not touch the successor session's state.
type manifestLoadedEvent struct {
	generation uint64
	manifest   *m3u8.Manifest
	err        error
}

type playlistsLoadedEvent struct {
	generation uint64
	results    []download.PlaylistResult
}

type segmentFetchedEvent struct {
	generation uint64
	playlist   *m3u8.Playlist
	segment    m3u8.Segment
	result     download.SegmentResult
	err        error
}

type bufferReadyEvent struct{}
type bufferIncreasedEvent struct{}

type readerTimeEvent struct{ offset float64 }
type readerAboutToEndEvent struct{}
type readerDoneEvent struct{ isLast bool }

func (prepareEvent) isEvent()         {}
func (playEvent) isEvent()            {}
func (pauseEvent) isEvent()           {}
func (stopEvent) isEvent()            {}
func (seekEvent) isEvent()            {}
func (setQualityEvent) isEvent()      {}
func (setRateEvent) isEvent()         {}
func (setVolumeEvent) isEvent()       {}
func (addOutputEvent) isEvent()       {}
func (interruptionEvent) isEvent()    {}
func (manifestLoadedEvent) isEvent()  {}
func (playlistsLoadedEvent) isEvent() {}
func (segmentFetchedEvent) isEvent()  {}
func (bufferReadyEvent) isEvent()     {}
func (bufferIncreasedEvent) isEvent() {}
func (readerTimeEvent) isEvent()      {}
func (readerAboutToEndEvent) isEvent() {}
func (readerDoneEvent) isEvent()      {}
