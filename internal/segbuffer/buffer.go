// Package segbuffer holds downloaded, ready-to-decode segment handles in
// playback order and tracks how much contiguous media is buffered ahead of
// the playback head.
package segbuffer

import (
	"sync"

	"github.com/randomizedcoder/go-hls-player/internal/m3u8"
)

// Default readiness thresholds in seconds. The two are independent on
// purpose: "safe to start playing" and "stop fetching" are different
// decisions.
const (
	DefaultTargetDuration  = 20.0
	DefaultMinimumDuration = 5.0
)

// Item is one downloaded segment plus its local decodable artifact.
// Created when a download completes; consumed exactly once by the playback
// puller.
type Item struct {
	Segment   m3u8.Segment
	Bandwidth float64
	Path      string
	IsLast    bool
}

// Handlers carries the buffer's readiness notifications.
type Handlers struct {
	// InitiallyReady fires the first time the buffered timeline reaches the
	// minimum duration. One-shot: it never fires again until Flush.
	InitiallyReady func()

	// Increased fires on every Register. Waiting states use it to re-check
	// IsReadyToPlay.
	Increased func()
}

// Buffer is a FIFO of buffered segment items with a consume cursor.
// Safe for concurrent use; notification handlers are invoked outside the
// lock.
type Buffer struct {
	mu sync.Mutex

	target  float64
	minimum float64

	items  []Item
	cursor int

	duration float64 // registered but not yet consumed, in seconds
	upTo     float64 // playback-timeline position buffered through

	notifiedReady bool
	handlers      Handlers
}

// New creates a Buffer with the given thresholds. Non-positive values fall
// back to the defaults.
func New(target, minimum float64) *Buffer {
	if target <= 0 {
		target = DefaultTargetDuration
	}
	if minimum <= 0 {
		minimum = DefaultMinimumDuration
	}
	return &Buffer{target: target, minimum: minimum}
}

// SetHandlers installs notification handlers. Call before registering.
func (b *Buffer) SetHandlers(h Handlers) {
	b.mu.Lock()
	b.handlers = h
	b.mu.Unlock()
}

// Register appends an item at the tail and advances the buffered-through
// position to the item's end time.
func (b *Buffer) Register(item Item) {
	b.mu.Lock()
	b.items = append(b.items, item)
	b.duration += item.Segment.Duration
	b.upTo = item.Segment.StartTime + item.Segment.Duration

	fireReady := false
	if b.upTo >= b.minimum && !b.notifiedReady {
		b.notifiedReady = true
		fireReady = true
	}
	h := b.handlers
	b.mu.Unlock()

	if fireReady && h.InitiallyReady != nil {
		h.InitiallyReady()
	}
	if h.Increased != nil {
		h.Increased()
	}
}

// TakeNext consumes the next unconsumed item in FIFO order and decrements
// the buffered duration by its length. Returns false when the cursor has
// reached the tail.
func (b *Buffer) TakeNext() (Item, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cursor >= len(b.items) {
		return Item{}, false
	}
	item := b.items[b.cursor]
	b.cursor++
	b.duration -= item.Segment.Duration
	return item, true
}

// PeekNext returns the next unconsumed item without advancing the cursor.
// Used by readiness pre-checks that must not consume.
func (b *Buffer) PeekNext() (Item, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cursor >= len(b.items) {
		return Item{}, false
	}
	return b.items[b.cursor], true
}

// Flush clears all items and resets the cursor, durations, and the one-shot
// ready flag. Called on seek.
func (b *Buffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = nil
	b.cursor = 0
	b.duration = 0
	b.upTo = 0
	b.notifiedReady = false
}

// ShouldFill reports whether the fill loop should request more segments.
func (b *Buffer) ShouldFill() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duration < b.target
}

// IsReadyToPlay reports whether enough media is buffered to start playback.
func (b *Buffer) IsReadyToPlay() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duration >= b.minimum
}

// BufferedDuration returns the seconds of media registered but not yet
// consumed.
func (b *Buffer) BufferedDuration() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duration
}

// BufferedUpTo returns the playback-timeline position through which
// contiguous segments are present.
func (b *Buffer) BufferedUpTo() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.upTo
}

// SetBufferedUpTo force-sets the buffered-through position. Used right
// after a seek, before any new registration, so the fill loop's "next
// needed time" starts at the seek target.
func (b *Buffer) SetBufferedUpTo(t float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upTo = t
}

// Len returns the number of registered items, consumed or not.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
