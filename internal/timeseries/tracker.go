// Package timeseries tracks session download throughput over short
// rolling windows.
//
// The player adds bytes as segment downloads complete and samples the
// cumulative total on the dashboard tick. Rates are derived between the
// current total and the retained sample nearest each window boundary,
// so a burst of fetches shows in the instantaneous rate and smooths out
// over the longer window.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringSize covers about a minute of history at the 500ms dashboard
	// tick, enough for the smoothed window plus slack for missed ticks.
	ringSize = 128

	instantWindow = 1 * time.Second
	smoothWindow  = 30 * time.Second
)

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type sample struct {
	at    time.Time
	total int64
}

// Tracker accumulates downloaded bytes and answers rolling-rate
// queries. AddBytes is lock-free; RecordSample and Rates share a
// mutex over the sample ring.
type Tracker struct {
	total atomic.Int64

	mu      sync.RWMutex
	ring    [ringSize]sample
	next    int // write position
	count   int // filled entries, caps at ringSize
	started time.Time

	clock Clock
}

// Rates is a point-in-time view of session throughput, all in bytes
// per second except the total.
type Rates struct {
	TotalBytes int64
	PerSecond  float64 // over the last second
	Smoothed   float64 // over the last 30 seconds
	Overall    float64 // since tracking began
}

// New creates a tracker using the wall clock.
func New() *Tracker {
	return NewWithClock(realClock{})
}

// NewWithClock creates a tracker with an injected clock.
func NewWithClock(clock Clock) *Tracker {
	t := &Tracker{clock: clock}
	t.reset(clock.Now())
	return t
}

// AddBytes adds completed download bytes to the running total.
// Non-positive counts are ignored.
func (t *Tracker) AddBytes(n int64) {
	if n > 0 {
		t.total.Add(n)
	}
}

// RecordSample snapshots the running total against the current time.
// Call on a steady cadence; the window rates interpolate between the
// samples actually taken.
func (t *Tracker) RecordSample() {
	s := sample{at: t.clock.Now(), total: t.total.Load()}

	t.mu.Lock()
	t.ring[t.next] = s
	t.next = (t.next + 1) % ringSize
	if t.count < ringSize {
		t.count++
	}
	t.mu.Unlock()
}

// Rates computes the current throughput view.
func (t *Tracker) Rates() Rates {
	now := t.clock.Now()
	total := t.total.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	r := Rates{TotalBytes: total}

	if elapsed := now.Sub(t.started).Seconds(); elapsed > 0 {
		r.Overall = float64(total) / elapsed
	}
	r.PerSecond = t.rateSince(now, total, instantWindow)
	r.Smoothed = t.rateSince(now, total, smoothWindow)

	return r
}

// rateSince derives bytes/sec against the retained sample nearest the
// window boundary. With less history than the window, the oldest
// sample anchors the rate. Caller holds mu.
func (t *Tracker) rateSince(now time.Time, total int64, window time.Duration) float64 {
	if t.count == 0 {
		return 0
	}

	cutoff := now.Add(-window)
	anchor := t.oldest()

	// Walk newest to oldest; the first sample at or before the cutoff
	// is the tightest anchor.
	for i := 1; i <= t.count; i++ {
		s := t.ring[(t.next-i+ringSize)%ringSize]
		if !s.at.After(cutoff) {
			anchor = s
			break
		}
	}

	elapsed := now.Sub(anchor.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(total-anchor.total) / elapsed
}

func (t *Tracker) oldest() sample {
	if t.count < ringSize {
		return t.ring[0]
	}
	return t.ring[t.next]
}

// Reset discards all history and restarts from zero.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total.Store(0)
	t.reset(t.clock.Now())
}

// reset reinitializes the ring with a zero sample at now. Caller holds
// mu, or is the constructor.
func (t *Tracker) reset(now time.Time) {
	t.ring = [ringSize]sample{}
	t.ring[0] = sample{at: now}
	t.next = 1
	t.count = 1
	t.started = now
}
