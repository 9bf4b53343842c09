// Package bandwidth converts network transfer measurements into a smoothed
// throughput estimate used for variant selection.
//
// The estimate is the minimum of a slow-responding and a fast-responding
// EWMA over the two most recent accepted measurements. Taking the minimum
// biases the estimate downward: it reacts quickly to bandwidth drops and
// slowly to recoveries, which avoids buffer starvation at the cost of
// occasionally picking a cheaper variant than strictly necessary.
package bandwidth

import (
	"sync"
	"time"
)

// Smoothing constants for the dual EWMA.
const (
	lowAlpha  = 0.2
	highAlpha = 0.8
)

// Measurement describes one completed network transfer. Every transfer the
// scheduler finishes (manifest, playlist, segment, init segment) produces
// exactly one Measurement.
type Measurement struct {
	Start  time.Time
	Finish time.Time
	Bytes  int64
}

// BitsPerSecond returns the instantaneous throughput of the transfer.
func (m Measurement) BitsPerSecond() float64 {
	elapsed := m.Finish.Sub(m.Start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.Bytes*8) / elapsed
}

// ChangeHandler receives the updated estimate (bits per second) each time
// an observation is accepted.
type ChangeHandler func(bitsPerSec float64)

// Estimator holds the current throughput estimate. Safe for concurrent use;
// measurements from concurrent transfers may arrive in any order.
type Estimator struct {
	mu       sync.Mutex
	last     *Measurement
	estimate float64
	onChange ChangeHandler
}

// NewEstimator creates an Estimator. handler may be nil.
func NewEstimator(handler ChangeHandler) *Estimator {
	return &Estimator{onChange: handler}
}

// Observe folds a measurement into the estimate.
//
// The first observation only establishes a baseline and emits nothing.
// An observation whose start time is not strictly after the previous
// accepted observation's start time is dropped: completions from concurrent
// transfers can arrive out of order, and a stale sample would drag the
// estimate toward conditions that no longer hold.
func (e *Estimator) Observe(m Measurement) {
	e.mu.Lock()

	if e.last == nil {
		e.last = &m
		e.mu.Unlock()
		return
	}
	if !m.Start.After(e.last.Start) {
		e.mu.Unlock()
		return
	}

	oldBps := e.last.BitsPerSecond()
	newBps := m.BitsPerSecond()
	low := lowAlpha*newBps + (1-lowAlpha)*oldBps
	high := highAlpha*newBps + (1-highAlpha)*oldBps

	e.estimate = min(low, high)
	e.last = &m
	estimate := e.estimate
	handler := e.onChange
	e.mu.Unlock()

	if handler != nil {
		handler(estimate)
	}
}

// Estimate returns the current smoothed estimate in bits per second, or 0
// when fewer than two observations have been accepted.
func (e *Estimator) Estimate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.estimate
}

// Reset discards all state. Used when a new playback session begins.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = nil
	e.estimate = 0
}
