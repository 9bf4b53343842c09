// Package player implements the stream orchestrator: the state machine
// that ties manifest parsing, bandwidth estimation, segment buffering
// and downloading into one adaptive playback control loop.
package player

// PlaybackState is the orchestrator's current mode. There is exactly
// one instance per player and only the control loop mutates it.
type PlaybackState int

const (
	StateIdle PlaybackState = iota
	StatePlaying
	StatePaused
	StateWaitingForBuffer
)

func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateWaitingForBuffer:
		return "waiting_for_buffer"
	default:
		return "unknown"
	}
}
