package player

// Artifact is a locally stored, decoder-ready media file: the variant's
// init bytes concatenated with one segment's media bytes.
type Artifact struct {
	// Path is absolute on the local filesystem.
	Path string
	// StartOffset is the position within the segment, in seconds, at
	// which reading should begin. Non-zero after a mid-segment seek.
	StartOffset float64
	// Duration is the segment's media duration in seconds.
	Duration float64
}

// SegmentReader is the decode/render collaborator. It consumes one
// artifact at a time and reports positions back to the control loop.
// Implementations own their own pacing; the player never blocks on
// them.
type SegmentReader interface {
	// Prepare loads an artifact. Must be called before Start.
	Prepare(a Artifact) error
	// Start begins reading and invokes done exactly once when the
	// artifact is exhausted.
	Start(done func())
	Pause()
	Resume()
	Stop()
	SetRate(rate float64)
	// SetHandlers installs position callbacks: onTime receives the
	// current offset within the artifact's segment, onAboutToEnd fires
	// once shortly before the artifact is exhausted.
	SetHandlers(onTime func(offset float64), onAboutToEnd func())
}

// AudioPipeline consumes decoded audio in playback order, ahead of the
// point the reader needs it.
type AudioPipeline interface {
	// Schedule queues the audio for an artifact starting at offset
	// seconds into its segment.
	Schedule(path string, offset float64) error
	Play()
	Pause()
	Stop()
	SetRate(rate float64)
	SetVolume(volume float64)
}

// VideoOutput is a render surface. Outputs attach to the reader and
// pull frames from it; the player only wires them up.
type VideoOutput interface {
	AttachReader(r SegmentReader)
}
