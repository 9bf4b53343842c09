// Package m3u8 parses the two-level EXTM3U manifest/playlist text format
// used by the player: a master manifest listing variant playlists, and a
// variant playlist listing media segments addressed either as whole
// resources or as byte ranges within one.
package m3u8

import "fmt"

// Resolution is the vertical resolution tier of a variant.
// ResolutionUnsupported covers anything the player does not render natively.
type Resolution int

const (
	ResolutionUnsupported Resolution = 0
	Resolution240         Resolution = 240
	Resolution360         Resolution = 360
	Resolution480         Resolution = 480
	Resolution720         Resolution = 720
	Resolution1080        Resolution = 1080
)

// String returns a human-readable name for the resolution tier.
func (r Resolution) String() string {
	if r == ResolutionUnsupported {
		return "unsupported"
	}
	return fmt.Sprintf("%dp", int(r))
}

// Manifest is the parsed master manifest: an ordered list of variant
// descriptors. Immutable after parse.
type Manifest struct {
	Variants []VariantInfo
}

// VariantInfo describes one variant advertised by the master manifest.
// Bandwidth is advisory (declared by the server, not measured).
type VariantInfo struct {
	Bandwidth  float64
	Resolution Resolution
	URI        string
}

// ByteRange is a half-open byte span parsed from "length@start" syntax:
// Start is the first byte, End is Start+length. Range requests are issued
// end-inclusive by the download scheduler.
type ByteRange struct {
	Start int64
	End   int64
}

// Segment is one time-bounded chunk of the media timeline.
// Range is nil for segments addressed as whole resources; a segment never
// mixes byte-range and whole-resource addressing.
type Segment struct {
	ID         string
	URI        string
	Duration   float64
	StartTime  float64
	Resolution Resolution
	Range      *ByteRange
}

// EndTime returns the playback-timeline position at which this segment ends.
func (s Segment) EndTime() float64 {
	return s.StartTime + s.Duration
}

// Playlist is one parsed variant: its ordered segment list plus optional
// initialization-segment metadata shared by every segment of the variant.
type Playlist struct {
	Resolution Resolution
	Bandwidth  float64
	InitURI    string
	InitRange  *ByteRange
	Segments   []Segment
}

// LastSegment returns the final segment of the playlist, or false when the
// playlist is empty.
func (p *Playlist) LastSegment() (Segment, bool) {
	if len(p.Segments) == 0 {
		return Segment{}, false
	}
	return p.Segments[len(p.Segments)-1], true
}

// Duration returns the total playback duration of the playlist in seconds.
func (p *Playlist) Duration() float64 {
	var total float64
	for _, s := range p.Segments {
		total += s.Duration
	}
	return total
}
