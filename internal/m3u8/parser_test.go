package m3u8

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const masterManifest = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=200000,RESOLUTION=426x240
240/playlist.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=854x480
480/playlist.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1500000,RESOLUTION=1920x1080
https://cdn.example.com/1080/playlist.m3u8
`

func TestParseManifest(t *testing.T) {
	manifest, err := ParseManifest([]byte(masterManifest))
	require.NoError(t, err)
	require.Len(t, manifest.Variants, 3)

	assert.Equal(t, float64(200000), manifest.Variants[0].Bandwidth)
	assert.Equal(t, Resolution240, manifest.Variants[0].Resolution)
	assert.Equal(t, "240/playlist.m3u8", manifest.Variants[0].URI)

	assert.Equal(t, float64(800000), manifest.Variants[1].Bandwidth)
	assert.Equal(t, Resolution480, manifest.Variants[1].Resolution)

	assert.Equal(t, float64(1500000), manifest.Variants[2].Bandwidth)
	assert.Equal(t, Resolution1080, manifest.Variants[2].Resolution)
	assert.Equal(t, "https://cdn.example.com/1080/playlist.m3u8", manifest.Variants[2].URI)
}

func TestParseManifestUnknownKeysIgnored(t *testing.T) {
	manifest, err := ParseManifest([]byte(
		"#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=100,FRAME-RATE=30.0\nvariant.m3u8\n"))
	require.NoError(t, err)
	require.Len(t, manifest.Variants, 1)
	assert.Equal(t, float64(100), manifest.Variants[0].Bandwidth)
	assert.Equal(t, ResolutionUnsupported, manifest.Variants[0].Resolution)
}

func TestParseManifestTolerantBandwidth(t *testing.T) {
	// Stray formatting inside the numeric value is stripped before parsing.
	manifest, err := ParseManifest([]byte(
		"#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH= 1 500 000\nvariant.m3u8\n"))
	require.NoError(t, err)
	assert.Equal(t, float64(1500000), manifest.Variants[0].Bandwidth)
}

func TestParseManifestUnsupportedResolution(t *testing.T) {
	manifest, err := ParseManifest([]byte(
		"#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=100,RESOLUTION=3840x2160\nvariant.m3u8\n"))
	require.NoError(t, err)
	assert.Equal(t, ResolutionUnsupported, manifest.Variants[0].Resolution)
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"invalid utf8", []byte{0xff, 0xfe, 0xfd}, ErrInvalidEncoding},
		{"empty", []byte("\n\n"), ErrEmptyInput},
		{"missing marker", []byte("#EXT-X-STREAM-INF:BANDWIDTH=1\nv.m3u8\n"), ErrInvalidFormat},
		{"stream info at EOF", []byte("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1"), ErrInvalidFormat},
		{"bad bandwidth", []byte("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=abc\nv.m3u8\n"), ErrInvalidFormat},
		{"bad attribute", []byte("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH\nv.m3u8\n"), ErrInvalidFormat},
		{"bad resolution", []byte("#EXTM3U\n#EXT-X-STREAM-INF:RESOLUTION=1080\nv.m3u8\n"), ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest(tt.data)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

const simplePlaylist = `#EXTM3U
#EXTINF:4.0,
seg0.mp4
#EXTINF:4.0,
seg1.mp4
#EXTINF:2.5,
seg2.mp4
`

func TestParsePlaylistSimpleSegments(t *testing.T) {
	pl, err := ParsePlaylist([]byte(simplePlaylist), Resolution480, 800000)
	require.NoError(t, err)

	assert.Equal(t, Resolution480, pl.Resolution)
	assert.Equal(t, float64(800000), pl.Bandwidth)
	require.Len(t, pl.Segments, 3)

	for i, seg := range pl.Segments {
		assert.Nil(t, seg.Range, "segment %d should not be byte-range addressed", i)
		assert.Equal(t, Resolution480, seg.Resolution)
	}
	assert.Equal(t, "seg0.mp4", pl.Segments[0].URI)
	assert.Equal(t, "seg2.mp4", pl.Segments[2].URI)
	assert.Equal(t, 2.5, pl.Segments[2].Duration)
}

func TestParsePlaylistTimingInvariant(t *testing.T) {
	pl, err := ParsePlaylist([]byte(simplePlaylist), Resolution480, 800000)
	require.NoError(t, err)

	assert.Equal(t, float64(0), pl.Segments[0].StartTime)
	for i := 0; i+1 < len(pl.Segments); i++ {
		assert.Equal(t, pl.Segments[i].StartTime+pl.Segments[i].Duration,
			pl.Segments[i+1].StartTime, "segment %d start time", i+1)
	}
}

const byteRangePlaylist = `#EXTM3U
#EXT-X-MAP:URI="media.mp4",BYTERANGE="9999@0"
#EXTINF:4.0,
#EXT-X-BYTERANGE:512000@2048
media.mp4
#EXTINF:4.0,
#EXT-X-BYTERANGE:512000@514048
media.mp4
`

func TestParsePlaylistByteRangeSegments(t *testing.T) {
	pl, err := ParsePlaylist([]byte(byteRangePlaylist), Resolution720, 1200000)
	require.NoError(t, err)

	assert.Equal(t, "media.mp4", pl.InitURI)
	require.Len(t, pl.Segments, 2)

	seg := pl.Segments[0]
	require.NotNil(t, seg.Range)
	assert.Equal(t, int64(2048), seg.Range.Start)
	assert.Equal(t, int64(2048+512000), seg.Range.End)
	assert.Equal(t, "media.mp4", seg.URI)

	assert.Equal(t, float64(4), pl.Segments[1].StartTime)
}

func TestParsePlaylistInitRangeCorrection(t *testing.T) {
	// The declared init range end (9999) is replaced with the byte just
	// before the first media segment's range start.
	pl, err := ParsePlaylist([]byte(byteRangePlaylist), Resolution720, 1200000)
	require.NoError(t, err)

	require.NotNil(t, pl.InitRange)
	assert.Equal(t, int64(0), pl.InitRange.Start)
	assert.Equal(t, int64(2047), pl.InitRange.End)
}

func TestParsePlaylistNoCorrectionWithoutByteRangeSegments(t *testing.T) {
	data := `#EXTM3U
#EXT-X-MAP:URI="init.mp4",BYTERANGE="9999@0"
#EXTINF:4.0,
seg0.mp4
`
	pl, err := ParsePlaylist([]byte(data), Resolution360, 400000)
	require.NoError(t, err)

	require.NotNil(t, pl.InitRange)
	assert.Equal(t, int64(9999), pl.InitRange.End)
}

func TestParseByteRangeSyntax(t *testing.T) {
	r, err := parseByteRange("512000@1024")
	require.NoError(t, err)
	assert.Equal(t, int64(1024), r.Start)
	assert.Equal(t, int64(1024+512000), r.End)
}

func TestParsePlaylistSegmentIDsUnique(t *testing.T) {
	pl, err := ParsePlaylist([]byte(simplePlaylist), Resolution480, 800000)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, seg := range pl.Segments {
		assert.False(t, seen[seg.ID], "duplicate segment id %q", seg.ID)
		seen[seg.ID] = true
	}
}

func TestParsePlaylistErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"missing marker", "#EXTINF:4.0,\nseg.mp4\n", ErrInvalidFormat},
		{"bad duration", "#EXTM3U\n#EXTINF:abc,\nseg.mp4\n", ErrInvalidFormat},
		{"duration at EOF", "#EXTM3U\n#EXTINF:4.0,", ErrInvalidFormat},
		{"byte range at EOF", "#EXTM3U\n#EXTINF:4.0,\n#EXT-X-BYTERANGE:100@0", ErrInvalidFormat},
		{"bad byte range", "#EXTM3U\n#EXTINF:4.0,\n#EXT-X-BYTERANGE:100\nseg.mp4\n", ErrInvalidFormat},
		{"bad map attribute", "#EXTM3U\n#EXT-X-MAP:URI\n", ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlaylist([]byte(tt.data), Resolution480, 1)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestResolutionString(t *testing.T) {
	assert.Equal(t, "480p", Resolution480.String())
	assert.Equal(t, "unsupported", ResolutionUnsupported.String())
}
