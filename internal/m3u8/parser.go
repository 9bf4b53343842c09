package m3u8

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Parse errors. Callers match with errors.Is; everything format-related
// wraps ErrInvalidFormat with line context.
var (
	ErrInvalidEncoding = errors.New("m3u8: input is not valid UTF-8")
	ErrEmptyInput      = errors.New("m3u8: empty input")
	ErrInvalidFormat   = errors.New("m3u8: invalid format")
)

const (
	markerTag     = "#EXTM3U"
	streamInfoTag = "#EXT-X-STREAM-INF:"
	durationTag   = "#EXTINF:"
	byteRangeTag  = "#EXT-X-BYTERANGE:"
	mapTag        = "#EXT-X-MAP:"

	bandwidthKey  = "BANDWIDTH"
	resolutionKey = "RESOLUTION"
	uriKey        = "URI"
	byteRangeKey  = "BYTERANGE"
)

// ParseManifest parses a master manifest into an ordered variant list.
// For each stream-info tag the immediately following line is taken as the
// variant playlist locator; unknown attribute keys are ignored.
func ParseManifest(data []byte) (*Manifest, error) {
	lines, err := splitLines(data)
	if err != nil {
		return nil, err
	}

	var variants []VariantInfo
	skip := false
	for i, line := range lines {
		if skip {
			skip = false
			continue
		}

		if i == 0 {
			if !strings.HasPrefix(line, markerTag) {
				return nil, fmt.Errorf("%w: missing %s marker", ErrInvalidFormat, markerTag)
			}
			continue
		}

		if strings.HasPrefix(line, streamInfoTag) {
			if i+1 >= len(lines) {
				return nil, fmt.Errorf("%w: stream-info tag without locator line", ErrInvalidFormat)
			}
			info, err := parseStreamInfo(line, lines[i+1])
			if err != nil {
				return nil, err
			}
			variants = append(variants, info)
			skip = true
		}
	}

	return &Manifest{Variants: variants}, nil
}

// ParsePlaylist parses a variant playlist into its segment list. The
// resolution tier and declared bandwidth come from the manifest entry that
// referenced this playlist. Segment start times are the running total of all
// prior durations, so segments tile the timeline contiguously from zero.
func ParsePlaylist(data []byte, res Resolution, bandwidth float64) (*Playlist, error) {
	lines, err := splitLines(data)
	if err != nil {
		return nil, err
	}

	pl := &Playlist{
		Resolution: res,
		Bandwidth:  bandwidth,
	}

	var startTime float64
	skip := 0
	for i, line := range lines {
		if skip > 0 {
			skip--
			continue
		}

		if i == 0 {
			if !strings.HasPrefix(line, markerTag) {
				return nil, fmt.Errorf("%w: missing %s marker", ErrInvalidFormat, markerTag)
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, mapTag):
			if err := parseMapTag(line, pl); err != nil {
				return nil, err
			}

		case strings.HasPrefix(line, durationTag):
			raw := strings.TrimSuffix(strings.TrimPrefix(line, durationTag), ",")
			duration, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad segment duration %q", ErrInvalidFormat, raw)
			}
			if i+1 >= len(lines) {
				return nil, fmt.Errorf("%w: duration tag without locator line", ErrInvalidFormat)
			}

			seg := Segment{
				ID:         fmt.Sprintf("seg%05d", len(pl.Segments)),
				Duration:   duration,
				StartTime:  startTime,
				Resolution: res,
			}

			next := lines[i+1]
			if strings.HasPrefix(next, byteRangeTag) {
				r, err := parseByteRange(strings.TrimPrefix(next, byteRangeTag))
				if err != nil {
					return nil, err
				}
				if i+2 >= len(lines) {
					return nil, fmt.Errorf("%w: byte-range tag without locator line", ErrInvalidFormat)
				}
				seg.Range = &r
				seg.URI = lines[i+2]
				skip = 2
			} else {
				seg.URI = next
				skip = 1
			}

			pl.Segments = append(pl.Segments, seg)
			startTime += duration
		}
	}

	correctInitRange(pl)
	return pl, nil
}

// correctInitRange replaces the declared init-segment range end with the
// byte just before the first media segment's range start. The declared init
// length has been observed to be short on non-conformant origins; the true
// end is where the first media segment begins. Fragile by nature: revisit if
// origin behavior changes.
func correctInitRange(pl *Playlist) {
	if pl.InitRange == nil || len(pl.Segments) == 0 || pl.Segments[0].Range == nil {
		return
	}
	pl.InitRange = &ByteRange{
		Start: pl.InitRange.Start,
		End:   pl.Segments[0].Range.Start - 1,
	}
}

func parseStreamInfo(line, locator string) (VariantInfo, error) {
	info := VariantInfo{URI: locator}

	attrs := strings.TrimPrefix(line, streamInfoTag)
	for _, attr := range strings.Split(attrs, ",") {
		key, value, err := splitKeyValue(attr)
		if err != nil {
			return VariantInfo{}, err
		}

		switch key {
		case bandwidthKey:
			bw, err := strconv.ParseFloat(onlyDigits(value), 64)
			if err != nil {
				return VariantInfo{}, fmt.Errorf("%w: bad bandwidth %q", ErrInvalidFormat, value)
			}
			info.Bandwidth = bw
		case resolutionKey:
			parts := strings.Split(value, "x")
			if len(parts) != 2 {
				return VariantInfo{}, fmt.Errorf("%w: bad resolution %q", ErrInvalidFormat, value)
			}
			info.Resolution = resolutionForHeight(parts[1])
		}
	}

	return info, nil
}

func parseMapTag(line string, pl *Playlist) error {
	attrs := strings.TrimPrefix(line, mapTag)
	for _, attr := range strings.Split(attrs, ",") {
		switch {
		case strings.HasPrefix(attr, uriKey):
			_, value, err := splitKeyValue(attr)
			if err != nil {
				return err
			}
			pl.InitURI = strings.ReplaceAll(value, `"`, "")
		case strings.HasPrefix(attr, byteRangeKey):
			_, value, err := splitKeyValue(attr)
			if err != nil {
				return err
			}
			r, err := parseByteRange(strings.Trim(value, `"`))
			if err != nil {
				return err
			}
			pl.InitRange = &r
		}
	}
	return nil
}

// parseByteRange parses "length@start" into [start, start+length].
func parseByteRange(s string) (ByteRange, error) {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return ByteRange{}, fmt.Errorf("%w: bad byte range %q", ErrInvalidFormat, s)
	}
	length, err := strconv.ParseInt(onlyDigits(parts[0]), 10, 64)
	if err != nil {
		return ByteRange{}, fmt.Errorf("%w: bad byte range length %q", ErrInvalidFormat, parts[0])
	}
	start, err := strconv.ParseInt(onlyDigits(parts[1]), 10, 64)
	if err != nil {
		return ByteRange{}, fmt.Errorf("%w: bad byte range start %q", ErrInvalidFormat, parts[1])
	}
	return ByteRange{Start: start, End: start + length}, nil
}

func splitKeyValue(s string) (key, value string, err error) {
	parts := strings.SplitN(s, "=", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: bad attribute %q", ErrInvalidFormat, s)
	}
	return parts[0], parts[1], nil
}

func resolutionForHeight(h string) Resolution {
	switch h {
	case "240":
		return Resolution240
	case "360":
		return Resolution360
	case "480":
		return Resolution480
	case "720":
		return Resolution720
	case "1080":
		return Resolution1080
	default:
		return ResolutionUnsupported
	}
}

// onlyDigits strips everything but decimal digits, tolerating stray
// formatting in numeric attribute values.
func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// splitLines validates encoding and splits input into trimmed, non-empty
// lines.
func splitLines(data []byte) ([]string, error) {
	if !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, ErrEmptyInput
	}
	return lines, nil
}
