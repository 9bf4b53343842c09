package player

import (
	"fmt"
	"strings"

	"github.com/randomizedcoder/go-hls-player/internal/m3u8"
)

// Quality is a playback quality preference. QualityAuto lets the
// bandwidth estimate drive variant selection; a fixed tier pins
// selection to the variant with that resolution.
type Quality int

const (
	QualityAuto Quality = 0
	Quality240  Quality = 240
	Quality360  Quality = 360
	Quality480  Quality = 480
	Quality720  Quality = 720
	Quality1080 Quality = 1080
)

func (q Quality) String() string {
	if q == QualityAuto {
		return "auto"
	}
	return fmt.Sprintf("%dp", int(q))
}

// Resolution maps a fixed quality tier onto the parser's resolution
// enum. QualityAuto has no resolution.
func (q Quality) Resolution() m3u8.Resolution {
	switch q {
	case Quality240:
		return m3u8.Resolution240
	case Quality360:
		return m3u8.Resolution360
	case Quality480:
		return m3u8.Resolution480
	case Quality720:
		return m3u8.Resolution720
	case Quality1080:
		return m3u8.Resolution1080
	default:
		return m3u8.ResolutionUnsupported
	}
}

// QualityForResolution converts a parsed resolution tier back into a
// quality value. Unsupported tiers map to QualityAuto.
func QualityForResolution(r m3u8.Resolution) Quality {
	switch r {
	case m3u8.Resolution240, m3u8.Resolution360, m3u8.Resolution480,
		m3u8.Resolution720, m3u8.Resolution1080:
		return Quality(int(r))
	default:
		return QualityAuto
	}
}

// ParseQuality parses a user-supplied quality string such as "auto",
// "720" or "720p".
func ParseQuality(s string) (Quality, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "p") {
	case "auto", "":
		return QualityAuto, nil
	case "240":
		return Quality240, nil
	case "360":
		return Quality360, nil
	case "480":
		return Quality480, nil
	case "720":
		return Quality720, nil
	case "1080":
		return Quality1080, nil
	default:
		return QualityAuto, fmt.Errorf("player: unknown quality %q", s)
	}
}
