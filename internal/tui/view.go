package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-hls-player/internal/player"
)

// render builds the full dashboard frame.
func (m Model) render() string {
	sections := []string{
		m.renderHeader(),
		m.renderPlayback(),
		m.renderBuffer(),
		m.renderNetwork(),
	}
	if m.session != nil {
		sections = append(sections, m.renderSession())
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Sections
// =============================================================================

func (m Model) renderHeader() string {
	title := titleStyle.Render("go-hls-player")
	url := mutedStyle.Render(truncate(m.streamURL, m.width-20))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", url)
}

func (m Model) renderPlayback() string {
	state := m.renderState()

	position := formatClock(m.status.CurrentTime)
	line := fmt.Sprintf("%s  %s", state, position)
	if m.duration > 0 {
		line += dimStyle.Render(" / " + formatClock(m.duration))
	}

	quality := m.status.PreferredQuality.String()
	line += "   " + mutedStyle.Render("quality: ") + baseStyle.Render(quality)

	if len(m.status.AvailableQualities) > 0 {
		var tiers []string
		for _, q := range m.status.AvailableQualities {
			tiers = append(tiers, q.String())
		}
		line += dimStyle.Render("  [" + strings.Join(tiers, " ") + "]")
	}

	content := line
	if m.duration > 0 {
		fraction := m.status.CurrentTime / m.duration
		barWidth := m.width - 12
		if barWidth > 60 {
			barWidth = 60
		}
		content = lipgloss.JoinVertical(lipgloss.Left,
			line,
			baseStyle.Render(renderBar(fraction, barWidth))+" "+mutedStyle.Render(renderPercent(fraction)),
		)
	}

	return boxStyle.Render(content)
}

func (m Model) renderState() string {
	switch m.status.State {
	case player.StatePlaying:
		return statusPlaying.Render("▶ playing")
	case player.StatePaused:
		return statusPaused.Render("⏸ paused")
	case player.StateWaitingForBuffer:
		return statusBuffering.Render("◌ buffering")
	default:
		return statusIdle.Render("■ idle")
	}
}

func (m Model) renderBuffer() string {
	header := sectionHeaderStyle.Render("Buffer")

	// Gauge scaled to the fill target.
	const target = 20.0
	fraction := m.status.BufferedDuration / target

	barWidth := m.width - 30
	if barWidth > 40 {
		barWidth = 40
	}

	gauge := fmt.Sprintf("%s %5.1fs ahead  (up to %s)",
		renderBar(fraction, barWidth),
		m.status.BufferedDuration,
		formatClock(m.status.BufferedUpTo),
	)

	return lipgloss.JoinVertical(lipgloss.Left, header, baseStyle.Render(gauge))
}

func (m Model) renderNetwork() string {
	header := sectionHeaderStyle.Render("Network")

	estimate := "measuring..."
	if m.status.BandwidthEstimate > 0 {
		estimate = formatBits(m.status.BandwidthEstimate)
	}

	lines := []string{
		header,
		baseStyle.Render("bandwidth estimate: ") + statusPlaying.Render(estimate),
	}

	if m.session != nil {
		r := m.session.Throughput.Rates()
		rates := fmt.Sprintf("download rate: %s/s (1s)   %s/s (30s)",
			formatBytes(int64(r.PerSecond)),
			formatBytes(int64(r.Smoothed)),
		)
		lines = append(lines, baseStyle.Render(rates))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderSession() string {
	header := sectionHeaderStyle.Render("Session")

	line1 := fmt.Sprintf("segments: %d   cache hits: %d   bytes: %s",
		m.session.SegmentRequests.Load(),
		m.session.CacheHits.Load(),
		formatBytes(m.session.BytesDownloaded.Load()),
	)
	line2 := fmt.Sprintf("switches: %d   rebuffers: %d   seeks: %d   failures: %d",
		m.session.VariantSwitches.Load(),
		m.session.Rebuffers.Load(),
		m.session.Seeks.Load(),
		m.session.DownloadFailures.Load(),
	)

	style := baseStyle
	if m.session.DownloadFailures.Load() > 0 {
		style = errorStyle
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		baseStyle.Render(line1),
		style.Render(line2),
	)
}

func (m Model) renderFooter() string {
	keys := "space play/pause · ←/→ seek 10s · a auto · 1-5 quality · q quit"
	footer := dimStyle.Render(keys)
	if m.metricsAddr != "" {
		footer += dimStyle.Render("   metrics: http://" + m.metricsAddr + "/metrics")
	}
	footer += dimStyle.Render("   up " + formatDuration(m.Elapsed()))
	return footer
}

// =============================================================================
// Helpers
// =============================================================================

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
