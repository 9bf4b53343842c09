// Package tui provides a live terminal dashboard for playback.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss
// for styling. It shows playback state, position, buffer level,
// bandwidth estimate and session counters, and maps a few keys onto
// the player's control surface.
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Color Palette
// =============================================================================

// Colors based on a modern dark theme
var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red

	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Styles
// =============================================================================

var (
	baseStyle = lipgloss.NewStyle().
			Foreground(colorText)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	titleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true)

	statusPlaying = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusBuffering = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusIdle = lipgloss.NewStyle().
			Foreground(colorTextDim).
			Bold(true)

	statusPaused = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)
)

// =============================================================================
// Progress Bar
// =============================================================================

// renderBar renders a unicode progress bar of the given width filled to
// fraction (0.0 to 1.0).
func renderBar(fraction float64, width int) string {
	if width < 2 {
		width = 2
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	filled := int(fraction * float64(width))
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

// renderPercent renders a fraction as a percentage label.
func renderPercent(fraction float64) string {
	return fmt.Sprintf("%3.0f%%", fraction*100)
}
