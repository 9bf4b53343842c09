package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-hls-player/internal/player"
	"github.com/randomizedcoder/go-hls-player/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to refresh the display.
type TickMsg time.Time

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Controller is the player control surface the dashboard drives.
type Controller interface {
	Status() player.Status
	Play()
	Pause()
	Seek(to float64)
	SetPreferredQuality(q player.Quality)
}

// Config holds TUI configuration.
type Config struct {
	StreamURL   string
	MetricsAddr string
	Controller  Controller
	Session     *stats.Session

	// Duration of the stream in seconds, when known. Zero hides the
	// completion percentage.
	Duration float64
}

// Model represents the TUI state.
type Model struct {
	streamURL   string
	metricsAddr string
	controller  Controller
	session     *stats.Session
	duration    float64

	status     player.Status
	startTime  time.Time
	lastUpdate time.Time

	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		streamURL:   cfg.StreamURL,
		metricsAddr: cfg.MetricsAddr,
		controller:  cfg.Controller,
		session:     cfg.Session,
		duration:    cfg.Duration,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.controller != nil {
			m.status = m.controller.Status()
		}
		if m.session != nil {
			m.session.Throughput.RecordSample()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case " ":
		if m.controller != nil {
			if m.status.State == player.StatePlaying {
				m.controller.Pause()
			} else {
				m.controller.Play()
			}
		}
		return m, nil

	case "left":
		if m.controller != nil {
			to := m.status.CurrentTime - 10
			if to < 0 {
				to = 0
			}
			m.controller.Seek(to)
		}
		return m, nil

	case "right":
		if m.controller != nil {
			m.controller.Seek(m.status.CurrentTime + 10)
		}
		return m, nil

	case "a":
		if m.controller != nil {
			m.controller.SetPreferredQuality(player.QualityAuto)
		}
		return m, nil

	case "1", "2", "3", "4", "5":
		if m.controller != nil {
			m.controller.SetPreferredQuality(qualityForKey(msg.String()))
		}
		return m, nil
	}

	return m, nil
}

// qualityForKey maps number keys onto quality tiers, lowest first.
func qualityForKey(key string) player.Quality {
	switch key {
	case "1":
		return player.Quality240
	case "2":
		return player.Quality360
	case "3":
		return player.Quality480
	case "4":
		return player.Quality720
	case "5":
		return player.Quality1080
	default:
		return player.QualityAuto
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.render()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatClock formats seconds on the media timeline as MM:SS or
// H:MM:SS.
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// formatBytes formats bytes with KB/MB/GB suffixes.
func formatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// formatBits formats a bits-per-second rate.
func formatBits(bps float64) string {
	if bps >= 1_000_000 {
		return fmt.Sprintf("%.2f Mbps", bps/1_000_000)
	}
	if bps >= 1_000 {
		return fmt.Sprintf("%.1f Kbps", bps/1_000)
	}
	return fmt.Sprintf("%.0f bps", bps)
}
