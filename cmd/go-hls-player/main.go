// Package main provides the go-hls-player CLI entry point.
//
// go-hls-player is an adaptive HLS (HTTP Live Streaming) playback client: it
// parses two-level manifests, estimates download bandwidth, buffers segments
// ahead of the play position, and switches variants to match throughput.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/k0kubun/pp/v3"

	"github.com/randomizedcoder/go-hls-player/internal/config"
	"github.com/randomizedcoder/go-hls-player/internal/logging"
	"github.com/randomizedcoder/go-hls-player/internal/m3u8"
	"github.com/randomizedcoder/go-hls-player/internal/metrics"
	"github.com/randomizedcoder/go-hls-player/internal/player"
	"github.com/randomizedcoder/go-hls-player/internal/preflight"
	"github.com/randomizedcoder/go-hls-player/internal/stats"
	"github.com/randomizedcoder/go-hls-player/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-hls-player
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-hls-player %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Initialize logger
	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled && !cfg.DumpManifest {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &userAgentTransport{
			userAgent: cfg.UserAgent,
			next:      http.DefaultTransport,
		},
	}

	// Handle --dump-manifest mode
	if cfg.DumpManifest {
		return dumpManifest(client, cfg.StreamURL)
	}

	quality, err := player.ParseQuality(cfg.Quality)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Preflight checks (headless only: the TUI owns the terminal)
	if !cfg.TUIEnabled {
		result := preflight.RunAll(client, cfg.StreamURL, cfg.CacheDir, cfg.MetricsAddr)
		preflight.PrintResults(result)
		if !result.Passed {
			fmt.Fprintln(os.Stderr, "Preflight checks failed")
			return 1
		}
	}

	logger.Info("starting",
		"version", version,
		"stream_url", cfg.StreamURL,
		"quality", quality.String(),
		"target_buffer", cfg.TargetBuffer,
		"min_buffer", cfg.MinBuffer,
		"metrics_addr", cfg.MetricsAddr,
	)

	// Metrics endpoint
	session := stats.NewSession()
	collector := metrics.NewCollector()
	server := metrics.NewServer(cfg.MetricsAddr, collector, logger)
	if err := server.Start(); err != nil {
		logger.Error("metrics_server_start_failed", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	completed := make(chan struct{}, 1)

	p := player.New(player.Deps{
		Client:    client,
		Reader:    player.NewWallClockReader(),
		Audio:     player.NopAudio{},
		Collector: collector,
		Session:   session,
		Logger:    logger,
		CacheRoot: cfg.CacheDir,

		TargetBuffer: cfg.TargetBuffer,
		MinBuffer:    cfg.MinBuffer,

		Callbacks: player.Callbacks{
			OnCompleted: func() {
				select {
				case completed <- struct{}{}:
				default:
				}
			},
		},
	})
	defer p.Close()

	p.SetPreferredQuality(quality)
	if cfg.Rate != 1.0 {
		p.SetRate(cfg.Rate)
	}
	if cfg.Volume != 1.0 {
		p.SetVolume(cfg.Volume)
	}

	p.PrepareToPlay(cfg.StreamURL)
	if cfg.StartAt > 0 {
		p.Seek(cfg.StartAt)
	}
	p.Play()

	if cfg.TUIEnabled {
		return runTUI(cfg, p, session)
	}
	return runHeadless(cfg, p, session, completed, logger)
}

// runTUI drives the bubbletea dashboard until the user quits.
func runTUI(cfg *config.Config, p *player.Player, session *stats.Session) int {
	model := tui.New(tui.Config{
		StreamURL:   cfg.StreamURL,
		MetricsAddr: cfg.MetricsAddr,
		Controller:  p,
		Session:     session,
	})

	program := tea.NewProgram(model, tea.WithAltScreen())

	if cfg.Duration > 0 {
		go func() {
			time.Sleep(cfg.Duration)
			tui.SendQuit(program)
		}()
	}

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}

	p.Stop()
	printSummary(session)
	return 0
}

// runHeadless plays without a dashboard until completion, a duration
// limit, or an interrupt signal.
func runHeadless(cfg *config.Config, p *player.Player, session *stats.Session, completed <-chan struct{}, logger *slog.Logger) int {
	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var limit <-chan time.Time
	if cfg.Duration > 0 {
		timer := time.NewTimer(cfg.Duration)
		defer timer.Stop()
		limit = timer.C
	}

	select {
	case <-ctx.Done():
		logger.Info("interrupted")
	case <-limit:
		logger.Info("duration_limit_reached", "duration", cfg.Duration)
	case <-completed:
		logger.Info("playback_completed")
	}

	p.Stop()
	printSummary(session)
	return 0
}

// dumpManifest fetches and parses the master manifest, pretty-prints the
// result, and exits.
func dumpManifest(client *http.Client, streamURL string) int {
	req, err := http.NewRequest(http.MethodGet, streamURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building request: %v\n", err)
		return 1
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching manifest: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Error fetching manifest: HTTP %d\n", resp.StatusCode)
		return 1
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading manifest: %v\n", err)
		return 1
	}

	manifest, err := m3u8.ParseManifest(body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing manifest: %v\n", err)
		return 1
	}

	pp.Println(manifest)
	return 0
}

// printBanner prints the startup banner for headless mode.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          go-hls-player                            ║")
	fmt.Println("║           Adaptive HLS Playback with Bandwidth Estimation         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Stream:      %s\n", cfg.StreamURL)
	fmt.Printf("  Quality:     %s\n", cfg.Quality)
	fmt.Printf("  Buffer:      %.0fs target / %.0fs minimum\n", cfg.TargetBuffer, cfg.MinBuffer)
	fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}

// printSummary writes the end-of-run session summary to stdout.
func printSummary(session *stats.Session) {
	fmt.Println()
	session.WriteSummary(os.Stdout)
}

// userAgentTransport stamps every outgoing request with the configured
// User-Agent header.
type userAgentTransport struct {
	userAgent string
	next      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.next.RoundTrip(req)
}
