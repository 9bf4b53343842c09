package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// ParseFlags parses command-line flags and returns a Config.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()
	LoadEnv(cfg)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `go-hls-player - adaptive HLS streaming client

Usage:
  go-hls-player [flags] <HLS_URL>

Playback:
`)
		printFlagCategory([]string{"quality", "rate", "volume", "start-at", "duration"})

		fmt.Fprintf(os.Stderr, "\nBuffering:\n")
		printFlagCategory([]string{"target-buffer", "min-buffer"})

		fmt.Fprintf(os.Stderr, "\nNetwork:\n")
		printFlagCategory([]string{"timeout", "user-agent"})

		fmt.Fprintf(os.Stderr, "\nStorage:\n")
		printFlagCategory([]string{"cache-dir"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory([]string{"metrics", "v", "log-format"})

		fmt.Fprintf(os.Stderr, "\nDashboard & Diagnostics:\n")
		printFlagCategory([]string{"tui", "dump-manifest"})

		fmt.Fprintf(os.Stderr, `
Environment:
  HLS_PLAYER_URL, HLS_PLAYER_QUALITY, HLS_PLAYER_CACHE_DIR,
  HLS_PLAYER_METRICS_ADDR, HLS_PLAYER_LOG_FORMAT,
  HLS_PLAYER_TARGET_BUFFER, HLS_PLAYER_MIN_BUFFER
  (a .env file in the working directory is honored)

Examples:
  # Play, adaptive quality, with the live dashboard
  go-hls-player https://test-streams.mux.dev/x36xhzz/x36xhzz.m3u8

  # Pin 720p, start one minute in, headless
  go-hls-player -quality 720p -start-at 60 -tui=false https://cdn.example.com/vod/master.m3u8

  # Inspect the parsed manifest without playing
  go-hls-player -dump-manifest https://cdn.example.com/vod/master.m3u8

`)
	}

	// Playback
	flag.StringVar(&cfg.Quality, "quality", cfg.Quality, `Quality tier: "auto", "240p".."1080p"`)
	flag.Float64Var(&cfg.Rate, "rate", cfg.Rate, "Playback rate (1.0 = realtime)")
	flag.Float64Var(&cfg.Volume, "volume", cfg.Volume, "Audio volume, 0.0 to 1.0")
	flag.Float64Var(&cfg.StartAt, "start-at", cfg.StartAt, "Seek to this position (seconds) before playing")
	flag.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Stop after this long (0 = play to completion)")

	// Buffering
	flag.Float64Var(&cfg.TargetBuffer, "target-buffer", cfg.TargetBuffer, "Stop fetching above this many buffered seconds")
	flag.Float64Var(&cfg.MinBuffer, "min-buffer", cfg.MinBuffer, "Start playback at this many buffered seconds")

	// Network
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	flag.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "HTTP User-Agent header")

	// Storage
	flag.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "Directory for per-session segment caches")

	// Observability
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)

	// Dashboard & Diagnostics
	flag.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard (use -tui=false to disable)")
	flag.BoolVar(&cfg.DumpManifest, "dump-manifest", cfg.DumpManifest, "Fetch and pretty-print the parsed manifest, then exit")

	flag.Parse()

	// Positional argument: stream URL
	args := flag.Args()
	if len(args) >= 1 {
		cfg.StreamURL = args[0]
	}

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(names []string) {
	flag.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(os.Stderr, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(os.Stderr, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
