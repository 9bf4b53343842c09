// Package config provides configuration management for go-hls-player.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration options for the player.
type Config struct {
	// Playback
	StreamURL string  `json:"stream_url"`
	Quality   string  `json:"quality"` // auto, 240p, 360p, 480p, 720p, 1080p
	Rate      float64 `json:"rate"`
	Volume    float64 `json:"volume"`
	StartAt   float64 `json:"start_at"` // seconds into the stream

	// Buffering
	TargetBuffer float64 `json:"target_buffer"` // seconds, stop filling above
	MinBuffer    float64 `json:"min_buffer"`    // seconds, safe to start below

	// Network
	Timeout   time.Duration `json:"timeout"`
	UserAgent string        `json:"user_agent"`

	// Storage
	CacheDir string `json:"cache_dir"`

	// Observability
	MetricsAddr string `json:"metrics_addr"`
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text

	// Dashboard
	TUIEnabled bool `json:"tui"`

	// Diagnostic modes
	DumpManifest bool          `json:"dump_manifest"`
	Duration     time.Duration `json:"duration"` // 0 = run until completion
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Quality: "auto",
		Rate:    1.0,
		Volume:  1.0,

		TargetBuffer: 20,
		MinBuffer:    5,

		Timeout:   15 * time.Second,
		UserAgent: "go-hls-player/1.0",

		CacheDir: defaultCacheDir(),

		MetricsAddr: "0.0.0.0:17091",
		Verbose:     false,
		LogFormat:   "text",

		TUIEnabled: true,
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/go-hls-player"
	}
	return os.TempDir() + "/go-hls-player"
}

// LoadEnv applies environment overrides on top of the current values.
// A .env file in the working directory is honored when present.
func LoadEnv(cfg *Config) {
	// Missing .env is fine; real environment still applies.
	_ = godotenv.Load()

	if v := os.Getenv("HLS_PLAYER_URL"); v != "" {
		cfg.StreamURL = v
	}
	if v := os.Getenv("HLS_PLAYER_QUALITY"); v != "" {
		cfg.Quality = v
	}
	if v := os.Getenv("HLS_PLAYER_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("HLS_PLAYER_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("HLS_PLAYER_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("HLS_PLAYER_TARGET_BUFFER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TargetBuffer = f
		}
	}
	if v := os.Getenv("HLS_PLAYER_MIN_BUFFER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinBuffer = f
		}
	}
}
