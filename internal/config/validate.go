package config

import (
	"errors"
	"fmt"
	"net/url"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.StreamURL == "" {
		errs = append(errs, ValidationError{
			Field:   "stream_url",
			Message: "HLS stream URL is required",
		})
	}

	if cfg.StreamURL != "" {
		if err := validateURL(cfg.StreamURL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "stream_url",
				Message: err.Error(),
			})
		}
	}

	validQualities := map[string]bool{
		"auto": true, "240p": true, "360p": true, "480p": true,
		"720p": true, "1080p": true,
	}
	if !validQualities[cfg.Quality] {
		errs = append(errs, ValidationError{
			Field:   "quality",
			Message: fmt.Sprintf("must be one of: auto, 240p, 360p, 480p, 720p, 1080p (got %q)", cfg.Quality),
		})
	}

	if cfg.Rate <= 0 {
		errs = append(errs, ValidationError{
			Field:   "rate",
			Message: "must be positive",
		})
	}

	if cfg.Volume < 0 || cfg.Volume > 1 {
		errs = append(errs, ValidationError{
			Field:   "volume",
			Message: "must be between 0.0 and 1.0",
		})
	}

	if cfg.StartAt < 0 {
		errs = append(errs, ValidationError{
			Field:   "start_at",
			Message: "must not be negative",
		})
	}

	if cfg.TargetBuffer <= 0 {
		errs = append(errs, ValidationError{
			Field:   "target_buffer",
			Message: "must be positive",
		})
	}
	if cfg.MinBuffer <= 0 {
		errs = append(errs, ValidationError{
			Field:   "min_buffer",
			Message: "must be positive",
		})
	}
	if cfg.MinBuffer > cfg.TargetBuffer {
		errs = append(errs, ValidationError{
			Field:   "min_buffer",
			Message: "must be <= target_buffer",
		})
	}

	if cfg.Timeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "timeout",
			Message: "must be positive",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateURL checks if the URL is valid and uses http or https.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must have a host")
	}

	return nil
}
