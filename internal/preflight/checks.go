// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name    string // Name of the check
	Passed  bool   // Whether the check passed
	Warning bool   // True if it's a warning (non-fatal)
	Message string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(client *http.Client, streamURL, cacheDir, metricsAddr string) *Result {
	result := &Result{
		Checks: make([]Check, 0, 3),
		Passed: true,
	}

	cacheCheck := checkCacheDir(cacheDir)
	result.Checks = append(result.Checks, cacheCheck)
	if !cacheCheck.Passed {
		result.Passed = false
	}

	streamCheck := checkStream(client, streamURL)
	result.Checks = append(result.Checks, streamCheck)
	if !streamCheck.Passed {
		result.Passed = false
	}

	// Metrics address check (warning only: playback works without it)
	metricsCheck := checkMetricsAddr(metricsAddr)
	result.Checks = append(result.Checks, metricsCheck)

	return result
}

// checkCacheDir verifies the segment cache directory can be created and
// written to.
func checkCacheDir(dir string) Check {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{
			Name:    "cache_dir",
			Passed:  false,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}

	marker := filepath.Join(dir, ".preflight")
	if err := os.WriteFile(marker, []byte("ok"), 0o644); err != nil {
		return Check{
			Name:    "cache_dir",
			Passed:  false,
			Message: fmt.Sprintf("not writable: %v", err),
		}
	}
	os.Remove(marker)

	return Check{
		Name:    "cache_dir",
		Passed:  true,
		Message: dir,
	}
}

// checkStream verifies the stream URL answers an HTTP request.
func checkStream(client *http.Client, streamURL string) Check {
	resp, err := client.Get(streamURL)
	if err != nil {
		return Check{
			Name:    "stream",
			Passed:  false,
			Message: fmt.Sprintf("unreachable: %v", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Check{
			Name:    "stream",
			Passed:  false,
			Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, streamURL),
		}
	}

	return Check{
		Name:    "stream",
		Passed:  true,
		Message: fmt.Sprintf("reachable (HTTP %d)", resp.StatusCode),
	}
}

// checkMetricsAddr verifies the metrics listen address is bindable. The
// listener is closed immediately; the real server binds later.
func checkMetricsAddr(addr string) Check {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{
			Name:    "metrics_addr",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("cannot bind %s: %v", addr, err),
		}
	}
	ln.Close()

	return Check{
		Name:    "metrics_addr",
		Passed:  true,
		Message: addr,
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
	}
	fmt.Println()
}
