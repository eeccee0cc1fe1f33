package preflight

import (
	"context"
	"strings"

	"timelapse/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Optional failures are reported as warnings.
	Optional bool
	Detail   string
}

// Prober checks collector reachability.
type Prober interface {
	Probe(ctx context.Context) error
}

// RunAll executes every applicable check for cfg. prober may be nil to skip
// the collector check.
func RunAll(ctx context.Context, cfg *config.Config, prober Prober) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Overflow directory", cfg.OverflowDir()),
		CheckDirectoryAccess("Log directory", cfg.Logging.Dir),
		CheckFreeSpace("Overflow reserve", cfg.OverflowDir(), cfg.Overflow.ReserveRatio),
		CheckCameraDevice(cfg.Capture.Device),
	}
	if prober != nil {
		results = append(results, CheckCollector(ctx, cfg.Server.URL, prober))
	}
	if strings.TrimSpace(cfg.Device.Token) == "" {
		results = append(results, Result{Name: "Device token", Detail: "device.token is empty; the collector will reject uploads"})
	}
	return results
}

// Failed reports whether any non-optional check failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}
