package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Device identifies this capture unit to the collector.
type Device struct {
	ID    string `toml:"id"`
	Token string `toml:"token"`
}

// Server contains the collector endpoint settings.
type Server struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Capture contains camera and cadence settings. These values are sampled on
// every capture cycle and may change on reload.
type Capture struct {
	Device          string  `toml:"device"`
	IntervalSeconds float64 `toml:"interval_seconds"`
	JPEGQuality     int     `toml:"jpeg_quality"`
	Resolution      string  `toml:"resolution"`
	RotateDegrees   int     `toml:"rotate_degrees"`
	AutofocusEvery  int     `toml:"autofocus_every"`
	Hotplug         bool    `toml:"hotplug"`
}

// Exposure contains the closed-loop exposure controller tuning.
type Exposure struct {
	Target         float64 `toml:"target"`
	Deadband       float64 `toml:"deadband"`
	StepUp         float64 `toml:"step_up"`
	StepDown       float64 `toml:"step_down"`
	LowThreshold   float64 `toml:"low_threshold"`
	HighThreshold  float64 `toml:"high_threshold"`
	MinSeconds     float64 `toml:"min_seconds"`
	MaxSeconds     float64 `toml:"max_seconds"`
	ManualGain     float64 `toml:"manual_gain"`
	WaitMultiplier float64 `toml:"wait_multiplier"`
}

// Delivery contains relay queue and upload worker settings.
type Delivery struct {
	QueueCapacity     int     `toml:"queue_capacity"`
	Workers           int     `toml:"workers"`
	LiveAttempts      int     `toml:"live_attempts"`
	DegradedAttempts  int     `toml:"degraded_attempts"`
	RetryDelaySeconds float64 `toml:"retry_delay_seconds"`
}

// Overflow contains durable overflow store settings.
type Overflow struct {
	Dir                  string  `toml:"dir"`
	ReserveRatio         float64 `toml:"reserve_ratio"`
	DrainAttempts        int     `toml:"drain_attempts"`
	SweepIntervalSeconds int     `toml:"sweep_interval_seconds"`
}

// Startup contains the bounded network wait performed before the first drain.
type Startup struct {
	NetworkWaitSeconds   int `toml:"network_wait_seconds"`
	CheckIntervalSeconds int `toml:"check_interval_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	Dir           string `toml:"dir"`
	RetentionDays int    `toml:"retention_days"`
}

// Ledger contains configuration for the delivery event ledger.
type Ledger struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// CollectorDevice is one device accepted by the reference collector.
type CollectorDevice struct {
	ID            string  `toml:"id"`
	Token         string  `toml:"token"`
	MaxFileSizeMB float64 `toml:"max_file_size_mb"`
}

// Collector contains settings for the reference ingestion server.
type Collector struct {
	Bind      string            `toml:"bind"`
	UploadDir string            `toml:"upload_dir"`
	Devices   []CollectorDevice `toml:"devices"`
}

// Config encapsulates all configuration values for the timelapse daemon.
//
// Configuration sections by subsystem:
//   - Device/Server: identity and collector endpoint
//   - Capture/Exposure: camera cadence and exposure controller tuning
//   - Delivery: relay queue and upload worker pool
//   - Overflow/Startup: durable buffer and recovery behavior
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, directory, and retention
//   - Ledger: sqlite delivery event ledger
//   - Collector: reference ingestion server (collect command only)
type Config struct {
	Device        Device        `toml:"device"`
	Server        Server        `toml:"server"`
	Capture       Capture       `toml:"capture"`
	Exposure      Exposure      `toml:"exposure"`
	Delivery      Delivery      `toml:"delivery"`
	Overflow      Overflow      `toml:"overflow"`
	Startup       Startup       `toml:"startup"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Ledger        Ledger        `toml:"ledger"`
	Collector     Collector     `toml:"collector"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("timelapse.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Logging.Dir, c.OverflowDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Ledger.Enabled && strings.TrimSpace(c.Ledger.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(c.Ledger.Path), 0o755); err != nil {
			return fmt.Errorf("create ledger directory: %w", err)
		}
	}
	return nil
}

// OverflowDir returns the device-scoped overflow directory.
func (c *Config) OverflowDir() string {
	return filepath.Join(c.Overflow.Dir, c.Device.ID)
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Logging.Dir, "timelapse.lock")
}

// PIDPath returns where the running daemon records its process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Logging.Dir, "timelapse.pid")
}

// ServerTimeout returns the per-attempt upload timeout.
func (c *Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// RetryDelay returns the fixed delay between delivery attempts.
func (c *Config) RetryDelay() time.Duration {
	return seconds(c.Delivery.RetryDelaySeconds)
}

// SweepInterval returns the recovery sweeper poll interval.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Overflow.SweepIntervalSeconds) * time.Second
}

// CaptureInterval returns the configured inter-capture interval.
func (c *Config) CaptureInterval() time.Duration {
	return seconds(c.Capture.IntervalSeconds)
}

func seconds(value float64) time.Duration {
	return time.Duration(value * float64(time.Second))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
