package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"timelapse/internal/artifact"
	"timelapse/internal/config"
)

func TestLoadDefaultConfigUsesEnvDeviceAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TIMELAPSE_DEVICE_ID", "07")
	t.Setenv("TIMELAPSE_DEVICE_TOKEN", "secret")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if cfg.Device.ID != "07" || cfg.Device.Token != "secret" {
		t.Fatalf("expected device identity from env, got %+v", cfg.Device)
	}

	wantOverflow := filepath.Join(tempHome, ".local", "share", "timelapse", "overflow")
	if cfg.Overflow.Dir != wantOverflow {
		t.Fatalf("unexpected overflow dir: got %q want %q", cfg.Overflow.Dir, wantOverflow)
	}
	if cfg.OverflowDir() != filepath.Join(wantOverflow, "07") {
		t.Fatalf("expected device scoped overflow dir, got %q", cfg.OverflowDir())
	}
	if cfg.Delivery.QueueCapacity != 100 || cfg.Delivery.Workers != 4 {
		t.Fatalf("unexpected delivery defaults: %+v", cfg.Delivery)
	}
	if cfg.Overflow.ReserveRatio != 0.05 {
		t.Fatalf("unexpected reserve ratio: %v", cfg.Overflow.ReserveRatio)
	}
	if cfg.RetryDelay() != 2*time.Second {
		t.Fatalf("unexpected retry delay: %v", cfg.RetryDelay())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Logging.Dir, cfg.OverflowDir(), filepath.Dir(cfg.Ledger.Path)} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "timelapse.toml")

	type payload struct {
		Device struct {
			ID    string `toml:"id"`
			Token string `toml:"token"`
		} `toml:"device"`
		Server struct {
			URL string `toml:"url"`
		} `toml:"server"`
		Capture struct {
			Resolution    string `toml:"resolution"`
			RotateDegrees int    `toml:"rotate_degrees"`
		} `toml:"capture"`
		Delivery struct {
			DegradedAttempts int `toml:"degraded_attempts"`
		} `toml:"delivery"`
		Overflow struct {
			Dir string `toml:"dir"`
		} `toml:"overflow"`
	}
	custom := payload{}
	custom.Device.ID = "12"
	custom.Device.Token = "abc123"
	custom.Server.URL = "https://collector.example.com/"
	custom.Capture.Resolution = "fhd"
	custom.Capture.RotateDegrees = -90
	custom.Delivery.DegradedAttempts = 0
	custom.Overflow.Dir = filepath.Join(tempDir, "spool")

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom path to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Server.URL != "https://collector.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Server.URL)
	}
	if cfg.Capture.Resolution != "FHD" {
		t.Fatalf("expected resolution uppercased, got %q", cfg.Capture.Resolution)
	}
	if cfg.Capture.RotateDegrees != 270 {
		t.Fatalf("expected rotation normalized to 270, got %d", cfg.Capture.RotateDegrees)
	}
	if cfg.Delivery.DegradedAttempts != 0 {
		t.Fatalf("expected explicit zero degraded attempts to survive, got %d", cfg.Delivery.DegradedAttempts)
	}
	if cfg.OverflowDir() != filepath.Join(tempDir, "spool", "12") {
		t.Fatalf("unexpected overflow dir: %q", cfg.OverflowDir())
	}
	if w, h, ok := config.ResolutionSize(cfg.Capture.Resolution); !ok || w != 1920 || h != 1080 {
		t.Fatalf("unexpected FHD size %dx%d ok=%v", w, h, ok)
	}
}

func TestEnvVarDoesNotOverrideConfiguredToken(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "timelapse.toml")
	contents := "[device]\nid = \"01\"\ntoken = \"from-file\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TIMELAPSE_DEVICE_TOKEN", "from-env")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Device.Token != "from-file" {
		t.Fatalf("expected file token to win, got %q", cfg.Device.Token)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_device_token_here") {
		t.Fatalf("sample config missing placeholder token: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Overflow.Dir, "timelapse") {
		t.Fatalf("expected overflow dir to contain timelapse, got %q", cfg.Overflow.Dir)
	}

	loaded, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config does not validate: %v", err)
	}
	if len(loaded.Collector.Devices) != 1 || loaded.Collector.Devices[0].ID != "01" {
		t.Fatalf("unexpected collector devices: %+v", loaded.Collector.Devices)
	}
}

func TestLiveReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timelapse.toml")
	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	write("[device]\nid = \"01\"\n[capture]\ninterval_seconds = 5.0\n")

	cfg, resolved, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	live := config.NewLive(cfg, resolved)

	write("[device]\nid = \"01\"\n[capture]\ninterval_seconds = 2.5\n")
	next, err := live.Reload()
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if next.Capture.IntervalSeconds != 2.5 || live.Current().CaptureInterval() != 2500*time.Millisecond {
		t.Fatalf("expected reloaded interval, got %v", live.Current().Capture.IntervalSeconds)
	}

	write("[capture]\njpeg_quality = 500\n")
	if _, err := live.Reload(); err == nil {
		t.Fatal("expected reload error for invalid config")
	}
	if live.Current().Capture.IntervalSeconds != 2.5 {
		t.Fatalf("expected previous config retained, got %v", live.Current().Capture.IntervalSeconds)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.Device.ID = "01"
		return cfg
	}

	base := valid()
	if err := base.Validate(); err != nil {
		t.Fatalf("expected defaults with device id to validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing device", func(c *config.Config) { c.Device.ID = "" }},
		{"device with slash", func(c *config.Config) { c.Device.ID = "a/b" }},
		{"bad url", func(c *config.Config) { c.Server.URL = "ftp://x" }},
		{"zero interval", func(c *config.Config) { c.Capture.IntervalSeconds = 0 }},
		{"sub-second interval", func(c *config.Config) { c.Capture.IntervalSeconds = 0.5 }},
		{"quality", func(c *config.Config) { c.Capture.JPEGQuality = 0 }},
		{"resolution", func(c *config.Config) { c.Capture.Resolution = "8K" }},
		{"rotation", func(c *config.Config) { c.Capture.RotateDegrees = 45 }},
		{"thresholds", func(c *config.Config) { c.Exposure.LowThreshold = c.Exposure.HighThreshold }},
		{"exposure bounds", func(c *config.Config) { c.Exposure.MaxSeconds = c.Exposure.MinSeconds / 2 }},
		{"step down", func(c *config.Config) { c.Exposure.StepDown = 1 }},
		{"workers", func(c *config.Config) { c.Delivery.Workers = 0 }},
		{"queue", func(c *config.Config) { c.Delivery.QueueCapacity = 0 }},
		{"degraded attempts", func(c *config.Config) { c.Delivery.DegradedAttempts = -1 }},
		{"reserve", func(c *config.Config) { c.Overflow.ReserveRatio = 1 }},
		{"drain attempts", func(c *config.Config) { c.Overflow.DrainAttempts = 0 }},
		{"collector token", func(c *config.Config) {
			c.Collector.Devices = []config.CollectorDevice{{ID: "01"}}
		}},
		{"collector duplicate", func(c *config.Config) {
			c.Collector.Devices = []config.CollectorDevice{{ID: "01", Token: "a"}, {ID: "01", Token: "b"}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateIntervalKeepsArtifactNamesUnique(t *testing.T) {
	cfg := config.Default()
	cfg.Device.ID = "01"

	cfg.Capture.IntervalSeconds = 1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected one second interval to validate: %v", err)
	}
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	if artifact.Name("01", start) == artifact.Name("01", start.Add(cfg.CaptureInterval())) {
		t.Fatalf("captures one interval apart share a name")
	}

	cfg.Capture.IntervalSeconds = 0.5
	if artifact.Name("01", start) != artifact.Name("01", start.Add(cfg.CaptureInterval())) {
		t.Fatalf("expected sub-second captures to collide on name")
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "interval_seconds") {
		t.Fatalf("expected interval_seconds rejection, got %v", err)
	}
}
