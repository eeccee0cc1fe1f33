package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"timelapse/internal/artifact"
	"timelapse/internal/config"
	"timelapse/internal/logging"
	"timelapse/internal/overflow"
	"timelapse/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(homeDir, ".config", "timelapse", "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// seedOverflow saves n real JPEG captures into the overflow store, one
// second apart, and returns their names oldest first.
func seedOverflow(t *testing.T, cfg *config.Config, n int) []string {
	t.Helper()
	store, err := overflow.Open(overflow.Options{
		Dir:    cfg.OverflowDir(),
		Logger: logging.NewNop(),
		Usage: func(string) (overflow.Usage, error) {
			return overflow.Usage{Total: 1 << 30, Free: 1 << 29}, nil
		},
	})
	if err != nil {
		t.Fatalf("overflow.Open: %v", err)
	}
	base := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		created := base.Add(time.Duration(i) * time.Second)
		item := artifact.New(cfg.Device.ID, created, testsupport.JPEG(t, 100))
		if err := store.Save(context.Background(), item); err != nil {
			t.Fatalf("Save: %v", err)
		}
		path := filepath.Join(cfg.OverflowDir(), item.Name)
		if err := os.Chtimes(path, created, created); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		names = append(names, item.Name)
	}
	return names
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
