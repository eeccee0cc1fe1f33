package testsupport

import (
	"path/filepath"
	"testing"

	"timelapse/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Delays are shortened so retry paths run quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Device.ID = "01"
	cfgVal.Device.Token = "test-token"
	cfgVal.Overflow.Dir = filepath.Join(base, "overflow")
	cfgVal.Logging.Dir = filepath.Join(base, "logs")
	cfgVal.Ledger.Path = filepath.Join(base, "ledger", "ledger.db")
	cfgVal.Collector.UploadDir = filepath.Join(base, "uploads")
	cfgVal.Collector.Bind = "127.0.0.1:0"
	cfgVal.Delivery.RetryDelaySeconds = 0.001
	cfgVal.Server.TimeoutSeconds = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithServerURL points the uploader at url.
func WithServerURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.URL = url
	}
}

// WithDevice overrides the device identity.
func WithDevice(id, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Device.ID = id
		b.cfg.Device.Token = token
	}
}

// WithCollectorDevice registers a device with the reference collector.
func WithCollectorDevice(id, token string, maxMB float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Collector.Devices = append(b.cfg.Collector.Devices, config.CollectorDevice{
			ID:            id,
			Token:         token,
			MaxFileSizeMB: maxMB,
		})
	}
}

// WithDelivery overrides pool sizing and attempt counts.
func WithDelivery(workers, live, degraded int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Delivery.Workers = workers
		b.cfg.Delivery.LiveAttempts = live
		b.cfg.Delivery.DegradedAttempts = degraded
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Overflow.Dir)
}
