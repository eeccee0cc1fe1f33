package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDevice()
	c.normalizeServer()
	c.normalizeCapture()
	c.normalizeCollector()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Overflow.Dir) == "" {
		c.Overflow.Dir = defaultOverflowDir
	}
	if c.Overflow.Dir, err = expandPath(c.Overflow.Dir); err != nil {
		return fmt.Errorf("overflow.dir: %w", err)
	}
	if strings.TrimSpace(c.Logging.Dir) == "" {
		c.Logging.Dir = defaultLogDir
	}
	if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	if strings.TrimSpace(c.Ledger.Path) == "" {
		c.Ledger.Path = defaultLedgerPath
	}
	if c.Ledger.Path, err = expandPath(c.Ledger.Path); err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	if strings.TrimSpace(c.Collector.UploadDir) == "" {
		c.Collector.UploadDir = defaultCollectorUploadDir
	}
	if c.Collector.UploadDir, err = expandPath(c.Collector.UploadDir); err != nil {
		return fmt.Errorf("collector.upload_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDevice() {
	c.Device.ID = strings.TrimSpace(c.Device.ID)
	c.Device.Token = strings.TrimSpace(c.Device.Token)
	if c.Device.ID == "" {
		if value, ok := os.LookupEnv("TIMELAPSE_DEVICE_ID"); ok {
			c.Device.ID = strings.TrimSpace(value)
		}
	}
	if c.Device.Token == "" {
		if value, ok := os.LookupEnv("TIMELAPSE_DEVICE_TOKEN"); ok {
			c.Device.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeServer() {
	c.Server.URL = strings.TrimRight(strings.TrimSpace(c.Server.URL), "/")
	if c.Server.URL == "" {
		c.Server.URL = defaultServerURL
	}
	if c.Server.TimeoutSeconds <= 0 {
		c.Server.TimeoutSeconds = defaultServerTimeoutSeconds
	}
}

func (c *Config) normalizeCapture() {
	c.Capture.Device = strings.TrimSpace(c.Capture.Device)
	if c.Capture.Device == "" {
		c.Capture.Device = defaultCaptureDevice
	}
	c.Capture.Resolution = strings.ToUpper(strings.TrimSpace(c.Capture.Resolution))
	if c.Capture.Resolution == "" {
		c.Capture.Resolution = defaultResolution
	}
	c.Capture.RotateDegrees = ((c.Capture.RotateDegrees % 360) + 360) % 360
}

func (c *Config) normalizeCollector() {
	c.Collector.Bind = strings.TrimSpace(c.Collector.Bind)
	if c.Collector.Bind == "" {
		c.Collector.Bind = defaultCollectorBind
	}
	for i := range c.Collector.Devices {
		dev := &c.Collector.Devices[i]
		dev.ID = strings.TrimSpace(dev.ID)
		dev.Token = strings.TrimSpace(dev.Token)
		if dev.MaxFileSizeMB <= 0 {
			dev.MaxFileSizeMB = defaultCollectorMaxFileSizeMiB
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
