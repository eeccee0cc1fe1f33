package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// resolutionPresets maps the named capture modes to sensor output sizes.
var resolutionPresets = map[string][2]int{
	"MAX":   {4608, 2592},
	"QSXGA": {2560, 1920},
	"FHD":   {1920, 1080},
	"UXGA":  {1600, 1200},
	"VGA":   {640, 480},
}

// ResolutionSize returns the frame size for a named resolution preset.
func ResolutionSize(name string) (width, height int, ok bool) {
	size, ok := resolutionPresets[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, 0, false
	}
	return size[0], size[1], true
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDevice(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateExposure(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateOverflow(); err != nil {
		return err
	}
	if err := c.validateCollector(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDevice() error {
	if c.Device.ID == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("device.id is required. Edit %s (create with 'timelapse config init')", defaultPath)
	}
	if !deviceIDPattern.MatchString(c.Device.ID) {
		return fmt.Errorf("device.id %q may only contain letters, digits, '-' and '_'", c.Device.ID)
	}
	if !strings.HasPrefix(c.Server.URL, "http://") && !strings.HasPrefix(c.Server.URL, "https://") {
		return fmt.Errorf("server.url %q must start with http:// or https://", c.Server.URL)
	}
	return nil
}

func (c *Config) validateCapture() error {
	// Artifact names carry one-second timestamps; a shorter interval would
	// give two captures the same name.
	if c.Capture.IntervalSeconds < 1 {
		return errors.New("capture.interval_seconds must be at least 1")
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return errors.New("capture.jpeg_quality must be between 1 and 100")
	}
	if _, _, ok := ResolutionSize(c.Capture.Resolution); !ok {
		return fmt.Errorf("capture.resolution %q is not one of MAX, QSXGA, FHD, UXGA, VGA", c.Capture.Resolution)
	}
	if c.Capture.RotateDegrees%90 != 0 {
		return errors.New("capture.rotate_degrees must be a multiple of 90")
	}
	if c.Capture.AutofocusEvery <= 0 {
		return errors.New("capture.autofocus_every must be positive")
	}
	return nil
}

func (c *Config) validateExposure() error {
	e := c.Exposure
	if e.MinSeconds <= 0 {
		return errors.New("exposure.min_seconds must be positive")
	}
	if e.MaxSeconds < e.MinSeconds {
		return errors.New("exposure.max_seconds must be >= exposure.min_seconds")
	}
	if e.LowThreshold >= e.HighThreshold {
		return errors.New("exposure.low_threshold must be below exposure.high_threshold")
	}
	if e.Target <= 0 || e.Target > 255 {
		return errors.New("exposure.target must be between 0 and 255")
	}
	if e.Deadband < 0 {
		return errors.New("exposure.deadband must be >= 0")
	}
	if e.StepUp <= 0 || e.StepDown <= 0 || e.StepDown >= 1 {
		return errors.New("exposure.step_up must be positive and exposure.step_down must be in (0, 1)")
	}
	if e.WaitMultiplier <= 0 {
		return errors.New("exposure.wait_multiplier must be positive")
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if err := ensurePositiveMap(map[string]int{
		"delivery.queue_capacity":        c.Delivery.QueueCapacity,
		"delivery.workers":               c.Delivery.Workers,
		"delivery.live_attempts":         c.Delivery.LiveAttempts,
		"overflow.drain_attempts":        c.Overflow.DrainAttempts,
		"overflow.sweep_interval":        c.Overflow.SweepIntervalSeconds,
		"startup.check_interval_seconds": c.Startup.CheckIntervalSeconds,
	}); err != nil {
		return err
	}
	if c.Delivery.DegradedAttempts < 0 {
		return errors.New("delivery.degraded_attempts must be >= 0")
	}
	if c.Delivery.RetryDelaySeconds < 0 {
		return errors.New("delivery.retry_delay_seconds must be >= 0")
	}
	if c.Startup.NetworkWaitSeconds < 0 {
		return errors.New("startup.network_wait_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateOverflow() error {
	if c.Overflow.ReserveRatio < 0 || c.Overflow.ReserveRatio >= 1 {
		return errors.New("overflow.reserve_ratio must be in [0, 1)")
	}
	return nil
}

func (c *Config) validateCollector() error {
	seen := make(map[string]struct{}, len(c.Collector.Devices))
	for _, dev := range c.Collector.Devices {
		if !deviceIDPattern.MatchString(dev.ID) {
			return fmt.Errorf("collector.devices: invalid id %q", dev.ID)
		}
		if dev.Token == "" {
			return fmt.Errorf("collector.devices: device %q requires a token", dev.ID)
		}
		if _, dup := seen[dev.ID]; dup {
			return fmt.Errorf("collector.devices: duplicate id %q", dev.ID)
		}
		seen[dev.ID] = struct{}{}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
