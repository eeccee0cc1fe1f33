package config

const (
	defaultConfigPath              = "~/.config/timelapse/config.toml"
	defaultServerURL               = "http://127.0.0.1:8080"
	defaultServerTimeoutSeconds    = 30
	defaultCaptureDevice           = "/dev/video0"
	defaultCaptureInterval         = 5.0
	defaultJPEGQuality             = 95
	defaultResolution              = "MAX"
	defaultAutofocusEvery          = 16
	defaultExposureTarget          = 64
	defaultExposureDeadband        = 24
	defaultExposureStepUp          = 0.9
	defaultExposureStepDown        = 0.3
	defaultExposureLowThreshold    = 48
	defaultExposureHighThreshold   = 155
	defaultExposureMinSeconds      = 0.25
	defaultExposureMaxSeconds      = 112.0
	defaultExposureManualGain      = 16.0
	defaultExposureWaitMultiplier  = 1.0
	defaultQueueCapacity           = 100
	defaultWorkers                 = 4
	defaultLiveAttempts            = 2
	defaultDegradedAttempts        = 1
	defaultRetryDelaySeconds       = 2.0
	defaultOverflowDir             = "~/.local/share/timelapse/overflow"
	defaultReserveRatio            = 0.05
	defaultDrainAttempts           = 3
	defaultSweepIntervalSeconds    = 10
	defaultNetworkWaitSeconds      = 120
	defaultNetworkCheckSeconds     = 5
	defaultNotifyTimeout           = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogDir                  = "~/.local/share/timelapse/logs"
	defaultLogRetentionDays        = 30
	defaultLedgerPath              = "~/.local/share/timelapse/ledger.db"
	defaultCollectorBind           = "0.0.0.0:8080"
	defaultCollectorUploadDir      = "~/.local/share/timelapse/uploads"
	defaultCollectorMaxFileSizeMiB = 1.0
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			URL:            defaultServerURL,
			TimeoutSeconds: defaultServerTimeoutSeconds,
		},
		Capture: Capture{
			Device:          defaultCaptureDevice,
			IntervalSeconds: defaultCaptureInterval,
			JPEGQuality:     defaultJPEGQuality,
			Resolution:      defaultResolution,
			AutofocusEvery:  defaultAutofocusEvery,
			Hotplug:         true,
		},
		Exposure: Exposure{
			Target:         defaultExposureTarget,
			Deadband:       defaultExposureDeadband,
			StepUp:         defaultExposureStepUp,
			StepDown:       defaultExposureStepDown,
			LowThreshold:   defaultExposureLowThreshold,
			HighThreshold:  defaultExposureHighThreshold,
			MinSeconds:     defaultExposureMinSeconds,
			MaxSeconds:     defaultExposureMaxSeconds,
			ManualGain:     defaultExposureManualGain,
			WaitMultiplier: defaultExposureWaitMultiplier,
		},
		Delivery: Delivery{
			QueueCapacity:     defaultQueueCapacity,
			Workers:           defaultWorkers,
			LiveAttempts:      defaultLiveAttempts,
			DegradedAttempts:  defaultDegradedAttempts,
			RetryDelaySeconds: defaultRetryDelaySeconds,
		},
		Overflow: Overflow{
			Dir:                  defaultOverflowDir,
			ReserveRatio:         defaultReserveRatio,
			DrainAttempts:        defaultDrainAttempts,
			SweepIntervalSeconds: defaultSweepIntervalSeconds,
		},
		Startup: Startup{
			NetworkWaitSeconds:   defaultNetworkWaitSeconds,
			CheckIntervalSeconds: defaultNetworkCheckSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			Dir:           defaultLogDir,
			RetentionDays: defaultLogRetentionDays,
		},
		Ledger: Ledger{
			Enabled: true,
			Path:    defaultLedgerPath,
		},
		Collector: Collector{
			Bind:      defaultCollectorBind,
			UploadDir: defaultCollectorUploadDir,
		},
	}
}
