package capture

import (
	"time"

	"timelapse/internal/config"
	"timelapse/internal/exposure"
)

// Settings are sampled from the live configuration at the start of each cycle.
type Settings struct {
	Interval   time.Duration
	Resolution string
	Format     Format
	Encoding   Encoding
	Exposure   exposure.Params
	ManualGain float64
}

// SettingsFromConfig derives producer settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	w, h, _ := config.ResolutionSize(cfg.Capture.Resolution)
	return Settings{
		Interval:   cfg.CaptureInterval(),
		Resolution: cfg.Capture.Resolution,
		Format:     Format{Width: w, Height: h},
		Encoding: Encoding{
			Quality:       cfg.Capture.JPEGQuality,
			RotateDegrees: cfg.Capture.RotateDegrees,
		},
		Exposure:   exposure.ParamsFromConfig(cfg.Exposure, cfg.Capture),
		ManualGain: cfg.Exposure.ManualGain,
	}
}

// LiveSettings samples a config.Live on every call.
func LiveSettings(live *config.Live) func() Settings {
	return func() Settings {
		return SettingsFromConfig(live.Current())
	}
}
