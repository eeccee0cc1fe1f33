// Package exposure implements the closed-loop exposure controller that picks
// capture parameters frame to frame.
//
// The controller has two modes. In Auto the sensor's own auto-exposure runs
// and the controller only schedules periodic refocus. A frame darker than the
// low threshold switches to Manual, where exposure time is steered towards the
// target brightness with asymmetric slew limits. Manual returns to Auto only
// once the scene is brighter than the high threshold at minimum exposure, so
// brightness between the two thresholds never causes a mode change.
package exposure

import (
	"math"
	"time"

	"timelapse/internal/config"
)

// Mode is the controller's exposure mode.
type Mode int

const (
	// Auto leaves exposure and gain to the sensor.
	Auto Mode = iota
	// Manual fixes exposure time and gain.
	Manual
)

func (m Mode) String() string {
	if m == Manual {
		return "manual"
	}
	return "auto"
}

// Params tunes the controller. Brightness values are mean 8-bit luma.
type Params struct {
	Target         float64
	Deadband       float64
	StepUp         float64
	StepDown       float64
	LowThreshold   float64
	HighThreshold  float64
	MinSeconds     float64
	MaxSeconds     float64
	WaitMultiplier float64
	AutofocusEvery int
}

// ParamsFromConfig maps configuration sections onto controller parameters.
func ParamsFromConfig(exp config.Exposure, capture config.Capture) Params {
	return Params{
		Target:         exp.Target,
		Deadband:       exp.Deadband,
		StepUp:         exp.StepUp,
		StepDown:       exp.StepDown,
		LowThreshold:   exp.LowThreshold,
		HighThreshold:  exp.HighThreshold,
		MinSeconds:     exp.MinSeconds,
		MaxSeconds:     exp.MaxSeconds,
		WaitMultiplier: exp.WaitMultiplier,
		AutofocusEvery: capture.AutofocusEvery,
	}
}

// State is a snapshot of the controller.
type State struct {
	Mode                 Mode
	ExposureSeconds      float64
	FramesSinceAutofocus int
}

// Decision is the outcome of observing one frame.
type Decision struct {
	State
	// Refocus asks the camera to run an autofocus cycle before the next frame.
	Refocus bool
	// ModeChanged is set when this observation switched modes.
	ModeChanged bool
}

// Controller holds exposure state. It is owned by the producer goroutine and
// is not safe for concurrent use.
type Controller struct {
	params Params
	state  State
}

// NewController returns a controller in Auto mode at minimum exposure.
func NewController(params Params) *Controller {
	c := &Controller{params: params}
	c.Reset()
	return c
}

// SetParams swaps tuning parameters without resetting state. Exposure is
// re-clamped into the new bounds.
func (c *Controller) SetParams(params Params) {
	c.params = params
	c.state.ExposureSeconds = c.clamp(c.state.ExposureSeconds)
}

// Reset returns to Auto at minimum exposure. Called when the capture device
// is reconfigured.
func (c *Controller) Reset() {
	c.state = State{Mode: Auto, ExposureSeconds: c.params.MinSeconds}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Wait returns how long a cycle must last: the interval in Auto, and at least
// the exposure time scaled by the wait multiplier in Manual.
func (c *Controller) Wait(interval time.Duration) time.Duration {
	if c.state.Mode != Manual {
		return interval
	}
	exposure := time.Duration(c.state.ExposureSeconds * c.params.WaitMultiplier * float64(time.Second))
	if exposure > interval {
		return exposure
	}
	return interval
}

// Observe feeds the measured brightness of the frame just captured and
// returns the settings for the next one.
func (c *Controller) Observe(brightness float64) Decision {
	d := Decision{}
	switch c.state.Mode {
	case Auto:
		c.state.FramesSinceAutofocus++
		if c.params.AutofocusEvery > 0 && c.state.FramesSinceAutofocus >= c.params.AutofocusEvery {
			d.Refocus = true
			c.state.FramesSinceAutofocus = 0
		}
		if brightness < c.params.LowThreshold {
			c.state.Mode = Manual
			c.state.ExposureSeconds = c.params.MinSeconds
			d.ModeChanged = true
		}
	case Manual:
		if brightness > c.params.HighThreshold && c.state.ExposureSeconds <= c.params.MinSeconds {
			c.state.Mode = Auto
			c.state.ExposureSeconds = c.params.MinSeconds
			c.state.FramesSinceAutofocus = 0
			d.ModeChanged = true
			d.Refocus = true
			break
		}
		c.state.ExposureSeconds = c.adjust(c.state.ExposureSeconds, brightness)
	}
	d.State = c.state
	return d
}

func (c *Controller) adjust(current, brightness float64) float64 {
	if math.Abs(brightness-c.params.Target) < c.params.Deadband {
		return current
	}
	desired := current * c.params.Target / math.Max(brightness, 1)
	delta := desired - current
	if delta > 0 {
		delta = math.Min(delta, current*c.params.StepUp)
	} else {
		delta = math.Max(delta, -current*c.params.StepDown)
	}
	return c.clamp(current + delta)
}

func (c *Controller) clamp(v float64) float64 {
	return math.Max(c.params.MinSeconds, math.Min(c.params.MaxSeconds, v))
}
