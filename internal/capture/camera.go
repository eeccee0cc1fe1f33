// Package capture runs the producer loop: it captures a frame, measures its
// brightness, feeds the exposure controller, and hands the JPEG to the relay
// queue without ever blocking on delivery.
//
// Camera access sits behind the Camera and Meter interfaces so the loop can be
// exercised without hardware; gocvcam provides the OpenCV-backed versions.
package capture

import (
	"context"

	"timelapse/internal/exposure"
)

// Format is the frame geometry requested from the device.
type Format struct {
	Width  int
	Height int
}

// Exposure is what the controller wants applied before the next frame.
type Exposure struct {
	Mode    exposure.Mode
	Seconds float64
	Gain    float64
}

// Encoding controls how a frame becomes a JPEG.
type Encoding struct {
	Quality       int
	RotateDegrees int
}

// Camera is a capture device. Implementations are used from one goroutine.
type Camera interface {
	// Configure (re)opens the device if needed and applies the frame format.
	Configure(ctx context.Context, format Format) error
	// Apply sets exposure mode, time, and gain. Auto re-enables continuous autofocus.
	Apply(exp Exposure) error
	// Autofocus runs a single focus cycle.
	Autofocus(ctx context.Context) error
	// Capture grabs one frame and returns it JPEG encoded.
	Capture(ctx context.Context, enc Encoding) ([]byte, error)
	Close() error
}

// Meter measures mean luma of an encoded frame.
type Meter interface {
	Brightness(jpeg []byte) (float64, error)
}
