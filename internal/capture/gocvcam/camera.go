// Package gocvcam implements capture.Camera and capture.Meter with OpenCV
// through gocv. It is the only package in the module that needs cgo.
package gocvcam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gocv.io/x/gocv"

	"timelapse/internal/capture"
	"timelapse/internal/exposure"
	"timelapse/internal/logging"
)

// V4L2 control values as exposed through OpenCV's property interface.
const (
	v4l2AutoExposureManual   = 1
	v4l2AutoExposureAperture = 3
	// exposure_absolute is expressed in 100µs units.
	v4l2ExposureUnitsPerSecond = 10000
	// frames discarded after a settings change so the next read reflects it.
	settleFrames = 2
)

// Camera drives a V4L2 device through gocv.VideoCapture.
type Camera struct {
	device string
	logger *slog.Logger
	vc     *gocv.VideoCapture
	frame  gocv.Mat
}

// New returns an unopened camera for device, which may be a path such as
// /dev/video0 or a numeric index.
func New(device string, logger *slog.Logger) *Camera {
	return &Camera{
		device: strings.TrimSpace(device),
		logger: logging.NewComponentLogger(logger, "camera"),
		frame:  gocv.NewMat(),
	}
}

// Configure reopens the device and applies the frame size.
func (c *Camera) Configure(_ context.Context, format capture.Format) error {
	c.release()
	vc, err := c.open()
	if err != nil {
		return err
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("open %s: device not available", c.device)
	}
	vc.Set(gocv.VideoCaptureFOURCC, vc.ToCodec("MJPG"))
	vc.Set(gocv.VideoCaptureBufferSize, 1)
	if format.Width > 0 && format.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(format.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(format.Height))
	}
	c.vc = vc
	c.logger.Debug("video capture opened",
		logging.String("device", c.device),
		logging.Float64("width", vc.Get(gocv.VideoCaptureFrameWidth)),
		logging.Float64("height", vc.Get(gocv.VideoCaptureFrameHeight)),
	)
	return nil
}

func (c *Camera) open() (*gocv.VideoCapture, error) {
	if index, err := strconv.Atoi(c.device); err == nil {
		vc, err := gocv.OpenVideoCaptureWithAPI(index, gocv.VideoCaptureV4L2)
		if err != nil {
			return nil, fmt.Errorf("open camera %d: %w", index, err)
		}
		return vc, nil
	}
	vc, err := gocv.OpenVideoCaptureWithAPI(c.device, gocv.VideoCaptureV4L2)
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", c.device, err)
	}
	return vc, nil
}

// Apply sets the exposure controls. Auto hands exposure, gain, and focus back
// to the sensor.
func (c *Camera) Apply(exp capture.Exposure) error {
	if c.vc == nil {
		return errors.New("camera not configured")
	}
	if exp.Mode == exposure.Auto {
		c.vc.Set(gocv.VideoCaptureAutoExposure, v4l2AutoExposureAperture)
		c.vc.Set(gocv.VideoCaptureAutoFocus, 1)
		return nil
	}
	c.vc.Set(gocv.VideoCaptureAutoFocus, 0)
	c.vc.Set(gocv.VideoCaptureAutoExposure, v4l2AutoExposureManual)
	c.vc.Set(gocv.VideoCaptureExposure, exp.Seconds*v4l2ExposureUnitsPerSecond)
	c.vc.Set(gocv.VideoCaptureGain, exp.Gain)
	return nil
}

// Autofocus toggles continuous autofocus and lets a few frames pass so the
// lens settles.
func (c *Camera) Autofocus(ctx context.Context) error {
	if c.vc == nil {
		return errors.New("camera not configured")
	}
	c.vc.Set(gocv.VideoCaptureAutoFocus, 0)
	c.vc.Set(gocv.VideoCaptureAutoFocus, 1)
	for i := 0; i < settleFrames; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.vc.Grab(1)
	}
	return nil
}

// Capture reads the freshest frame, rotates it, and encodes it as JPEG.
func (c *Camera) Capture(ctx context.Context, enc capture.Encoding) ([]byte, error) {
	if c.vc == nil {
		return nil, errors.New("camera not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// drop the buffered frame taken before the current settings applied
	c.vc.Grab(1)
	if ok := c.vc.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, fmt.Errorf("read frame from %s", c.device)
	}

	img := c.frame
	if flag, ok := rotateFlag(enc.RotateDegrees); ok {
		rotated := gocv.NewMat()
		defer rotated.Close()
		gocv.Rotate(c.frame, &rotated, flag)
		img = rotated
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, enc.Quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// Close releases the device and frame buffer.
func (c *Camera) Close() error {
	c.release()
	return c.frame.Close()
}

func (c *Camera) release() {
	if c.vc != nil {
		if err := c.vc.Close(); err != nil {
			c.logger.Debug("video capture close failed", logging.Error(err))
		}
		c.vc = nil
	}
}

func rotateFlag(degrees int) (gocv.RotateFlag, bool) {
	switch ((degrees % 360) + 360) % 360 {
	case 90:
		return gocv.Rotate90Clockwise, true
	case 180:
		return gocv.Rotate180Clockwise, true
	case 270:
		return gocv.Rotate90CounterClockwise, true
	default:
		return 0, false
	}
}
