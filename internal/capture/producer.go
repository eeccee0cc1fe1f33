package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"timelapse/internal/artifact"
	"timelapse/internal/exposure"
	"timelapse/internal/ledger"
	"timelapse/internal/logging"
	"timelapse/internal/relay"
)

const (
	errorBackoff = 2 * time.Second
	minSleep     = 100 * time.Millisecond
)

// Options wires a Producer.
type Options struct {
	DeviceID string
	Camera   Camera
	Meter    Meter
	Queue    *relay.Queue
	Settings func() Settings
	Logger   *slog.Logger
	Sink     ledger.Sink
	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Producer is the single capture goroutine. It owns the exposure controller.
type Producer struct {
	opts       Options
	logger     *slog.Logger
	sink       ledger.Sink
	controller *exposure.Controller

	active      string
	configured  bool
	reconfigure atomic.Bool
	captured    atomic.Int64
	dropped     atomic.Int64
}

// NewProducer validates options and returns a producer.
func NewProducer(opts Options) (*Producer, error) {
	switch {
	case opts.DeviceID == "":
		return nil, errors.New("capture producer: device id is required")
	case opts.Camera == nil:
		return nil, errors.New("capture producer: camera is required")
	case opts.Meter == nil:
		return nil, errors.New("capture producer: meter is required")
	case opts.Queue == nil:
		return nil, errors.New("capture producer: queue is required")
	case opts.Settings == nil:
		return nil, errors.New("capture producer: settings source is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	sink := opts.Sink
	if sink == nil {
		sink = ledger.Discard
	}
	return &Producer{
		opts:       opts,
		logger:     logging.NewComponentLogger(opts.Logger, "capture"),
		sink:       sink,
		controller: exposure.NewController(opts.Settings().Exposure),
	}, nil
}

// RequestReconfigure makes the next cycle reopen and reconfigure the camera.
// Safe to call from any goroutine.
func (p *Producer) RequestReconfigure() {
	p.reconfigure.Store(true)
}

// Counts reports captures enqueued and dropped since start.
func (p *Producer) Counts() (captured, dropped int64) {
	return p.captured.Load(), p.dropped.Load()
}

// Exposure returns the controller state. Only meaningful from the producer
// goroutine or after Run returns.
func (p *Producer) Exposure() exposure.State {
	return p.controller.State()
}

// Run captures until ctx is cancelled. Each cycle captures first and then
// sleeps out the rest of its wait, so the first frame after a start follows
// immediately. Capture errors are logged and retried after a short backoff;
// they never end the loop.
func (p *Producer) Run(ctx context.Context) error {
	defer func() {
		if err := p.opts.Camera.Close(); err != nil {
			p.logger.Debug("camera close failed", logging.Error(err))
		}
	}()
	for {
		started := p.opts.Now()
		settings := p.opts.Settings()
		wait, err := p.cycle(ctx, settings)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logging.WarnWithContext(p.logger, "capture cycle failed", "capture_failed",
				logging.Error(err),
				logging.Duration("backoff", errorBackoff),
				logging.String(logging.FieldErrorHint, "check camera connection and capture.device"),
				logging.String(logging.FieldImpact, "capture skipped"),
			)
			if err := p.opts.Sleep(ctx, errorBackoff); err != nil {
				return nil
			}
			continue
		}
		remaining := max(wait-p.opts.Now().Sub(started), minSleep)
		if err := p.opts.Sleep(ctx, remaining); err != nil {
			return nil
		}
	}
}

func (p *Producer) cycle(ctx context.Context, s Settings) (time.Duration, error) {
	p.controller.SetParams(s.Exposure)

	if !p.configured || s.Resolution != p.active || p.reconfigure.Swap(false) {
		if err := p.configure(ctx, s); err != nil {
			p.configured = false
			return 0, err
		}
	}

	payload, err := p.opts.Camera.Capture(ctx, s.Encoding)
	if err != nil {
		p.configured = false
		return 0, fmt.Errorf("capture frame: %w", err)
	}
	item := artifact.New(p.opts.DeviceID, p.opts.Now(), payload)
	p.enqueue(ctx, item)

	brightness, err := p.opts.Meter.Brightness(payload)
	if err != nil {
		p.logger.Debug("brightness measurement failed; assuming target", logging.Error(err))
		brightness = s.Exposure.Target
	}
	decision := p.controller.Observe(brightness)
	if decision.ModeChanged {
		p.logger.Info("exposure mode changed",
			logging.String("mode", decision.Mode.String()),
			logging.Float64("brightness", brightness),
			logging.Float64("exposure_seconds", decision.ExposureSeconds),
			logging.String(logging.FieldEventType, "exposure_mode_changed"),
		)
	}
	if decision.Mode == exposure.Manual || decision.ModeChanged {
		if err := p.opts.Camera.Apply(p.exposureFor(decision.State, s)); err != nil {
			return 0, fmt.Errorf("apply exposure: %w", err)
		}
	}
	if decision.Refocus {
		if err := p.opts.Camera.Autofocus(ctx); err != nil {
			p.logger.Debug("autofocus failed", logging.Error(err))
		}
	}
	p.logger.Debug("frame captured",
		logging.Artifact(item.Name),
		logging.Float64("brightness", brightness),
		logging.String("mode", decision.Mode.String()),
		logging.Float64("exposure_seconds", decision.ExposureSeconds),
	)
	return p.controller.Wait(s.Interval), nil
}

func (p *Producer) configure(ctx context.Context, s Settings) error {
	if err := p.opts.Camera.Configure(ctx, s.Format); err != nil {
		return fmt.Errorf("configure camera: %w", err)
	}
	p.controller.Reset()
	if err := p.opts.Camera.Apply(p.exposureFor(p.controller.State(), s)); err != nil {
		return fmt.Errorf("apply exposure: %w", err)
	}
	if err := p.opts.Camera.Autofocus(ctx); err != nil {
		p.logger.Debug("autofocus after configure failed", logging.Error(err))
	}
	p.active = s.Resolution
	p.configured = true
	p.logger.Info("camera configured",
		logging.String("resolution", s.Resolution),
		logging.Int("width", s.Format.Width),
		logging.Int("height", s.Format.Height),
		logging.String(logging.FieldEventType, "camera_configured"),
	)
	return nil
}

func (p *Producer) exposureFor(st exposure.State, s Settings) Exposure {
	return Exposure{Mode: st.Mode, Seconds: st.ExposureSeconds, Gain: s.ManualGain}
}

func (p *Producer) enqueue(ctx context.Context, item artifact.Item) {
	if !p.opts.Queue.TryEnqueue(item) {
		p.dropped.Add(1)
		logging.WarnWithContext(p.logger, "relay queue full; capture dropped", "queue_overflow",
			logging.Artifact(item.Name),
			logging.Int("capacity", p.opts.Queue.Cap()),
			logging.String(logging.FieldErrorHint, "uploads are falling behind; raise delivery.workers or queue_capacity"),
			logging.String(logging.FieldImpact, "capture permanently lost"),
		)
		p.sink.Record(ctx, ledger.Event{Kind: ledger.KindDropped, Artifact: item.Name, Bytes: item.Size(), Detail: "queue full"})
		return
	}
	p.captured.Add(1)
	p.sink.Record(ctx, ledger.Event{Kind: ledger.KindCaptured, Artifact: item.Name, Bytes: item.Size()})
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
