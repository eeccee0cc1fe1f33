// Package recovery redelivers captures from the overflow store once the
// collector is reachable again.
//
// The Sweeper polls the store's pending hint on an interval and also reacts to
// explicit triggers from the delivery pool. Every drain goes through the
// store's single-flight Drain; a completed drain returns the delivery state to
// normal. Startup performs the bounded network wait and the initial forced
// drain.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"timelapse/internal/artifact"
	"timelapse/internal/delivery"
	"timelapse/internal/ledger"
	"timelapse/internal/logging"
	"timelapse/internal/overflow"
)

// Prober checks collector reachability without uploading anything.
type Prober interface {
	Probe(ctx context.Context) error
}

// Options wires a Sweeper.
type Options struct {
	Store    *overflow.Store
	State    *delivery.State
	Uploader delivery.Uploader
	Prober   Prober
	// Policy bounds the attempts made for the oldest entry before a drain aborts.
	Policy        delivery.RetryPolicy
	Interval      time.Duration
	NetworkWait   time.Duration
	CheckInterval time.Duration
	Logger        *slog.Logger
	Sink          ledger.Sink
}

// Sweeper is the background redelivery loop.
type Sweeper struct {
	opts    Options
	logger  *slog.Logger
	sink    ledger.Sink
	trigger chan struct{}
}

// New validates options and returns a sweeper.
func New(opts Options) (*Sweeper, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("recovery sweeper: store is required")
	case opts.State == nil:
		return nil, errors.New("recovery sweeper: state is required")
	case opts.Uploader == nil:
		return nil, errors.New("recovery sweeper: uploader is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 5 * time.Second
	}
	sink := opts.Sink
	if sink == nil {
		sink = ledger.Discard
	}
	return &Sweeper{
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "recovery"),
		sink:    sink,
		trigger: make(chan struct{}, 1),
	}, nil
}

// Trigger requests a drain as soon as possible. It never blocks; requests
// made while one is already pending are coalesced.
func (s *Sweeper) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. A tick drains only when the store hints
// pending work; a trigger always drains.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.opts.Store.HasPending() {
				continue
			}
			s.Sweep(ctx)
		case <-s.trigger:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one drain and applies its outcome to the delivery state.
func (s *Sweeper) Sweep(ctx context.Context) overflow.DrainResult {
	started := time.Now()
	result := s.opts.Store.Drain(ctx, s.redeliver)
	switch result.Status {
	case overflow.DrainCompleted:
		s.logger.Info("overflow drained",
			logging.Int("delivered", result.Delivered),
			logging.Duration("elapsed", time.Since(started)),
			logging.String(logging.FieldEventType, "drain_completed"),
		)
		s.opts.State.Recover(fmt.Sprintf("overflow drained (%d redelivered)", result.Delivered))
	case overflow.DrainAborted:
		if ctx.Err() != nil {
			return result
		}
		logging.WarnWithContext(s.logger, "overflow drain aborted", "drain_aborted",
			logging.Artifact(result.Failed),
			logging.Int("delivered", result.Delivered),
			logging.Error(result.Err),
			logging.String(logging.FieldErrorHint, "collector unreachable or rejecting uploads"),
			logging.String(logging.FieldImpact, "remaining captures stay on disk until the next sweep"),
		)
	case overflow.DrainSkipped:
		s.logger.Debug("drain already running")
	}
	return result
}

func (s *Sweeper) redeliver(ctx context.Context, item artifact.Item) error {
	logger := logging.WithContext(ctx, s.logger)
	err := s.opts.Policy.Do(ctx, func(ctx context.Context, attempt int) error {
		err := s.opts.Uploader.Upload(ctx, item)
		if err != nil && ctx.Err() == nil {
			logger.Debug("redelivery attempt failed",
				logging.Int(logging.FieldAttempt, attempt),
				logging.Error(err),
			)
		}
		return err
	})
	if err != nil {
		return err
	}
	s.sink.Record(ctx, ledger.Event{Kind: ledger.KindDelivered, Artifact: item.Name, Bytes: item.Size(), Detail: "drain"})
	return nil
}
