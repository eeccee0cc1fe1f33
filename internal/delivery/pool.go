package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"timelapse/internal/artifact"
	"timelapse/internal/ledger"
	"timelapse/internal/logging"
	"timelapse/internal/relay"
)

// Uploader delivers one item to the collector in a single attempt.
type Uploader interface {
	Upload(ctx context.Context, item artifact.Item) error
}

// Persister stores an undeliverable item durably.
type Persister interface {
	Save(ctx context.Context, item artifact.Item) error
}

// Trigger asks the recovery sweeper to drain now.
type Trigger interface {
	Trigger()
}

// Outcome is what happened to one item.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomePersisted
	OutcomeLost
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomePersisted:
		return "persisted"
	default:
		return "lost"
	}
}

// PoolOptions wires a Pool.
type PoolOptions struct {
	Workers  int
	Queue    *relay.Queue
	Uploader Uploader
	Store    Persister
	State    *State
	// Live applies in normal mode; Degraded bounds the probe made per item
	// while degraded (Attempts may be 0).
	Live     RetryPolicy
	Degraded RetryPolicy
	Sweeper  Trigger
	Logger   *slog.Logger
	Sink     ledger.Sink
}

// Pool is the fixed-size set of upload workers.
type Pool struct {
	opts   PoolOptions
	logger *slog.Logger
	sink   ledger.Sink
}

// NewPool validates options and returns a pool ready to Run.
func NewPool(opts PoolOptions) (*Pool, error) {
	switch {
	case opts.Queue == nil:
		return nil, errors.New("delivery pool: queue is required")
	case opts.Uploader == nil:
		return nil, errors.New("delivery pool: uploader is required")
	case opts.Store == nil:
		return nil, errors.New("delivery pool: store is required")
	case opts.State == nil:
		return nil, errors.New("delivery pool: state is required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	sink := opts.Sink
	if sink == nil {
		sink = ledger.Discard
	}
	return &Pool{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "delivery"),
		sink:   sink,
	}, nil
}

// Run starts the workers and blocks until ctx is cancelled. Once the workers
// stop it waits for producerDone (nil means no producer) so a capture enqueued
// during shutdown is not missed. On return every item still queued, or
// interrupted mid-upload, has been handed to the store.
func (p *Pool) Run(ctx context.Context, producerDone <-chan struct{}) error {
	var wg sync.WaitGroup
	for i := 1; i <= p.opts.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}
	wg.Wait()
	if producerDone != nil {
		<-producerDone
	}

	rest := p.opts.Queue.Remaining()
	if len(rest) > 0 {
		p.logger.Info("persisting queued captures on shutdown",
			logging.Int("count", len(rest)),
			logging.String(logging.FieldEventType, "shutdown_persist"),
		)
	}
	shutdownCtx := context.WithoutCancel(ctx)
	for _, item := range rest {
		p.persist(shutdownCtx, item, "shutdown")
	}
	return nil
}

func (p *Pool) work(ctx context.Context, id int) {
	logger := p.logger.With(logging.Int(logging.FieldWorker, id))
	for {
		item, err := p.opts.Queue.Dequeue(ctx)
		if err != nil {
			return
		}
		p.process(ctx, logger, item)
	}
}

// Process delivers or persists a single item according to the current mode.
func (p *Pool) Process(ctx context.Context, item artifact.Item) Outcome {
	return p.process(ctx, p.logger, item)
}

func (p *Pool) process(ctx context.Context, logger *slog.Logger, item artifact.Item) Outcome {
	ctx = logging.WithArtifact(ctx, item.Name)
	logger = logging.WithContext(ctx, logger)

	if p.opts.State.Degraded() {
		err := p.opts.Degraded.Do(ctx, p.attempt(logger, slog.LevelDebug, item))
		if err == nil {
			p.delivered(ctx, logger, item, "probe")
			p.opts.State.Recover("degraded probe delivered " + item.Name)
			if p.opts.Sweeper != nil {
				p.opts.Sweeper.Trigger()
			}
			return OutcomeDelivered
		}
		return p.persist(context.WithoutCancel(ctx), item, "degraded")
	}

	err := p.opts.Live.Do(ctx, p.attempt(logger, slog.LevelWarn, item))
	if err == nil {
		p.delivered(ctx, logger, item, "live")
		return OutcomeDelivered
	}
	if ctx.Err() != nil {
		// Shutdown interrupted the upload; keep the item without judging the network.
		return p.persist(context.WithoutCancel(ctx), item, "shutdown")
	}
	outcome := p.persist(ctx, item, "live attempts exhausted")
	p.opts.State.Enter(fmt.Sprintf("live delivery of %s failed: %v", item.Name, err))
	return outcome
}

func (p *Pool) attempt(logger *slog.Logger, failLevel slog.Level, item artifact.Item) func(context.Context, int) error {
	return func(ctx context.Context, attempt int) error {
		err := p.opts.Uploader.Upload(ctx, item)
		if err != nil && ctx.Err() == nil {
			logger.Log(ctx, failLevel, "upload attempt failed",
				logging.Int(logging.FieldAttempt, attempt),
				logging.Error(err),
				logging.String(logging.FieldEventType, "upload_attempt_failed"),
			)
		}
		return err
	}
}

func (p *Pool) delivered(ctx context.Context, logger *slog.Logger, item artifact.Item, via string) {
	logger.Debug("capture delivered",
		logging.String("via", via),
		logging.Int64("bytes", item.Size()),
	)
	p.sink.Record(ctx, ledger.Event{Kind: ledger.KindDelivered, Artifact: item.Name, Bytes: item.Size(), Detail: via})
}

func (p *Pool) persist(ctx context.Context, item artifact.Item, reason string) Outcome {
	logger := logging.WithContext(logging.WithArtifact(ctx, item.Name), p.logger)
	if err := p.opts.Store.Save(ctx, item); err != nil {
		logging.ErrorWithContext(logger, "capture lost: overflow write failed", "artifact_lost",
			logging.Error(err),
			logging.String(logging.FieldReason, reason),
			logging.String(logging.FieldErrorHint, "check free space and permissions of overflow.dir"),
			logging.String(logging.FieldImpact, "capture permanently lost"),
		)
		p.sink.Record(ctx, ledger.Event{Kind: ledger.KindLost, Artifact: item.Name, Bytes: item.Size(), Detail: err.Error()})
		return OutcomeLost
	}
	logger.Info("capture persisted for redelivery",
		logging.String(logging.FieldReason, reason),
		logging.String(logging.FieldEventType, "artifact_persisted"),
	)
	p.sink.Record(ctx, ledger.Event{Kind: ledger.KindPersisted, Artifact: item.Name, Bytes: item.Size(), Detail: reason})
	return OutcomePersisted
}
