package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"timelapse/internal/capture"
	"timelapse/internal/config"
	"timelapse/internal/delivery"
	"timelapse/internal/ledger"
	"timelapse/internal/logging"
	"timelapse/internal/notifications"
	"timelapse/internal/overflow"
	"timelapse/internal/recovery"
	"timelapse/internal/relay"
)

// Dependencies are the hardware and network adapters the daemon drives.
type Dependencies struct {
	Camera   capture.Camera
	Meter    capture.Meter
	Uploader delivery.Uploader
	Prober   recovery.Prober
	Notifier notifications.Service
	// Ledger is optional; nil disables event recording.
	Ledger ledger.Sink
	// Usage overrides filesystem capacity checks, for tests.
	Usage overflow.UsageFunc
	// Hotplug enables the udev camera monitor.
	Hotplug bool
}

// Daemon owns every long-running goroutine of the capture process.
type Daemon struct {
	live   *config.Live
	logger *slog.Logger
	sink   ledger.Sink

	queue    *relay.Queue
	store    *overflow.Store
	state    *delivery.State
	pool     *delivery.Pool
	sweeper  *recovery.Sweeper
	producer *capture.Producer
	hotplug  *capture.HotplugMonitor
	notifier notifications.Service

	lock    *flock.Flock
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started time.Time
}

// Status is a point-in-time view of the running daemon.
type Status struct {
	Running       bool
	Degraded      bool
	StateSince    time.Time
	QueueLen      int
	QueueCap      int
	Pending       int
	PendingBytes  int64
	Captured      int64
	Dropped       int64
	HotplugActive bool
	Uptime        time.Duration
}

// New builds all components from the current configuration. Delivery sizing
// (workers, queue capacity, attempt budgets) is fixed for the process
// lifetime; capture and exposure settings follow live reloads.
func New(live *config.Live, logger *slog.Logger, deps Dependencies) (*Daemon, error) {
	if live == nil || live.Current() == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if deps.Camera == nil || deps.Meter == nil || deps.Uploader == nil {
		return nil, errors.New("daemon requires camera, meter, and uploader")
	}
	cfg := live.Current()
	sink := deps.Ledger
	if sink == nil {
		sink = ledger.Discard
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	d := &Daemon{
		live:     live,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		sink:     sink,
		queue:    relay.New(cfg.Delivery.QueueCapacity),
		state:    delivery.NewState(true),
		notifier: notifier,
	}
	d.state.Subscribe(d.observeTransition)
	d.state.Subscribe(notifications.Observer(context.Background(), notifier, cfg.Device.ID, logger))

	store, err := overflow.Open(overflow.Options{
		Dir:          cfg.OverflowDir(),
		ReserveRatio: cfg.Overflow.ReserveRatio,
		Usage:        deps.Usage,
		Logger:       logger,
		Sink:         sink,
	})
	if err != nil {
		return nil, fmt.Errorf("open overflow store: %w", err)
	}
	d.store = store

	d.sweeper, err = recovery.New(recovery.Options{
		Store:         store,
		State:         d.state,
		Uploader:      deps.Uploader,
		Prober:        deps.Prober,
		Policy:        delivery.RetryPolicy{Attempts: cfg.Overflow.DrainAttempts, Delay: cfg.RetryDelay()},
		Interval:      cfg.SweepInterval(),
		NetworkWait:   time.Duration(cfg.Startup.NetworkWaitSeconds) * time.Second,
		CheckInterval: time.Duration(cfg.Startup.CheckIntervalSeconds) * time.Second,
		Logger:        logger,
		Sink:          sink,
	})
	if err != nil {
		return nil, err
	}

	d.pool, err = delivery.NewPool(delivery.PoolOptions{
		Workers:  cfg.Delivery.Workers,
		Queue:    d.queue,
		Uploader: deps.Uploader,
		Store:    store,
		State:    d.state,
		Live:     delivery.RetryPolicy{Attempts: cfg.Delivery.LiveAttempts, Delay: cfg.RetryDelay()},
		Degraded: delivery.RetryPolicy{Attempts: cfg.Delivery.DegradedAttempts, Delay: cfg.RetryDelay()},
		Sweeper:  d.sweeper,
		Logger:   logger,
		Sink:     sink,
	})
	if err != nil {
		return nil, err
	}

	d.producer, err = capture.NewProducer(capture.Options{
		DeviceID: cfg.Device.ID,
		Camera:   deps.Camera,
		Meter:    deps.Meter,
		Queue:    d.queue,
		Settings: capture.LiveSettings(live),
		Logger:   logger,
		Sink:     sink,
	})
	if err != nil {
		return nil, err
	}
	if deps.Hotplug {
		d.hotplug = capture.NewHotplugMonitor(cfg.Capture.Device, d.producer.RequestReconfigure, logger)
	}
	return d, nil
}

// Start acquires the instance lock and launches all goroutines.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	lock, err := AcquireLock(d.live.Current())
	if err != nil {
		return err
	}
	d.lock = lock

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.started = time.Now()

	producerDone := make(chan struct{})
	d.goRun("producer", func() error {
		defer close(producerDone)
		return d.producer.Run(runCtx)
	})
	d.goRun("delivery", func() error { return d.pool.Run(runCtx, producerDone) })
	d.goRun("sweeper", func() error { return d.sweeper.Run(runCtx) })
	d.goRun("startup", func() error {
		d.sweeper.Startup(runCtx)
		return nil
	})
	if err := d.hotplug.Start(runCtx); err != nil {
		d.logger.Debug("hotplug monitor start failed", logging.Error(err))
	}

	d.running.Store(true)
	cfg := d.live.Current()
	d.logger.Info("timelapse daemon started",
		logging.String("device_id", cfg.Device.ID),
		logging.String("server", cfg.Server.URL),
		logging.Int("workers", cfg.Delivery.Workers),
		logging.Int("queue_capacity", cfg.Delivery.QueueCapacity),
		logging.String("overflow_dir", d.store.Dir()),
		logging.String("lock", cfg.LockPath()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) goRun(name string, fn func() error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := fn(); err != nil {
			logging.ErrorWithContext(d.logger, "component stopped with error", "component_failed",
				logging.String("component_name", name),
				logging.Error(err),
			)
		}
	}()
}

// Stop cancels all goroutines, waits for them (queued captures are persisted
// by the pool on the way out), and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.hotplug.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if d.lock != nil {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
		d.lock = nil
	}
	d.running.Store(false)
	d.logger.Info("timelapse daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
	)
}

// Reload re-reads the configuration file. Capture settings apply from the
// next cycle; a failed reload keeps the running configuration.
func (d *Daemon) Reload() error {
	cfg, err := d.live.Reload()
	if err != nil {
		logging.WarnWithContext(d.logger, "configuration reload failed", "config_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'timelapse config validate'"),
			logging.String(logging.FieldImpact, "previous configuration stays active"),
		)
		return err
	}
	d.logger.Info("configuration reloaded",
		logging.String("path", d.live.Path()),
		logging.String("resolution", cfg.Capture.Resolution),
		logging.Float64("interval_seconds", cfg.Capture.IntervalSeconds),
		logging.String(logging.FieldEventType, "config_reloaded"),
	)
	return nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.TestNotification(ctx)
}

// Status reports runtime counters.
func (d *Daemon) Status() Status {
	count, bytes, err := d.store.Stats()
	if err != nil {
		d.logger.Debug("overflow stats failed", logging.Error(err))
	}
	captured, dropped := d.producer.Counts()
	st := Status{
		Running:       d.running.Load(),
		Degraded:      d.state.Degraded(),
		StateSince:    d.state.Since(),
		QueueLen:      d.queue.Len(),
		QueueCap:      d.queue.Cap(),
		Pending:       count,
		PendingBytes:  bytes,
		Captured:      captured,
		Dropped:       dropped,
		HotplugActive: d.hotplug.Running(),
	}
	if st.Running {
		st.Uptime = time.Since(d.started)
	}
	return st
}

func (d *Daemon) observeTransition(tr delivery.Transition) {
	kind := ledger.KindRecovered
	if tr.Degraded {
		kind = ledger.KindDegraded
		logging.WarnWithContext(d.logger, "delivery degraded; buffering captures on disk", "degraded_entered",
			logging.String(logging.FieldReason, tr.Reason),
			logging.String(logging.FieldErrorHint, "check network connectivity and server.url"),
			logging.String(logging.FieldImpact, "captures are persisted to the overflow store until the collector recovers"),
		)
	} else {
		d.logger.Info("delivery recovered",
			logging.String(logging.FieldReason, tr.Reason),
			logging.String(logging.FieldEventType, "degraded_exited"),
		)
	}
	d.sink.Record(context.Background(), ledger.Event{Kind: kind, Detail: tr.Reason})
}
