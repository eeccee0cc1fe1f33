package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"timelapse/internal/config"
	"timelapse/internal/daemon"
	"timelapse/internal/delivery"
	"timelapse/internal/ledger"
	"timelapse/internal/logging"
	"timelapse/internal/overflow"
	"timelapse/internal/recovery"
	"timelapse/internal/uploader"
)

func newDrainCommand(ctx *commandContext) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Redeliver the overflow store once while the daemon is stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			lock, err := daemon.AcquireLock(cfg)
			if errors.Is(err, daemon.ErrAlreadyRunning) {
				return errors.New("daemon is running and drains the overflow store itself; stop it first")
			}
			if err != nil {
				return err
			}
			defer lock.Unlock()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}
			sink, closeSink := openLedgerSink(cfg)
			defer closeSink()

			store, err := overflow.Open(overflow.Options{
				Dir:          cfg.OverflowDir(),
				ReserveRatio: cfg.Overflow.ReserveRatio,
				Logger:       logger,
				Sink:         sink,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !store.HasPending() {
				fmt.Fprintln(out, "Overflow store is empty")
				return nil
			}

			client := uploader.New(cfg, logger)
			sweeper, err := recovery.New(recovery.Options{
				Store:       store,
				State:       delivery.NewState(true),
				Uploader:    client,
				Prober:      client,
				Policy:      delivery.RetryPolicy{Attempts: cfg.Overflow.DrainAttempts, Delay: cfg.RetryDelay()},
				NetworkWait: wait,
				Logger:      logger,
				Sink:        sink,
			})
			if err != nil {
				return err
			}
			result := sweeper.Startup(signalCtx)
			remaining, bytes, _ := store.Stats()
			switch result.Status {
			case overflow.DrainCompleted, overflow.DrainEmpty:
				fmt.Fprintf(out, "Redelivered %d captures; overflow store is empty\n", result.Delivered)
				return nil
			case overflow.DrainAborted:
				fmt.Fprintf(out, "Redelivered %d captures; %d remain (%s)\n", result.Delivered, remaining, humanize.Bytes(uint64(bytes)))
				return fmt.Errorf("drain aborted at %s: %w", result.Failed, result.Err)
			default:
				return fmt.Errorf("drain %s", result.Status)
			}
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for the collector to become reachable")
	return cmd
}

// openLedgerSink opens the ledger for commands that change delivery state.
// A ledger that cannot be opened is skipped.
func openLedgerSink(cfg *config.Config) (ledger.Sink, func()) {
	if !cfg.Ledger.Enabled {
		return ledger.Discard, func() {}
	}
	store, err := ledger.Open(cfg.Ledger.Path, "", nil)
	if err != nil {
		return ledger.Discard, func() {}
	}
	return store, func() { _ = store.Close() }
}
