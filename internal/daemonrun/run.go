package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"timelapse/internal/capture/gocvcam"
	"timelapse/internal/config"
	"timelapse/internal/daemon"
	"timelapse/internal/ledger"
	"timelapse/internal/logging"
	"timelapse/internal/notifications"
	"timelapse/internal/uploader"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel string
	// ConfigPath is re-read on SIGHUP.
	ConfigPath string
}

// Run starts the timelapse daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	sessionID := uuid.NewString()
	logPath := filepath.Join(cfg.Logging.Dir, fmt.Sprintf("timelapse-%s.log", runID))
	logger, err := logging.NewDaemon(cfg, logPath, sessionID)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Logging.Dir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update timelapse.log link: %v\n", err)
	}
	logging.PruneSessionLogs(logger, cfg.Logging.Dir, cfg.Logging.RetentionDays, logPath)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var sink ledger.Sink
	if cfg.Ledger.Enabled {
		store, err := ledger.Open(cfg.Ledger.Path, sessionID, logger)
		if err != nil {
			logging.WarnWithContext(logger, "ledger unavailable; continuing without event history", "ledger_open_failed",
				logging.String("path", cfg.Ledger.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check ledger.path permissions or set ledger.enabled = false"),
			)
		} else {
			defer store.Close()
			pruneLedger(signalCtx, logger, store, cfg.Logging.RetentionDays)
			sink = store
		}
	}

	client := uploader.New(cfg, logger)
	camera := gocvcam.New(cfg.Capture.Device, logger)
	d, err := daemon.New(config.NewLive(cfg, opts.ConfigPath), logger, daemon.Dependencies{
		Camera:   camera,
		Meter:    gocvcam.Meter{},
		Uploader: client,
		Prober:   client,
		Notifier: notifications.NewService(cfg),
		Ledger:   sink,
		Hotplug:  cfg.Capture.Hotplug,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer d.Stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-signalCtx.Done():
			logger.Info("timelapse daemon shutting down",
				logging.String(logging.FieldEventType, "daemon_shutdown"),
			)
			return nil
		case <-hup:
			if strings.TrimSpace(opts.ConfigPath) == "" {
				logger.Warn("SIGHUP ignored; daemon was started without a config file")
				continue
			}
			_ = d.Reload()
		}
	}
}

func pruneLedger(ctx context.Context, logger *slog.Logger, store *ledger.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed, err := store.Prune(ctx, cutoff)
	if err != nil {
		logger.Warn("ledger prune failed", logging.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("ledger pruned",
			logging.Int64("removed", removed),
			logging.String(logging.FieldEventType, "ledger_pruned"),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "timelapse.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
