package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SessionLogPattern matches the per-run daemon log files in logging.dir.
const SessionLogPattern = "timelapse-*.log"

// PruneSessionLogs removes session logs in dir last written more than
// retentionDays ago and returns how many were removed. keep (the log of the
// current run) and whatever timelapse.log points at are never removed.
// retentionDays <= 0 disables pruning.
func PruneSessionLogs(logger *slog.Logger, dir string, retentionDays int, keep string) int {
	if retentionDays <= 0 || dir == "" {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	matches, err := filepath.Glob(filepath.Join(dir, SessionLogPattern))
	if err != nil {
		return 0
	}
	protected := map[string]bool{}
	for _, p := range []string{keep, filepath.Join(dir, "timelapse.log")} {
		if p == "" {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			protected[resolved] = true
		}
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, path := range matches {
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(path); err == nil && protected[resolved] {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "session log prune failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check ownership of logging.dir"),
			)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("old session logs pruned",
			Int("removed", removed),
			Int("retention_days", retentionDays),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed
}
