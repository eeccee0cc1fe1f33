// Package logging assembles structured slog loggers and formatting helpers used
// across the timelapse daemon.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so delivery code can tag log lines with
// artifact names and upload correlation IDs. Daemon runs tee console output to
// a per-session JSON file stamped with session_id and device_id, and old
// session files are pruned by age. The package also provides
// a no-op logger for tests and wiring code that cannot fail.
package logging
