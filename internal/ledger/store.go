// Package ledger keeps an append-only SQLite record of what happened to each
// capture: delivered live, persisted, redelivered, dropped, evicted, or lost.
//
// The ledger is informational. The overflow directory stays the only source
// of truth for pending redelivery, and a failing ledger never affects
// delivery.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"timelapse/internal/logging"
)

const (
	recordTimeout = 2 * time.Second
	// fixed width so stored timestamps sort lexically
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Store persists events in SQLite.
type Store struct {
	db        *sql.DB
	path      string
	sessionID string
	logger    *slog.Logger
}

// Open initializes or connects to the ledger database and applies migrations.
func Open(path, sessionID string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("ledger path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:        db,
		path:      path,
		sessionID: sessionID,
		logger:    logging.NewComponentLogger(logger, "ledger"),
	}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Insert appends ev. A zero CreatedAt is stamped with the current time and an
// empty SessionID with the store's session.
func (s *Store) Insert(ctx context.Context, ev Event) (int64, error) {
	if ev.Kind == "" {
		return 0, errors.New("event kind is required")
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if ev.SessionID == "" {
		ev.SessionID = s.sessionID
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (kind, artifact, bytes, detail, session_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(ev.Kind),
		nullableString(ev.Artifact),
		ev.Bytes,
		nullableString(ev.Detail),
		nullableString(ev.SessionID),
		ev.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Record implements Sink. Failures are logged and otherwise ignored.
func (s *Store) Record(ctx context.Context, ev Event) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if _, err := s.Insert(ctx, ev); err != nil {
		logging.WarnWithContext(s.logger, "ledger record failed", "ledger_record_failed",
			logging.String("kind", string(ev.Kind)),
			logging.Artifact(ev.Artifact),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ledger.path permissions and free space"),
			logging.String(logging.FieldImpact, "status history is incomplete; delivery is unaffected"),
		)
	}
}

// Summary aggregates events per kind.
type Summary struct {
	Since  time.Time
	Counts map[Kind]int
	Bytes  map[Kind]int64
	Last   map[Kind]time.Time
}

// Summary returns per-kind counts and byte totals for events at or after since.
func (s *Store) Summary(ctx context.Context, since time.Time) (Summary, error) {
	out := Summary{
		Since:  since,
		Counts: make(map[Kind]int),
		Bytes:  make(map[Kind]int64),
		Last:   make(map[Kind]time.Time),
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(1), COALESCE(SUM(bytes), 0), MAX(created_at)
         FROM events WHERE created_at >= ? GROUP BY kind`,
		since.UTC().Format(timeLayout),
	)
	if err != nil {
		return out, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind  string
			count int
			bytes int64
			last  string
		)
		if err := rows.Scan(&kind, &count, &bytes, &last); err != nil {
			return out, fmt.Errorf("scan summary: %w", err)
		}
		out.Counts[Kind(kind)] = count
		out.Bytes[Kind(kind)] = bytes
		if ts, err := time.Parse(timeLayout, last); err == nil {
			out.Last[Kind(kind)] = ts
		}
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("iterate summary: %w", err)
	}
	return out, nil
}

// Recent returns the newest events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, COALESCE(artifact, ''), bytes, COALESCE(detail, ''), COALESCE(session_id, ''), created_at
         FROM events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev      Event
			kind    string
			created string
		)
		if err := rows.Scan(&ev.ID, &kind, &ev.Artifact, &ev.Bytes, &ev.Detail, &ev.SessionID, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = Kind(kind)
		if ts, err := time.Parse(timeLayout, created); err == nil {
			ev.CreatedAt = ts
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Prune deletes events older than before and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
