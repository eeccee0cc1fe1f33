// Package overflow implements the durable disk buffer for captures that could
// not be delivered live.
//
// Each entry is a file in a flat, device-scoped directory, named exactly like
// the delivery filename. The directory listing is the only source of truth for
// pending work; modification time orders both eviction and redelivery. Space
// is reclaimed, oldest first, before every write so the filesystem keeps the
// configured free reserve.
package overflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"timelapse/internal/artifact"
	"timelapse/internal/fileutil"
	"timelapse/internal/ledger"
	"timelapse/internal/logging"
)

// Entry is one pending file.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Options configures a Store.
type Options struct {
	Dir          string
	ReserveRatio float64
	// Usage defaults to StatfsUsage.
	Usage  UsageFunc
	Logger *slog.Logger
	Sink   ledger.Sink
}

// Store is the durable overflow buffer. Save, Reclaim, and removals share an
// operation lock; Drain holds a separate lock so at most one drain runs.
type Store struct {
	dir     string
	reserve float64
	usage   UsageFunc
	logger  *slog.Logger
	sink    ledger.Sink

	opMu    sync.Mutex
	drainMu sync.Mutex
	pending atomic.Bool
}

// Open prepares the directory, removes temp files left by a crash, and
// primes the pending flag from the current listing.
func Open(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("overflow dir is empty")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create overflow dir: %w", err)
	}
	s := &Store{
		dir:     opts.Dir,
		reserve: opts.ReserveRatio,
		usage:   opts.Usage,
		logger:  logging.NewComponentLogger(opts.Logger, "overflow"),
		sink:    opts.Sink,
	}
	if s.usage == nil {
		s.usage = StatfsUsage
	}
	if s.sink == nil {
		s.sink = ledger.Discard
	}

	removed, err := fileutil.RemoveTemps(s.dir)
	if err != nil {
		return nil, fmt.Errorf("remove temp files: %w", err)
	}
	if removed > 0 {
		s.logger.Info("removed incomplete overflow writes",
			logging.Int("count", removed),
			logging.String(logging.FieldEventType, "overflow_temp_cleanup"),
		)
	}
	if _, err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// HasPending is a cached hint that the directory is non-empty. It may lag the
// disk and must not drive mutating decisions.
func (s *Store) HasPending() bool { return s.pending.Load() }

// Refresh re-lists the directory and updates the pending hint.
func (s *Store) Refresh() (bool, error) {
	entries, err := s.Entries()
	if err != nil {
		return false, err
	}
	s.pending.Store(len(entries) > 0)
	return len(entries) > 0, nil
}

// Entries lists pending files, oldest first.
func (s *Store) Entries() ([]Entry, error) {
	return list(s.dir)
}

// List reads dir without opening a Store, for inspection from another
// process. It has no side effects; a missing directory lists as empty.
func List(dir string) ([]Entry, error) {
	entries, err := list(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return entries, err
}

func list(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list overflow dir: %w", err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.Type().IsRegular() || fileutil.IsTemp(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		entries = append(entries, Entry{Name: de.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].ModTime.Before(entries[j].ModTime)
	})
	return entries, nil
}

// Save persists item, evicting the oldest entries first if the write would
// eat into the free reserve. A same-named entry is replaced.
func (s *Store) Save(ctx context.Context, item artifact.Item) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.reclaimLocked(ctx, item.Size())
	if err := fileutil.WriteFileAtomic(s.dir, item.Name, item.Payload, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", item.Name, err)
	}
	s.pending.Store(true)
	return nil
}

// Reclaim evicts oldest entries until the free reserve holds. It returns the
// number of evicted entries.
func (s *Store) Reclaim(ctx context.Context) int {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.reclaimLocked(ctx, 0)
}

func (s *Store) reclaimLocked(ctx context.Context, incoming int64) int {
	if s.reserve <= 0 {
		return 0
	}
	evicted := 0
	var entries []Entry
	for {
		usage, err := s.usage(s.dir)
		if err != nil {
			logging.WarnWithContext(s.logger, "overflow capacity unknown; skipping reclamation", "overflow_usage_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "write proceeds without eviction"),
			)
			return evicted
		}
		required := uint64(s.reserve*float64(usage.Total)) + uint64(max(incoming, 0))
		if usage.Free >= required {
			return evicted
		}
		if entries == nil {
			entries, err = s.Entries()
			if err != nil {
				logging.WarnWithContext(s.logger, "overflow reclamation aborted", "overflow_reclaim_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "free space may fall below the reserve"),
				)
				return evicted
			}
		}
		if len(entries) == 0 {
			logging.WarnWithContext(s.logger, "overflow reserve cannot be met; nothing left to evict", "overflow_reserve_unmet",
				logging.Any("free_bytes", usage.Free),
				logging.Any("required_bytes", required),
				logging.String(logging.FieldErrorHint, "free space on the overflow filesystem"),
				logging.String(logging.FieldImpact, "the next write may fail and lose a capture"),
			)
			return evicted
		}
		oldest := entries[0]
		entries = entries[1:]
		if err := os.Remove(filepath.Join(s.dir, oldest.Name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(s.logger, "overflow eviction failed; reclamation aborted", "overflow_reclaim_failed",
				logging.Artifact(oldest.Name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check overflow.dir permissions"),
				logging.String(logging.FieldImpact, "free space may fall below the reserve"),
			)
			return evicted
		}
		evicted++
		logging.WarnWithContext(s.logger, "evicted oldest overflow entry", "artifact_evicted",
			logging.Artifact(oldest.Name),
			logging.Int64("bytes", oldest.Size),
			logging.String(logging.FieldImpact, "capture discarded to keep free space"),
		)
		s.sink.Record(ctx, ledger.Event{Kind: ledger.KindEvicted, Artifact: oldest.Name, Bytes: oldest.Size})
	}
}

// Load reads an entry back into an item. CreatedAt comes from the artifact
// name when it parses, otherwise from the file's modification time.
func (s *Store) Load(e Entry) (artifact.Item, error) {
	payload, err := os.ReadFile(filepath.Join(s.dir, e.Name))
	if err != nil {
		return artifact.Item{}, err
	}
	created := e.ModTime
	if _, ts, err := artifact.ParseName(e.Name); err == nil {
		created = ts
	}
	return artifact.Item{Name: e.Name, Payload: payload, CreatedAt: created}, nil
}

// Remove deletes an entry after successful redelivery. A missing file is not
// an error.
func (s *Store) Remove(name string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Stats returns the number and total size of pending entries.
func (s *Store) Stats() (count int, bytes int64, err error) {
	entries, err := s.Entries()
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		bytes += e.Size
	}
	return len(entries), bytes, nil
}
