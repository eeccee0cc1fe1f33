package overflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"timelapse/internal/artifact"
	"timelapse/internal/logging"
)

// DrainStatus is the outcome of a Drain call.
type DrainStatus int

const (
	// DrainSkipped means another drain was already running.
	DrainSkipped DrainStatus = iota
	// DrainEmpty means there was nothing to deliver.
	DrainEmpty
	// DrainCompleted means at least one entry was delivered and the store is now empty.
	DrainCompleted
	// DrainAborted means delivery of the oldest entry failed or the context ended;
	// remaining entries stay in place.
	DrainAborted
)

func (s DrainStatus) String() string {
	switch s {
	case DrainSkipped:
		return "skipped"
	case DrainEmpty:
		return "empty"
	case DrainCompleted:
		return "completed"
	case DrainAborted:
		return "aborted"
	default:
		return fmt.Sprintf("DrainStatus(%d)", int(s))
	}
}

// DrainResult reports what a drain did.
type DrainResult struct {
	Status    DrainStatus
	Delivered int
	// Failed names the entry whose delivery aborted the drain.
	Failed string
	Err    error
}

// DeliverFunc redelivers one item. Retrying is the caller's concern; any
// error aborts the drain.
type DeliverFunc func(ctx context.Context, item artifact.Item) error

// Drain redelivers entries strictly oldest first, removing each after it is
// delivered. Only one drain runs at a time; a concurrent call returns
// DrainSkipped immediately. The directory is re-listed before every entry so
// saves made during the drain are picked up.
func (s *Store) Drain(ctx context.Context, deliver DeliverFunc) DrainResult {
	if !s.drainMu.TryLock() {
		return DrainResult{Status: DrainSkipped}
	}
	defer s.drainMu.Unlock()

	result := DrainResult{}
	for {
		if err := ctx.Err(); err != nil {
			result.Status = DrainAborted
			result.Err = err
			return result
		}
		entries, err := s.Entries()
		if err != nil {
			result.Status = DrainAborted
			result.Err = err
			return result
		}
		if len(entries) == 0 {
			if !s.clearPendingIfEmpty() {
				continue
			}
			if result.Delivered == 0 {
				result.Status = DrainEmpty
			} else {
				result.Status = DrainCompleted
			}
			return result
		}

		oldest := entries[0]
		item, err := s.Load(oldest)
		if errors.Is(err, fs.ErrNotExist) {
			// evicted since listing
			continue
		}
		if err != nil {
			result.Status = DrainAborted
			result.Failed = oldest.Name
			result.Err = fmt.Errorf("read %s: %w", oldest.Name, err)
			return result
		}

		if err := deliver(logging.WithArtifact(ctx, item.Name), item); err != nil {
			result.Status = DrainAborted
			result.Failed = oldest.Name
			result.Err = err
			return result
		}
		if err := s.Remove(oldest.Name); err != nil {
			result.Status = DrainAborted
			result.Failed = oldest.Name
			result.Err = err
			return result
		}
		result.Delivered++
		s.logger.Debug("redelivered overflow entry",
			logging.Artifact(oldest.Name),
			logging.Int("delivered", result.Delivered),
		)
	}
}

// clearPendingIfEmpty drops the pending hint and reports true unless a save
// landed after the caller's listing.
func (s *Store) clearPendingIfEmpty() bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	entries, err := s.Entries()
	if err != nil || len(entries) > 0 {
		return false
	}
	s.pending.Store(false)
	return true
}
