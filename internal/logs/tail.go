package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"timelapse/internal/logging"
)

const maxLine = 1024 * 1024

// Filter selects log lines. The zero value matches everything.
type Filter struct {
	// EventTypes keeps only records whose event_type is listed.
	EventTypes []string
	// MinLevel drops records below this slog level name (DEBUG, INFO, WARN, ERROR).
	MinLevel string
}

// Match reports whether line passes the filter. Lines that are not JSON
// pass only an empty filter.
func (f Filter) Match(line string) bool {
	if len(f.EventTypes) == 0 && f.MinLevel == "" {
		return true
	}
	var rec struct {
		Level     string `json:"level"`
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, et := range f.EventTypes {
			if strings.EqualFold(strings.TrimSpace(et), rec.EventType) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinLevel != "" && logging.ParseLevel(rec.Level) < logging.ParseLevel(f.MinLevel) {
		return false
	}
	return true
}

// Last returns up to limit matching lines from the end of path and the offset
// just past them. A missing file yields no lines and offset 0.
func Last(path string, limit int, filter Filter) ([]string, int64, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		offset, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, offset, nil
	}

	ring := make([]string, limit)
	count, idx := 0, 0
	offset, err := scan(file, func(line string) {
		if !filter.Match(line) {
			return
		}
		ring[idx] = line
		idx = (idx + 1) % limit
		count++
	})
	if err != nil {
		return nil, 0, err
	}
	if count < limit {
		return ring[:count], offset, nil
	}
	lines := make([]string, limit)
	for i := range lines {
		lines[i] = ring[(idx+i)%limit]
	}
	return lines, offset, nil
}

// Follow emits matching lines appended to path after offset until ctx is
// cancelled, polling every interval. If the path is re-pointed at a new file
// or the file shrinks, reading restarts at the beginning of the new content.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, filter Filter, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	var current os.FileInfo
	if info, err := os.Stat(path); err == nil {
		current = info
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		info, err := os.Stat(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			current, offset = nil, 0
		case err != nil:
			return fmt.Errorf("stat log file: %w", err)
		default:
			if (current != nil && !os.SameFile(current, info)) || info.Size() < offset {
				offset = 0
			}
			current = info
			if info.Size() > offset {
				if offset, err = readFrom(path, offset, filter, emit); err != nil {
					return err
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, filter Filter, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	end, err := scan(file, func(line string) {
		if filter.Match(line) {
			emit(line)
		}
	})
	if err != nil {
		return offset, err
	}
	return offset + end, nil
}

// scan feeds complete lines to fn and returns the number of bytes consumed
// from the current position. A trailing partial line is left for the next read.
func scan(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		if err != nil {
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		if len(line) > maxLine {
			continue
		}
		fn(strings.TrimRight(line, "\r\n"))
	}
}
