package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"timelapse/internal/logs"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
}

func TestLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timelapse.log")
	writeLog(t, path, "a\nb\nc\npartial")

	lines, offset, err := logs.Last(path, 2, logs.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != int64(len("a\nb\nc\n")) {
		t.Fatalf("offset %d should stop before the partial line", offset)
	}

	lines, _, err = logs.Last(filepath.Join(t.TempDir(), "missing.log"), 5, logs.Filter{})
	if err != nil || len(lines) != 0 {
		t.Fatalf("missing file: %v %v", lines, err)
	}
}

func TestFilter(t *testing.T) {
	degraded := `{"level":"WARN","msg":"delivery degraded","event_type":"degraded_entered"}`
	captured := `{"level":"DEBUG","msg":"captured","event_type":"capture_ok"}`
	cases := []struct {
		name   string
		filter logs.Filter
		line   string
		want   bool
	}{
		{"empty passes text", logs.Filter{}, "plain text", true},
		{"event filter rejects text", logs.Filter{EventTypes: []string{"x"}}, "plain text", false},
		{"event match", logs.Filter{EventTypes: []string{"degraded_entered"}}, degraded, true},
		{"event mismatch", logs.Filter{EventTypes: []string{"degraded_entered"}}, captured, false},
		{"level keeps warn", logs.Filter{MinLevel: "info"}, degraded, true},
		{"level drops debug", logs.Filter{MinLevel: "info"}, captured, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Match(tc.line); got != tc.want {
				t.Fatalf("Match = %v, want %v", got, tc.want)
			}
		})
	}
}

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func waitLines(t *testing.T, c *collector, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if lines := c.snapshot(); len(lines) >= n {
			return lines
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d lines, have %#v", n, c.snapshot())
	return nil
}

func TestFollowPicksUpAppendsAndRepointedFile(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "timelapse-1.log")
	second := filepath.Join(dir, "timelapse-2.log")
	pointer := filepath.Join(dir, "timelapse.log")
	writeLog(t, first, "old\n")
	if err := os.Symlink(first, pointer); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, offset, err := logs.Last(pointer, 0, logs.Filter{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := &collector{}
	done := make(chan error, 1)
	go func() { done <- logs.Follow(ctx, pointer, offset, 5*time.Millisecond, logs.Filter{}, got.add) }()

	appendLog(t, first, "later\n")
	waitLines(t, got, 1)

	writeLog(t, second, "new session\n")
	if err := os.Remove(pointer); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(second, pointer); err != nil {
		t.Fatal(err)
	}
	lines := waitLines(t, got, 2)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if lines[0] != "later" || lines[1] != "new session" {
		t.Fatalf("unexpected lines %#v", lines)
	}
}
