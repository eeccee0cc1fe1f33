package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestConsoleHandlerLineLayout(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, slog.LevelInfo, false))
	logger = NewComponentLogger(logger, "delivery").With(Int(FieldWorker, 2))

	logger.WithGroup("upload").Warn("capture persisted for redelivery",
		Artifact("pic_01_2024-05-01_06-00-00.jpg"),
		String(FieldReason, "live attempts exhausted"),
		Error(errors.New("collector returned 503")),
		Duration("elapsed", 1500*time.Millisecond),
	)
	logger.Debug("hidden")

	line := buf.String()
	for _, want := range []string{
		" WARN  [delivery] capture persisted for redelivery",
		" worker=2",
		" upload.artifact=pic_01_2024-05-01_06-00-00.jpg",
		` upload.reason="live attempts exhausted"`,
		` upload.error="collector returned 503"`,
		" upload.elapsed=1.5s",
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Count(line, "\n") != 1 || strings.Contains(line, "hidden") {
		t.Fatalf("expected exactly one info+ line, got %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should be the prefix, not an attribute: %q", line)
	}
}

func TestConsoleHandlerWithAttrsDoesNotLeakBetweenChildren(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(newConsoleHandler(&buf, slog.LevelInfo, false)).With(String("device_id", "01"))
	a := base.With(Int(FieldWorker, 1))
	b := base.With(Int(FieldWorker, 2))
	a.Info("one")
	b.Info("two")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.HasSuffix(lines[0], "device_id=01 worker=1") || !strings.HasSuffix(lines[1], "device_id=01 worker=2") {
		t.Fatalf("attrs leaked between children: %q", lines)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	} {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
