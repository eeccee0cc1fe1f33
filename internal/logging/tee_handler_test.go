package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewTeeHandlerCollapses(t *testing.T) {
	if newTeeHandler(nil, nil) != slog.DiscardHandler {
		t.Fatal("expected the discard handler without branches")
	}
	var buf bytes.Buffer
	only := slog.NewJSONHandler(&buf, nil)
	if h := newTeeHandler(nil, only); h != only {
		t.Fatal("expected a single branch to be returned as is")
	}
}

func TestTeeHandlerRoutesByLevel(t *testing.T) {
	var console, session bytes.Buffer
	info := slog.NewJSONHandler(&console, &slog.HandlerOptions{Level: slog.LevelInfo})
	debug := slog.NewJSONHandler(&session, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(newTeeHandler(info, debug)).With(FieldComponent, "recovery")
	if !logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected tee enabled for debug when one branch accepts it")
	}
	logger.Debug("drain already running")
	logger.Info("overflow drained")

	if strings.Contains(console.String(), "drain already running") {
		t.Fatalf("info branch got a debug record: %s", console.String())
	}
	if !strings.Contains(session.String(), "drain already running") || !strings.Contains(session.String(), "overflow drained") {
		t.Fatalf("debug branch missing records: %s", session.String())
	}
	if !strings.Contains(console.String(), `"component":"recovery"`) {
		t.Fatalf("expected With attrs on every branch: %s", console.String())
	}
}
