package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"timelapse/internal/ledger"
)

func TestStatusLineNoColor(t *testing.T) {
	got := statusLine("Daemon", toneWarn, "not running", false)
	want := fmt.Sprintf("%s%-*s %s", lineIndent, labelWidth, "Daemon:", "[WARN] not running")
	if got != want {
		t.Fatalf("statusLine mismatch\n got: %q\nwant: %q", got, want)
	}
	if got := statusLine("Preflight", toneFail, "", false); !strings.HasSuffix(got, "[FAIL]") {
		t.Fatalf("expected bare badge without message, got %q", got)
	}
}

func TestStatusLineWithColor(t *testing.T) {
	got := statusLine("Daemon", toneOK, "running", true)
	if !strings.HasPrefix(got, text.FgGreen.EscapeSeq()) || !strings.HasSuffix(got, text.EscapeReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestRenderTableTrimsWideColumns(t *testing.T) {
	out := renderTable([]column{{title: "Event"}, {title: "Detail", maxWidth: 10}}, [][]string{
		{"lost", "overflow write failed: no space left on device"},
		{"dropped"},
	})
	if strings.Contains(out, "no space left") {
		t.Fatalf("expected detail trimmed to 10 chars:\n%s", out)
	}
	if !strings.Contains(out, "overflow w") || !strings.Contains(out, "dropped") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if renderTable(nil, nil) != "" {
		t.Fatal("expected empty output without columns")
	}
}

func TestLedgerRowsSkipEmptyKindsAndGroupDigits(t *testing.T) {
	now := time.Now()
	summary := ledger.Summary{
		Counts: map[ledger.Kind]int{ledger.KindCaptured: 12345, ledger.KindDegraded: 1},
		Bytes:  map[ledger.Kind]int64{ledger.KindCaptured: 5_000_000},
		Last:   map[ledger.Kind]time.Time{ledger.KindCaptured: now, ledger.KindDegraded: now},
	}
	rows := ledgerRows(summary, message.NewPrinter(language.English))
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %v", rows)
	}
	if rows[0][0] != "Captured" || rows[0][1] != "12,345" || rows[0][2] != "5.0 MB" {
		t.Fatalf("unexpected captured row %v", rows[0])
	}
	if rows[1][0] != "Degraded" || rows[1][2] != "-" {
		t.Fatalf("unexpected degraded row %v", rows[1])
	}
}

func TestDeliveryModeLine(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		last map[ledger.Kind]time.Time
		want string
	}{
		{"none", map[ledger.Kind]time.Time{}, ""},
		{"degraded", map[ledger.Kind]time.Time{ledger.KindDegraded: now}, "degraded since"},
		{"recovered", map[ledger.Kind]time.Time{ledger.KindDegraded: now.Add(-time.Minute), ledger.KindRecovered: now}, "normal"},
		{"degraded again", map[ledger.Kind]time.Time{ledger.KindDegraded: now, ledger.KindRecovered: now.Add(-time.Minute)}, "degraded since"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line, ok := deliveryModeLine(ledger.Summary{Last: tc.last}, false)
			if tc.want == "" {
				if ok {
					t.Fatalf("expected no line, got %q", line)
				}
				return
			}
			if !ok || !strings.Contains(line, tc.want) {
				t.Fatalf("line %q does not contain %q", line, tc.want)
			}
		})
	}
}

func TestHumanizeWindow(t *testing.T) {
	for in, want := range map[time.Duration]string{
		24 * time.Hour:   "24h",
		72 * time.Hour:   "3d",
		90 * time.Minute: "1h30m0s",
		30 * time.Second: "30s",
	} {
		if got := humanizeWindow(in); got != want {
			t.Fatalf("humanizeWindow(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestShouldColorize(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
	t.Setenv("NO_COLOR", "1")
	if shouldColorize(os.Stdout) {
		t.Fatalf("expected NO_COLOR to disable color")
	}
}
