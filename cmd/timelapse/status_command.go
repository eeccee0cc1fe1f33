package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"timelapse/internal/config"
	"timelapse/internal/daemonctl"
	"timelapse/internal/ledger"
	"timelapse/internal/overflow"
)

// statusSnapshot is everything `status` can learn without talking to the
// daemon: lock and pid file, overflow directory, and ledger.
type statusSnapshot struct {
	Running     bool
	PID         int
	DeviceID    string
	ServerURL   string
	OverflowDir string
	Pending     []overflow.Entry

	LedgerPath string
	LedgerNote string
	Summary    *ledger.Summary
	Recent     []ledger.Event
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var since time.Duration
	var recent int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, overflow, and delivery status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snap, err := collectStatus(cmd.Context(), cfg, time.Now().Add(-since), recent)
			if err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), snap, since, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Ledger summary window")
	cmd.Flags().IntVar(&recent, "recent", 10, "Number of recent ledger events to show (0 hides them)")
	return cmd
}

func collectStatus(ctx context.Context, cfg *config.Config, since time.Time, recent int) (statusSnapshot, error) {
	snap := statusSnapshot{
		DeviceID:    cfg.Device.ID,
		ServerURL:   cfg.Server.URL,
		OverflowDir: cfg.OverflowDir(),
		LedgerPath:  cfg.Ledger.Path,
	}
	running, pid, err := daemonctl.ProcessInfo(cfg)
	if err != nil {
		return snap, fmt.Errorf("inspect daemon: %w", err)
	}
	snap.Running, snap.PID = running, pid

	if snap.Pending, err = overflow.List(snap.OverflowDir); err != nil {
		return snap, err
	}

	switch {
	case !cfg.Ledger.Enabled:
		snap.LedgerNote = "disabled (ledger.enabled = false)"
		return snap, nil
	default:
		if _, err := os.Stat(cfg.Ledger.Path); errors.Is(err, fs.ErrNotExist) {
			snap.LedgerNote = "no events recorded yet"
			return snap, nil
		}
	}

	store, err := ledger.Open(cfg.Ledger.Path, "", nil)
	if err != nil {
		return snap, fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	summary, err := store.Summary(ctx, since)
	if err != nil {
		return snap, err
	}
	snap.Summary = &summary
	if recent > 0 {
		if snap.Recent, err = store.Recent(ctx, recent); err != nil {
			return snap, err
		}
	}
	return snap, nil
}

func renderStatus(out io.Writer, snap statusSnapshot, window time.Duration, colorize bool) {
	printer := message.NewPrinter(language.English)

	printSection(out, "Daemon", colorize)
	for _, line := range daemonLines(snap, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	printSection(out, "Overflow", colorize)
	for _, line := range overflowLines(snap, printer, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	printSection(out, fmt.Sprintf("Ledger (last %s)", humanizeWindow(window)), colorize)
	if snap.Summary == nil {
		fmt.Fprintln(out, statusLine("Ledger", toneInfo, snap.LedgerNote, colorize))
		return
	}
	if line, ok := deliveryModeLine(*snap.Summary, colorize); ok {
		fmt.Fprintln(out, line)
	}
	rows := ledgerRows(*snap.Summary, printer)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No events in window")
	} else {
		fmt.Fprint(out, renderTable([]column{{title: "Event"}, {title: "Count", numeric: true}, {title: "Bytes", numeric: true}, {title: "Last"}}, rows))
		fmt.Fprintln(out)
	}

	if len(snap.Recent) > 0 {
		fmt.Fprintln(out)
		printSection(out, "Recent Events", colorize)
		fmt.Fprint(out, renderTable([]column{{title: "Time"}, {title: "Event"}, {title: "Artifact"}, {title: "Detail", maxWidth: 60}}, recentRows(snap.Recent)))
		fmt.Fprintln(out)
	}
}

func daemonLines(snap statusSnapshot, colorize bool) []string {
	lines := make([]string, 0, 2)
	if snap.Running {
		detail := "running"
		if snap.PID > 0 {
			detail = fmt.Sprintf("running (pid %d)", snap.PID)
		}
		lines = append(lines, statusLine("Daemon", toneOK, detail, colorize))
	} else {
		lines = append(lines, statusLine("Daemon", toneWarn, "not running", colorize))
	}
	lines = append(lines, statusLine("Device", toneInfo, fmt.Sprintf("%s -> %s", snap.DeviceID, snap.ServerURL), colorize))
	return lines
}

func overflowLines(snap statusSnapshot, printer *message.Printer, colorize bool) []string {
	lines := []string{statusLine("Directory", toneInfo, snap.OverflowDir, colorize)}
	if len(snap.Pending) == 0 {
		return append(lines, statusLine("Pending", toneOK, "none", colorize))
	}
	var total int64
	for _, e := range snap.Pending {
		total += e.Size
	}
	oldest := snap.Pending[0].ModTime
	detail := printer.Sprintf("%d captures (%s), oldest %s", len(snap.Pending), humanize.Bytes(uint64(total)), humanize.Time(oldest))
	return append(lines, statusLine("Pending", toneWarn, detail, colorize))
}

// deliveryModeLine infers the current delivery mode from the newest
// degraded/recovered transitions in the window.
func deliveryModeLine(summary ledger.Summary, colorize bool) (string, bool) {
	degraded, hasDegraded := summary.Last[ledger.KindDegraded]
	recovered := summary.Last[ledger.KindRecovered]
	switch {
	case hasDegraded && degraded.After(recovered):
		return statusLine("Delivery", toneWarn, "degraded since "+humanize.Time(degraded), colorize), true
	case !recovered.IsZero():
		return statusLine("Delivery", toneOK, "normal, recovered "+humanize.Time(recovered), colorize), true
	default:
		return "", false
	}
}

func ledgerRows(summary ledger.Summary, printer *message.Printer) [][]string {
	title := cases.Title(language.English)
	rows := make([][]string, 0, len(ledger.Kinds))
	for _, kind := range ledger.Kinds {
		count := summary.Counts[kind]
		if count == 0 {
			continue
		}
		bytes := "-"
		if b := summary.Bytes[kind]; b > 0 {
			bytes = humanize.Bytes(uint64(b))
		}
		last := "-"
		if ts, ok := summary.Last[kind]; ok {
			last = humanize.Time(ts)
		}
		rows = append(rows, []string{title.String(string(kind)), printer.Sprintf("%d", count), bytes, last})
	}
	return rows
}

func recentRows(events []ledger.Event) [][]string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		artifact := ev.Artifact
		if artifact == "" {
			artifact = "-"
		}
		rows = append(rows, []string{
			ev.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			string(ev.Kind),
			artifact,
			strings.TrimSpace(ev.Detail),
		})
	}
	return rows
}

func humanizeWindow(d time.Duration) string {
	if d%(24*time.Hour) == 0 && d >= 24*time.Hour {
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "24h"
		}
		return fmt.Sprintf("%dd", days)
	}
	return d.String()
}
