package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"timelapse/internal/overflow"
)

func newPendingCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List captures waiting in the overflow store, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := overflow.List(cfg.OverflowDir())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Overflow store is empty")
				return nil
			}
			shown := entries
			if limit > 0 && len(shown) > limit {
				shown = shown[:limit]
			}
			fmt.Fprint(out, renderTable(pendingColumns, pendingRows(shown)))
			fmt.Fprintln(out)
			if len(shown) < len(entries) {
				fmt.Fprintf(out, "... %d more (use --limit 0 to show all)\n", len(entries)-len(shown))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to list (0 for all)")
	return cmd
}

func pendingRows(entries []overflow.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			e.Name,
			humanize.Bytes(uint64(e.Size)),
			humanize.Time(e.ModTime),
		})
	}
	return rows
}

var pendingColumns = []column{
	{title: "#", numeric: true},
	{title: "Name"},
	{title: "Size", numeric: true},
	{title: "Age"},
}
