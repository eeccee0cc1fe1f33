package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"timelapse/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		events []string
		level  string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the current daemon session log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Logging.Dir, "timelapse.log")
			filter := logs.Filter{EventTypes: events, MinLevel: level}
			out := cmd.OutOrStdout()

			last, offset, err := logs.Last(path, lines, filter)
			if err != nil {
				return err
			}
			for _, line := range last {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return logs.Follow(signalCtx, path, offset, 0, filter, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringSliceVar(&events, "event", nil, "Only show these event_type values")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug, info, warn, error)")
	return cmd
}
