package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"timelapse/internal/logging"
	"timelapse/internal/preflight"
	"timelapse/internal/uploader"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check directories, camera device, and collector reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			var prober preflight.Prober
			if !offline {
				prober = uploader.New(cfg, logging.NewNop())
			}
			results := preflight.RunAll(cmd.Context(), cfg, prober)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			printSection(out, "Preflight", colorize)
			for _, line := range preflightLines(results, colorize) {
				fmt.Fprintln(out, line)
			}
			if preflight.Failed(results) {
				return errors.New("preflight failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the collector probe")
	return cmd
}

func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		kind := toneOK
		switch {
		case r.Passed:
		case r.Optional:
			kind = toneWarn
		default:
			kind = toneFail
		}
		lines = append(lines, statusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}
