package main

import (
	"github.com/spf13/cobra"

	"timelapse/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the capture daemon in the foreground",
		Long: "Run the capture daemon in the foreground until SIGINT or SIGTERM.\n" +
			"SIGHUP re-reads the configuration file; capture and exposure settings\n" +
			"apply from the next cycle.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:   logLevel,
				ConfigPath: ctx.configPath(),
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	return cmd
}
