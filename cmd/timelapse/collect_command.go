package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"timelapse/internal/collector"
	"timelapse/internal/logging"
)

func newCollectCommand(ctx *commandContext) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run the reference collector that accepts uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Collector.Bind = bind
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}
			srv, err := collector.New(cfg, logger)
			if err != nil {
				return err
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return srv.Serve(signalCtx)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Override collector.bind")
	return cmd
}
