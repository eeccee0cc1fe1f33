package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"timelapse/internal/daemonctl"
)

func newControlCommands(ctx *commandContext) []*cobra.Command {
	var grace time.Duration
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.configValue(), grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit within %s; killed pid %d\n", grace, result.PID)
				fmt.Fprintln(stdout, "Queued captures may not have been persisted")
				return nil
			}
			fmt.Fprintf(stdout, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}
	stopCmd.Flags().DurationVar(&grace, "grace", 15*time.Second, "How long to wait for a clean shutdown before killing")

	reloadCmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask the running daemon to re-read its configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			pid, err := daemonctl.Reload(ctx.configValue())
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Reload requested (pid %d); check the daemon log for config_reloaded\n", pid)
			return nil
		},
	}

	return []*cobra.Command{stopCmd, reloadCmd}
}
