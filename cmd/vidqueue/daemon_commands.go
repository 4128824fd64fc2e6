package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidqueue/internal/daemonctl"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 35 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the vidqueue daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, launchOptions(ctx, startLogLevel), startWaitTimeout)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override the configured log level")

	shutdownCmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Stop the vidqueue daemon process",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), cfg.PIDPath(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the vidqueue daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			result, err := daemonctl.Restart(ctx.socketPath(), cfg.PIDPath(), exe,
				launchOptions(ctx, restartLogLevel), stopGracePeriod, startWaitTimeout)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if result.WasRunning {
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			fmt.Fprintf(stdout, "Daemon restarted (pid %d)\n", result.Start.PID)
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Override the configured log level")

	return []*cobra.Command{startCmd, shutdownCmd, restartCmd}
}

func launchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: strings.TrimSpace(logLevel)}
	if ctx.configFlag != nil {
		opts.ConfigPath = strings.TrimSpace(*ctx.configFlag)
	}
	return opts
}
