package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidqueue/internal/config"
	"vidqueue/internal/ipc"
)

type jobAction struct {
	use     string
	short   string
	done    string
	perform func(*ipc.Client, string) (*ipc.JobActionResponse, error)
}

func newJobControlCommands(ctx *commandContext) []*cobra.Command {
	actions := []jobAction{
		{use: "stop", short: "Stop a running job", done: "Stopped", perform: (*ipc.Client).StopJob},
		{use: "pause", short: "Pause a running job", done: "Paused", perform: (*ipc.Client).PauseJob},
		{use: "resume", short: "Resume a paused job", done: "Resumed", perform: (*ipc.Client).ResumeJob},
	}
	cmds := make([]*cobra.Command, 0, len(actions))
	for _, action := range actions {
		cmds = append(cmds, &cobra.Command{
			Use:   action.use + " <id>",
			Short: action.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id := strings.TrimSpace(args[0])
				return ctx.withClient(func(client *ipc.Client) error {
					if _, err := action.perform(client, id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s job %s\n", action.done, id)
					return nil
				})
			},
		})
	}
	return cmds
}

func newKillCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "kill",
		Short: "Stop every running job and empty the queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Kill(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All jobs stopped and queues cleared")
				return nil
			})
		},
	}
}

func newModeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "mode [serial|parallel]",
		Short:     "Show or switch the execution mode",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{config.ModeSerial, config.ModeParallel},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					resp, err := client.Status()
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Mode: %s\n", resp.Mode)
					return nil
				}
				resp, err := client.SetMode(strings.ToLower(strings.TrimSpace(args[0])))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Mode set to %s\n", resp.Mode)
				return nil
			})
		},
	}
}
