package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidqueue/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and job status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				renderStatus(cmd, resp)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderStatus(cmd *cobra.Command, resp *ipc.StatusResponse) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	printLines(stdout, renderSectionHeader("Daemon", colorize))
	printLines(stdout, daemonLines(resp, colorize))
	fmt.Fprintln(stdout)

	if len(resp.Health) > 0 {
		printLines(stdout, renderSectionHeader("Workers", colorize))
		printLines(stdout, poolHealthLines(resp.Health, colorize))
		fmt.Fprintln(stdout)
	}

	printLines(stdout, renderSectionHeader("Queues", colorize))
	if len(resp.Queues) == 0 {
		fmt.Fprintln(stdout, "No queues")
	} else {
		fmt.Fprint(stdout, renderTable(
			[]string{"Queue", "Pending", "Workers", "Hardware"},
			queueRows(resp.Queues),
			[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
		))
	}
	fmt.Fprintln(stdout)

	printLines(stdout, renderSectionHeader("Jobs", colorize))
	if len(resp.Jobs) == 0 {
		fmt.Fprintln(stdout, "Queue is empty")
		return
	}
	fmt.Fprint(stdout, renderTable(snapshotHeaders, snapshotRows(resp.Jobs), snapshotAligns))
}

func daemonLines(resp *ipc.StatusResponse, colorize bool) []string {
	lines := make([]string, 0, 6)
	if resp.Running {
		lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", resp.PID), colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusError, "Not running", colorize))
	}
	mode := resp.Mode
	if resp.Chunking {
		mode += ", chunking"
	}
	lines = append(lines, renderStatusLine("Mode", statusInfo, mode, colorize))
	if resp.GateOwner != "" {
		message := resp.GateOwner
		if len(resp.Priority) > 0 {
			message += " (waiting: " + strings.Join(resp.Priority, ", ") + ")"
		}
		lines = append(lines, renderStatusLine("Gate", statusInfo, message, colorize))
	}
	history := resp.History
	lines = append(lines, renderStatusLine("History", statusInfo,
		fmt.Sprintf("%d total, %d done, %d failed, %d interrupted", history.Total, history.Done, history.Failed, history.Interrupted), colorize))
	if resp.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, resp.LastError, colorize))
	}
	if resp.LogPath != "" {
		lines = append(lines, renderStatusLine("Log", statusInfo, resp.LogPath, colorize))
	}
	return lines
}
