package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidqueue/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var states []string
	var parent string
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be zero or positive")
			}
			req := ipc.HistoryRequest{
				States:   normalizeStates(states),
				ParentID: strings.TrimSpace(parent),
				Limit:    limit,
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(req)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Jobs)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(stdout, "No jobs recorded")
					return nil
				}
				fmt.Fprint(stdout, renderTable(recordHeaders, recordRows(resp.Jobs), recordAligns))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&states, "state", "s", nil, "Filter by state (repeatable or comma separated)")
	cmd.Flags().StringVar(&parent, "parent", "", "Only list children of this job id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of records (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	cmd.AddCommand(newHistoryClearCommand(ctx))
	return cmd
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove finished jobs from the history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ClearHistory()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s)\n", resp.Removed)
				return nil
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the recorded details of one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Describe(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Job)
				}
				printLines(cmd.OutOrStdout(), recordDetailLines(resp.Job))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func normalizeStates(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}
