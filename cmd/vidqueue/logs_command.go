package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidqueue/internal/ipc"
	"vidqueue/internal/logs"
)

const followWait = time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var jobID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveLogPath(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := logs.Tail(cmd.Context(), path, logs.TailOptions{
				Offset: -1,
				Limit:  lines,
				JobID:  strings.TrimSpace(jobID),
			})
			if err != nil {
				return err
			}
			printLines(out, result.Lines)
			if !follow {
				return nil
			}
			offset := result.Offset
			for {
				result, err := logs.Tail(cmd.Context(), path, logs.TailOptions{
					Offset: offset,
					Follow: true,
					Wait:   followWait,
					JobID:  strings.TrimSpace(jobID),
				})
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				printLines(out, result.Lines)
				offset = result.Offset
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show lines for this job id")
	return cmd
}

// resolveLogPath asks the daemon for its active log and falls back to the
// newest log in the configured directory.
func resolveLogPath(ctx *commandContext) (string, error) {
	var path string
	_ = ctx.withClient(func(client *ipc.Client) error {
		resp, err := client.Status()
		if err == nil {
			path = resp.LogPath
		}
		return err
	})
	if path != "" {
		return path, nil
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return logs.Latest(cfg.Paths.LogDir)
}
