package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidqueue/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, free space, and encoder binaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			results := preflight.RunAll(cfg)
			if jsonOut {
				return writeJSON(cmd, results)
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			printLines(stdout, renderSectionHeader("Preflight", colorize))
			printLines(stdout, preflightLines(results, colorize))
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, result := range results {
		kind := statusOK
		switch {
		case result.Passed:
		case result.Optional:
			kind = statusWarn
		default:
			kind = statusError
		}
		lines = append(lines, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}
	return lines
}
