package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidqueue/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			if !notifications.Enabled(cfg) {
				fmt.Fprintln(out, "Notifications are disabled; set notifications.ntfy_topic to enable them")
				return nil
			}
			svc := notifications.NewService(cfg)
			if err := svc.Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintf(out, "Test notification sent to %s\n", cfg.Notifications.NtfyTopic)
			return nil
		},
	}
}
