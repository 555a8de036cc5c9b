package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and work the notification queue",
	}

	cmd.AddCommand(newQueueDepthCmd())
	cmd.AddCommand(newQueueMessagesCmd())
	cmd.AddCommand(newQueueProcessCmd())
	cmd.AddCommand(newQueueCancelCmd())

	return cmd
}

func newQueueDepthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "depth",
		Short: "Show queue depth per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := apiClient.Notifications().QueueDepth(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get queue depth: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(counts)
			}

			t := NewTable("STATUS", "COUNT")
			for _, status := range []string{"pending", "sending", "sent", "failed", "cancelled"} {
				t.AddRow(formatStatus(status), strconv.FormatInt(counts[status], 10))
			}
			t.Render()
			return nil
		},
	}
}

func newQueueMessagesCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List queued notification messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, _, err := apiClient.Notifications().ListMessages(context.Background(), status, nil)
			if err != nil {
				return fmt.Errorf("failed to list messages: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(msgs)
			}

			t := NewTable("ID", "TYPE", "RECIPIENT", "STATUS", "RETRIES", "SCHEDULED")
			for _, m := range msgs {
				t.AddRow(
					truncate(m.ID, 12),
					m.Type,
					truncate(m.Recipient, 30),
					formatStatus(m.Status),
					fmt.Sprintf("%d/%d", m.RetryCount, m.MaxRetries),
					m.ScheduledFor.Format("2006-01-02 15:04"),
				)
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status: pending, sending, sent, failed, cancelled")

	return cmd
}

func newQueueCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.Notifications().CancelMessage(context.Background(), args[0]); err != nil {
				return fmt.Errorf("failed to cancel notification: %w", err)
			}

			fmt.Printf("Cancelled notification %s\n", args[0])
			return nil
		},
	}
}

func newQueueProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Trigger an immediate queue processing pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			sent, failed, err := apiClient.Notifications().ProcessQueue(context.Background())
			if err != nil {
				return fmt.Errorf("failed to process queue: %w", err)
			}

			fmt.Printf("Processed queue: %d sent, %d failed\n", sent, failed)
			return nil
		},
	}
}
