package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/simplyinspect/permwatch/pkg/client"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show dashboard summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			reviewed := false
			unreviewedOpts := &client.ChangeListOptions{Reviewed: &reviewed}

			format := getOutputFormat()
			if format != "table" {
				summary := map[string]interface{}{}

				health, err := apiClient.Health(ctx)
				if err == nil {
					summary["server"] = health.Status
					summary["database"] = health.Database
				}
				depth, err := apiClient.Notifications().QueueDepth(ctx)
				if err == nil {
					summary["queue"] = depth
				}
				if _, page, err := apiClient.Changes().List(ctx, unreviewedOpts); err == nil && page != nil {
					summary["unreviewed_changes"] = page.TotalItems
				}
				recipients, err := apiClient.Notifications().ListRecipients(ctx)
				if err == nil {
					summary["recipients"] = len(recipients)
				}
				return printOutput(summary)
			}

			fmt.Println("PermWatch Dashboard")
			fmt.Println(strings.Repeat("=", 40))

			// Server
			health, err := apiClient.Health(ctx)
			if err != nil {
				fmt.Printf("  Server:        (error: %v)\n", err)
			} else {
				fmt.Printf("  Server:        %s", health.Status)
				if health.Database != "" {
					fmt.Printf(" (database %s)", health.Database)
				}
				fmt.Println()
			}

			// Changes awaiting review
			if _, page, err := apiClient.Changes().List(ctx, unreviewedOpts); err != nil {
				fmt.Printf("  Unreviewed:    (error: %v)\n", err)
			} else if page != nil {
				fmt.Printf("  Unreviewed:    %d change(s)\n", page.TotalItems)
			}

			// Queue
			depth, err := apiClient.Notifications().QueueDepth(ctx)
			if err != nil {
				fmt.Printf("  Queue:         (error: %v)\n", err)
			} else {
				fmt.Printf("  Queue:         %d pending", depth["pending"])
				if depth["failed"] > 0 {
					fmt.Printf(" (%d failed)", depth["failed"])
				}
				fmt.Println()
			}

			// Recipients
			recipients, err := apiClient.Notifications().ListRecipients(ctx)
			if err != nil {
				fmt.Printf("  Recipients:    (error: %v)\n", err)
			} else {
				immediate := 0
				for _, r := range recipients {
					if r.Frequency == "immediate" {
						immediate++
					}
				}
				fmt.Printf("  Recipients:    %d configured (%d immediate)\n", len(recipients), immediate)
			}

			return nil
		},
	}
}
