package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/simplyinspect/permwatch/pkg/client"
)

func newRecipientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipient",
		Short: "Manage notification recipients",
	}

	cmd.AddCommand(newRecipientAddCmd())
	cmd.AddCommand(newRecipientListCmd())
	cmd.AddCommand(newRecipientRemoveCmd())

	return cmd
}

func newRecipientAddCmd() *cobra.Command {
	var name, siteID, frequency string
	var types []string

	cmd := &cobra.Command{
		Use:   "add <email>",
		Short: "Add or update a notification recipient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := apiClient.Notifications().UpsertRecipient(context.Background(), client.UpsertRecipientRequest{
				Email:             args[0],
				Name:              name,
				SiteID:            siteID,
				Frequency:         frequency,
				NotificationTypes: types,
			})
			if err != nil {
				return fmt.Errorf("failed to save recipient: %w", err)
			}

			scope := rule.SiteID
			if scope == "" {
				scope = "all sites"
			}
			fmt.Printf("Recipient %s subscribed to %s (%s)\n", rule.Email, scope, rule.Frequency)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "recipient display name")
	cmd.Flags().StringVar(&siteID, "site", "", "site ID to watch (empty for all sites)")
	cmd.Flags().StringVar(&frequency, "frequency", "immediate", "notification frequency: immediate, daily, weekly")
	cmd.Flags().StringSliceVar(&types, "types", nil, "notification types to subscribe to (default permission_change)")

	return cmd
}

func newRecipientListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List notification recipients",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := apiClient.Notifications().ListRecipients(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list recipients: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(rules)
			}

			t := NewTable("ID", "EMAIL", "SITE", "FREQUENCY", "ACTIVE", "LAST NOTIFIED")
			for _, r := range rules {
				site := r.SiteID
				if site == "" {
					site = "(all)"
				}
				lastNotified := "-"
				if r.LastNotificationAt != nil {
					lastNotified = r.LastNotificationAt.Format("2006-01-02 15:04")
				}
				t.AddRow(
					strconv.FormatInt(r.ID, 10),
					r.Email,
					truncate(site, 30),
					r.Frequency,
					formatBool(r.Active),
					lastNotified,
				)
			}
			t.Render()
			return nil
		},
	}
}

func newRecipientRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a notification recipient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid recipient ID: %s", args[0])
			}

			if err := apiClient.Notifications().RemoveRecipient(context.Background(), id); err != nil {
				return fmt.Errorf("failed to remove recipient: %w", err)
			}

			fmt.Printf("Recipient %d removed\n", id)
			return nil
		},
	}
}
