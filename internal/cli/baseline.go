package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/simplyinspect/permwatch/pkg/client"
)

func newBaselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage permission baselines",
	}

	cmd.AddCommand(newBaselineCaptureCmd())
	cmd.AddCommand(newBaselineListCmd())
	cmd.AddCommand(newBaselineGetCmd())
	cmd.AddCommand(newBaselineActivateCmd())
	cmd.AddCommand(newBaselineDeactivateCmd())
	cmd.AddCommand(newBaselineDeleteCmd())
	cmd.AddCommand(newBaselineStatsCmd())

	return cmd
}

func newBaselineCaptureCmd() *cobra.Command {
	var name, description, createdBy string
	var activate bool

	cmd := &cobra.Command{
		Use:   "capture <site-id>",
		Short: "Capture the site's current permissions as a baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			b, err := apiClient.Baselines().Capture(ctx, client.CaptureBaselineRequest{
				SiteID:      args[0],
				Name:        name,
				Description: description,
				CreatedBy:   createdBy,
				Activate:    activate,
			})
			if err != nil {
				return fmt.Errorf("failed to capture baseline: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(b)
			}

			fmt.Printf("Captured baseline %d (%q) with %d entries\n", b.ID, b.Name, b.EntryCount)
			if b.IsActive {
				fmt.Println("Baseline is now active for the site")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "baseline name (required)")
	cmd.Flags().StringVar(&description, "description", "", "baseline description")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "who captured the baseline")
	cmd.Flags().BoolVar(&activate, "activate", false, "activate the baseline immediately")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newBaselineListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <site-id>",
		Short: "List baselines for a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			baselines, _, err := apiClient.Baselines().List(ctx, args[0], nil)
			if err != nil {
				return fmt.Errorf("failed to list baselines: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(baselines)
			}

			t := NewTable("ID", "NAME", "ENTRIES", "ACTIVE", "CREATED")
			for _, b := range baselines {
				t.AddRow(
					strconv.FormatInt(b.ID, 10),
					truncate(b.Name, 40),
					strconv.Itoa(b.EntryCount),
					formatBool(b.IsActive),
					b.CreatedAt.Format("2006-01-02 15:04:05"),
				)
			}
			t.Render()
			return nil
		},
	}
}

func newBaselineGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get baseline details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid baseline ID: %s", args[0])
			}

			ctx := context.Background()
			b, err := apiClient.Baselines().Get(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to get baseline: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(b)
			}

			fmt.Printf("ID:          %d\n", b.ID)
			fmt.Printf("Site:        %s\n", b.SiteID)
			fmt.Printf("Name:        %s\n", b.Name)
			if b.Description != "" {
				fmt.Printf("Description: %s\n", b.Description)
			}
			fmt.Printf("Entries:     %d\n", b.EntryCount)
			fmt.Printf("Active:      %s\n", formatBool(b.IsActive))
			if b.CreatedBy != "" {
				fmt.Printf("Created by:  %s\n", b.CreatedBy)
			}
			fmt.Printf("Created:     %s\n", b.CreatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newBaselineActivateCmd() *cobra.Command {
	var siteID string

	cmd := &cobra.Command{
		Use:   "activate <id>",
		Short: "Make a baseline the site's active baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid baseline ID: %s", args[0])
			}

			if err := apiClient.Baselines().Activate(context.Background(), siteID, id); err != nil {
				return fmt.Errorf("failed to activate baseline: %w", err)
			}

			fmt.Printf("Baseline %d activated for site %s\n", id, siteID)
			return nil
		},
	}

	cmd.Flags().StringVar(&siteID, "site", "", "site ID the baseline belongs to (required)")
	_ = cmd.MarkFlagRequired("site")

	return cmd
}

func newBaselineDeactivateCmd() *cobra.Command {
	var siteID string

	cmd := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Clear the active flag on a baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid baseline ID: %s", args[0])
			}

			if err := apiClient.Baselines().Deactivate(context.Background(), siteID, id); err != nil {
				return fmt.Errorf("failed to deactivate baseline: %w", err)
			}

			fmt.Printf("Baseline %d deactivated\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&siteID, "site", "", "site ID the baseline belongs to (required)")
	_ = cmd.MarkFlagRequired("site")

	return cmd
}

func newBaselineDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid baseline ID: %s", args[0])
			}

			if err := apiClient.Baselines().Delete(context.Background(), id); err != nil {
				return fmt.Errorf("failed to delete baseline: %w", err)
			}

			fmt.Printf("Baseline %d deleted\n", id)
			return nil
		},
	}
}

func newBaselineStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <id>",
		Short: "Show aggregate statistics for a baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid baseline ID: %s", args[0])
			}

			stats, err := apiClient.Baselines().Statistics(context.Background(), id)
			if err != nil {
				return fmt.Errorf("failed to get statistics: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(stats)
			}

			fmt.Printf("Entries:            %d\n", stats.TotalEntries)
			fmt.Printf("Unique resources:   %d\n", stats.UniqueResources)
			fmt.Printf("Unique principals:  %d\n", stats.UniquePrincipal)
			fmt.Printf("Inherited:          %d\n", stats.InheritedCount)
			fmt.Printf("Unique permissions: %d\n", stats.UniquePermCount)
			if len(stats.ByLevel) > 0 {
				fmt.Println("By permission level:")
				for level, count := range stats.ByLevel {
					fmt.Printf("  %-20s %d\n", level, count)
				}
			}
			return nil
		},
	}
}
