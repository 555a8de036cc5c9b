package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/simplyinspect/permwatch/pkg/client"
)

func newDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run change detection",
	}

	cmd.AddCommand(newDetectRunCmd())
	cmd.AddCommand(newDetectAllCmd())
	cmd.AddCommand(newDetectCompareCmd())

	return cmd
}

func newDetectRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <site-id>",
		Short: "Detect changes for a site against its active baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			fmt.Printf("Running detection for %s...\n", args[0])

			result, err := apiClient.Detection().RunSite(ctx, args[0])
			if err != nil {
				return fmt.Errorf("detection failed: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(result)
			}

			fmt.Printf("Status: %s\n", formatStatus(result.Status))
			if result.Summary != nil {
				printSummary(result.Summary)
			}
			if result.StoredCount > 0 {
				fmt.Printf("Stored:   %d new change record(s)\n", result.StoredCount)
			}
			if result.QueuedCount > 0 {
				fmt.Printf("Queued:   %d notification(s)\n", result.QueuedCount)
			}
			if result.Error != "" {
				fmt.Printf("Error:    %s\n", result.Error)
			}
			return nil
		},
	}
}

func newDetectAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Detect changes for every site with an active baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			fmt.Println("Running detection sweep...")

			report, err := apiClient.Detection().RunAll(ctx)
			if err != nil {
				return fmt.Errorf("detection sweep failed: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(report)
			}

			t := NewTable("SITE", "STATUS", "STORED", "QUEUED", "DURATION")
			for _, site := range report.Sites {
				t.AddRow(
					truncate(site.SiteID, 40),
					formatStatus(site.Status),
					strconv.Itoa(site.StoredCount),
					strconv.Itoa(site.QueuedCount),
					fmt.Sprintf("%dms", site.DurationMS),
				)
			}
			t.Render()
			return nil
		},
	}
}

func newDetectCompareCmd() *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "compare <baseline-id>",
		Short: "Compare a baseline against current permissions without recording changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid baseline ID: %s", args[0])
			}

			summary, err := apiClient.Detection().Compare(context.Background(), id, !noCache)
			if err != nil {
				return fmt.Errorf("comparison failed: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(summary)
			}

			printSummary(summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the comparison cache")

	return cmd
}

func printSummary(s *client.ChangeSummary) {
	fmt.Printf("Baseline entries:  %d\n", s.TotalBaseline)
	fmt.Printf("Current entries:   %d\n", s.TotalCurrent)
	fmt.Printf("Added:             %d\n", s.AddedCount)
	fmt.Printf("Removed:           %d\n", s.RemovedCount)
	fmt.Printf("Modified:          %d\n", s.ModifiedCount)
	fmt.Printf("Unchanged:         %d\n", s.UnchangedCount)
	if s.PossibleCollectionFailure {
		fmt.Println("Warning: current permission set is empty; removals may reflect a collection failure")
	}
}
