package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/simplyinspect/permwatch/pkg/client"
)

func newChangeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "change",
		Short: "Inspect and review detected permission changes",
	}

	cmd.AddCommand(newChangeListCmd())
	cmd.AddCommand(newChangeGetCmd())
	cmd.AddCommand(newChangeReviewCmd())

	return cmd
}

func newChangeListCmd() *cobra.Command {
	var siteID, types string
	var baselineID int64
	var unreviewed bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List detected changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			opts := &client.ChangeListOptions{
				SiteID:     siteID,
				BaselineID: baselineID,
			}
			if types != "" {
				opts.Types = strings.Split(types, ",")
			}
			if unreviewed {
				reviewed := false
				opts.Reviewed = &reviewed
			}

			changes, page, err := apiClient.Changes().List(ctx, opts)
			if err != nil {
				return fmt.Errorf("failed to list changes: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(changes)
			}

			t := NewTable("ID", "SITE", "TYPE", "RESOURCE", "PRINCIPAL", "LEVEL", "REVIEWED", "DETECTED")
			for _, c := range changes {
				level := c.CurrentLevel
				if c.PreviousLevel != "" && c.CurrentLevel != "" && c.PreviousLevel != c.CurrentLevel {
					level = c.PreviousLevel + " -> " + c.CurrentLevel
				} else if level == "" {
					level = c.PreviousLevel
				}
				t.AddRow(
					strconv.FormatInt(c.ID, 10),
					truncate(c.SiteID, 24),
					formatChangeType(c.ChangeType),
					truncate(c.ResourceID, 28),
					truncate(c.PrincipalID, 24),
					truncate(level, 24),
					formatBool(c.Reviewed),
					c.DetectedAt.Format("2006-01-02 15:04"),
				)
			}
			t.Render()

			if page != nil && page.TotalItems > int64(len(changes)) {
				fmt.Printf("Showing %d of %d changes\n", len(changes), page.TotalItems)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&siteID, "site", "", "filter by site ID")
	cmd.Flags().Int64Var(&baselineID, "baseline", 0, "filter by baseline ID")
	cmd.Flags().StringVar(&types, "types", "", "comma-separated change types")
	cmd.Flags().BoolVar(&unreviewed, "unreviewed", false, "only unreviewed changes")

	return cmd
}

func newChangeGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get change details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid change ID: %s", args[0])
			}

			c, err := apiClient.Changes().Get(context.Background(), id)
			if err != nil {
				return fmt.Errorf("failed to get change: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(c)
			}

			fmt.Printf("ID:        %d\n", c.ID)
			fmt.Printf("Baseline:  %d\n", c.BaselineID)
			fmt.Printf("Site:      %s\n", c.SiteID)
			fmt.Printf("Type:      %s\n", formatChangeType(c.ChangeType))
			fmt.Printf("Resource:  %s\n", c.ResourceID)
			if c.ResourceName != "" {
				fmt.Printf("           (%s)\n", c.ResourceName)
			}
			fmt.Printf("Principal: %s\n", c.PrincipalID)
			if c.PrincipalName != "" {
				fmt.Printf("           (%s)\n", c.PrincipalName)
			}
			if c.PreviousLevel != "" {
				fmt.Printf("Previous:  %s\n", c.PreviousLevel)
			}
			if c.CurrentLevel != "" {
				fmt.Printf("Current:   %s\n", c.CurrentLevel)
			}
			fmt.Printf("Detected:  %s\n", c.DetectedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("Reviewed:  %s\n", formatBool(c.Reviewed))
			if c.ReviewedBy != "" {
				fmt.Printf("By:        %s\n", c.ReviewedBy)
			}
			if c.ReviewNotes != "" {
				fmt.Printf("Notes:     %s\n", c.ReviewNotes)
			}
			return nil
		},
	}
}

func newChangeReviewCmd() *cobra.Command {
	var reviewedBy, notes string

	cmd := &cobra.Command{
		Use:   "review <id> [id...]",
		Short: "Mark changes as reviewed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid change ID: %s", arg)
				}
				ids = append(ids, id)
			}

			updated, err := apiClient.Changes().MarkReviewed(context.Background(), ids, reviewedBy, notes)
			if err != nil {
				return fmt.Errorf("failed to review changes: %w", err)
			}

			fmt.Printf("Marked %d change(s) as reviewed\n", updated)
			return nil
		},
	}

	cmd.Flags().StringVar(&reviewedBy, "by", "", "reviewer name (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "review notes")
	_ = cmd.MarkFlagRequired("by")

	return cmd
}
