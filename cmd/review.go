package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/draftscore/internal/output"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Manage reviews",
	Long:  "Create, list, and show reviews. A review is one document edited and analyzed over time.",
}

var reviewCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new, empty review",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewCreateRun(strings.Join(args, " "))
	},
}

var reviewListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewListRun()
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <review>",
	Short: "Show review details and its latest analysis run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewShowRun(args[0])
	},
}

func init() {
	reviewCmd.AddCommand(reviewCreateCmd)
	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewShowCmd)
	rootCmd.AddCommand(reviewCmd)
}

func reviewCreateRun(title string) error {
	if dryRun {
		ui.DryRunMsg("Would create review %q", title)
		return nil
	}
	svc, err := getService()
	if err != nil {
		return err
	}
	r, err := svc.CreateReview(context.Background(), title)
	if err != nil {
		return err
	}
	ui.Success("Created review %s (%s)", output.Cyan(r.Title), r.ID)
	return nil
}

func reviewListRun() error {
	svc, err := getService()
	if err != nil {
		return err
	}
	reviews, err := svc.ListReviews(context.Background())
	if err != nil {
		return err
	}
	if len(reviews) == 0 {
		ui.Info("No reviews yet. Create one with: draftscore review create <title>")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Paragraph IDs", "Updated"})
	for _, r := range reviews {
		table.Append([]string{
			shortID(r.ID),
			r.Title,
			fmt.Sprintf("%d", r.NextParagraphID-1),
			r.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return table.Render()
}

func reviewShowRun(id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()
	r, err := svc.GetReview(ctx, id)
	if err != nil {
		return err
	}
	doc, err := svc.Document(ctx, r.ID)
	if err != nil {
		return err
	}
	runs, err := svc.Runs(ctx, r.ID, 1)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(r.Title), r.ID)
	fmt.Fprintf(ui.Out, "  Created:    %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", r.UpdatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(ui.Out, "  Paragraphs: %d live, %d IDs minted\n", len(doc), r.NextParagraphID-1)
	if len(runs) > 0 {
		run := runs[0]
		fmt.Fprintf(ui.Out, "  Last run:   %s  %d/%d scored, %d failed, %d stale\n",
			output.StatusColor(string(run.Status)),
			run.ScoredParagraphs, run.TotalParagraphs, run.FailedParagraphs, run.StaleParagraphs)
	} else {
		fmt.Fprintln(ui.Out, "  Last run:   (never analyzed)")
	}
	return nil
}

// shortID trims a ULID for table display; prefixes are accepted wherever a
// review ID is.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
