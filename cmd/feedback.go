package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/draftscore/internal/models"
	"github.com/joescharf/draftscore/internal/output"
)

var (
	feedbackAll        bool
	feedbackMarkViewed bool
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <review>",
	Short: "Show current feedback per paragraph",
	Long: `Show the latest scores for each live paragraph. Dimensions scoring 5
are hidden; 3-4 are moderate and 1-2 critical. Dismissed dimensions stay
hidden for every later version of the paragraph.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return feedbackRun(args[0], feedbackAll, feedbackMarkViewed)
	},
}

var viewCmd = &cobra.Command{
	Use:   "view <review> <paragraph> <dimension>",
	Short: "Mark a dimension's comment as seen",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return interactionRun(args, false)
	},
}

var dismissCmd = &cobra.Command{
	Use:   "dismiss <review> <paragraph> <dimension>",
	Short: "Dismiss a dimension for a paragraph, including future versions",
	Long: `Dismiss one dimension for a paragraph. The dimension is no longer
requested or shown for this paragraph, even after it is edited.
Dimensions may be given by name or letter (A, H, G, V).`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return interactionRun(args, true)
	},
}

func init() {
	feedbackCmd.Flags().BoolVarP(&feedbackAll, "all", "a", false, "Include paragraphs with nothing to show")
	feedbackCmd.Flags().BoolVar(&feedbackMarkViewed, "mark-viewed", false, "Mark every shown comment as viewed")
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(dismissCmd)
}

func feedbackRun(reviewID string, all, markViewed bool) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()
	fb, err := svc.Feedback(ctx, reviewID)
	if err != nil {
		return err
	}

	shown := 0
	for _, p := range fb {
		visible := p.Visible()
		if !all && len(visible) == 0 {
			continue
		}
		shown++

		label := output.SeverityColor(string(p.Severity))
		if !p.Analyzed {
			label = "not analyzed"
		}
		fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(fmt.Sprintf("#%d v%d", p.StableID, p.Version)), label)
		fmt.Fprintf(ui.Out, "  %s\n", preview(p.Text, 76))
		for _, d := range visible {
			mark := " "
			if d.Viewed {
				mark = "✓"
			}
			fmt.Fprintf(ui.Out, "  %s %s %-14s %s\n", mark, output.ScoreColor(d.Score), d.Dimension, d.Comment)
			if markViewed && !dryRun && !d.Viewed {
				if err := svc.MarkViewed(ctx, reviewID, p.StableID, d.Dimension); err != nil {
					return err
				}
			}
		}
		for _, d := range p.Dismissed {
			ui.VerboseLog("%s dismissed", d)
		}
		fmt.Fprintln(ui.Out)
	}

	if shown == 0 {
		ui.Success("No open feedback")
	}
	return nil
}

func interactionRun(args []string, dismiss bool) error {
	pid, err := parseParagraphID(args[1])
	if err != nil {
		return err
	}
	dim, err := models.ParseDimension(args[2])
	if err != nil {
		return err
	}

	verb := "view"
	if dismiss {
		verb = "dismiss"
	}
	if dryRun {
		ui.DryRunMsg("Would %s %s for paragraph %d", verb, dim, pid)
		return nil
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()
	if dismiss {
		err = svc.Dismiss(ctx, args[0], pid, dim)
	} else {
		err = svc.MarkViewed(ctx, args[0], pid, dim)
	}
	if err != nil {
		return err
	}

	if dismiss {
		ui.Success("Dismissed %s for paragraph %d", dim, pid)
	} else {
		ui.Success("Marked %s viewed for paragraph %d", dim, pid)
	}
	return nil
}
