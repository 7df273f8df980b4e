package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/draftscore/internal/analysis"
	"github.com/joescharf/draftscore/internal/output"
	"github.com/joescharf/draftscore/internal/review"
)

var (
	analyzeForce bool
	runsLimit    int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <review>",
	Short: "Score paragraphs that changed since the last analysis",
	Long: `Score every live paragraph whose current version has no scores yet.
Dismissed dimensions are not requested. Batches that fail after their
retries are reported without failing the whole run. Press Ctrl-C to stop;
batches that already finished are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
		defer stop()
		return analyzeRun(ctx, args[0], analyzeForce)
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs <review>",
	Short: "List analysis runs, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runsRun(args[0], runsLimit)
	},
}

func init() {
	analyzeCmd.Flags().BoolVarP(&analyzeForce, "force", "f", false, "Rescore paragraphs that already have scores")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 10, "Maximum runs to show (0 for all)")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(runsCmd)
}

func analyzeRun(ctx context.Context, reviewID string, force bool) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	if dryRun {
		fb, err := svc.Feedback(ctx, reviewID)
		if err != nil {
			return err
		}
		pending := 0
		for _, p := range fb {
			if force || !p.Analyzed {
				pending++
			}
		}
		ui.DryRunMsg("Would analyze %d of %d paragraphs", pending, len(fb))
		return nil
	}

	showProgress := false
	res, err := svc.Analyze(ctx, reviewID, review.AnalyzeOptions{
		Force: force,
		OnProgress: func(p analysis.Progress) {
			showProgress = true
			ui.Progress(p.CompletedBatches, p.TotalBatches, "batches")
		},
	})
	if showProgress {
		ui.Done()
	}
	if res == nil {
		return err
	}

	run := res.Run
	for _, f := range res.Failures {
		ui.Warning("%v", f)
	}
	if len(res.Skipped) > 0 {
		ui.VerboseLog("Skipped %d paragraphs with every dimension dismissed", len(res.Skipped))
	}
	if run.StaleParagraphs > 0 {
		ui.Info("%d paragraphs changed during the run; analyze again to score them", run.StaleParagraphs)
	}

	summary := fmt.Sprintf("%d/%d paragraphs scored", run.ScoredParagraphs, run.TotalParagraphs)
	switch {
	case errors.Is(err, context.Canceled):
		ui.Warning("Analysis canceled: %s", summary)
		return nil
	case err != nil:
		return err
	case run.TotalParagraphs == 0:
		ui.Info("Nothing to analyze; every paragraph is up to date")
	case run.FailedParagraphs > 0:
		ui.Warning("Analysis %s: %s, %d failed", output.StatusColor(string(run.Status)), summary, run.FailedParagraphs)
	default:
		ui.Success("Analysis complete: %s", summary)
	}
	return nil
}

func runsRun(reviewID string, limit int) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	runs, err := svc.Runs(context.Background(), reviewID, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		ui.Info("No analysis runs yet")
		return nil
	}

	table := ui.Table([]string{"Run", "Started", "Status", "Total", "Scored", "Failed", "Stale", "Duration"})
	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		table.Append([]string{
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			output.StatusColor(string(r.Status)),
			fmt.Sprint(r.TotalParagraphs),
			fmt.Sprint(r.ScoredParagraphs),
			fmt.Sprint(r.FailedParagraphs),
			fmt.Sprint(r.StaleParagraphs),
			dur,
		})
	}
	return table.Render()
}
