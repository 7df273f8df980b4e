package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/draftscore/internal/output"
	"github.com/joescharf/draftscore/internal/resolver"
	"github.com/joescharf/draftscore/internal/review"
)

var saveCmd = &cobra.Command{
	Use:   "save <review> <file|->",
	Short: "Save a new revision of the document",
	Long: `Save the full text of the document. Paragraphs are separated by blank
lines. Edited paragraphs keep their IDs and get a new version; paragraphs
that no longer appear are retired. Use - to read from stdin.

With --dry-run, shows how paragraphs would be matched without saving.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(cmd.InOrStdin(), args[1])
		if err != nil {
			return err
		}
		return saveRun(args[0], text)
	},
}

var documentCmd = &cobra.Command{
	Use:     "document <review>",
	Aliases: []string{"doc"},
	Short:   "Print the live document",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return documentRun(args[0], documentIDs)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <review> <paragraph>",
	Short: "Show every version of one paragraph",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parseParagraphID(args[1])
		if err != nil {
			return err
		}
		return historyRun(args[0], pid)
	},
}

var documentIDs bool

func init() {
	documentCmd.Flags().BoolVar(&documentIDs, "ids", false, "Prefix each paragraph with its ID and version")
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(documentCmd)
	rootCmd.AddCommand(historyCmd)
}

func readInput(stdin io.Reader, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return string(data), nil
}

func parseParagraphID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid paragraph ID %q", s)
	}
	return id, nil
}

func saveRun(reviewID, text string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var res *review.SaveResult
	if dryRun {
		res, err = svc.Preview(ctx, reviewID, text)
	} else {
		res, err = svc.Save(ctx, reviewID, text)
	}
	if err != nil {
		return err
	}

	changed := make(map[int64]bool, len(res.Changed))
	for _, id := range res.Changed {
		changed[id] = true
	}
	minted := make(map[int64]bool, len(res.Minted))
	for _, id := range res.Minted {
		minted[id] = true
	}
	for _, p := range res.Paragraphs {
		state := "unchanged"
		switch {
		case minted[p.StableID]:
			state = output.Green("new")
		case changed[p.StableID]:
			state = output.Yellow("edited")
		}
		ui.VerboseLog("#%d v%d %s  %s", p.StableID, p.Version, state, preview(p.Text, 60))
	}
	for _, a := range res.Ambiguities {
		ui.VerboseLog("ambiguous match: %s", a.String())
	}

	summary := fmt.Sprintf("%d paragraphs: %d new, %d edited, %d removed",
		len(res.Paragraphs), len(res.Minted), len(res.Changed)-len(res.Minted), len(res.Removed))
	if dryRun {
		ui.DryRunMsg("Would save %s", summary)
		return nil
	}
	ui.Success("Saved %s", summary)
	return nil
}

func documentRun(reviewID string, withIDs bool) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	doc, err := svc.Document(context.Background(), reviewID)
	if err != nil {
		return err
	}
	if len(doc) == 0 {
		ui.Info("Document is empty")
		return nil
	}

	texts := make([]string, len(doc))
	for i, p := range doc {
		texts[i] = p.Text
		if withIDs {
			texts[i] = fmt.Sprintf("%s %s", output.Cyan(fmt.Sprintf("[#%d v%d]", p.StableID, p.Version)), p.Text)
		}
	}
	fmt.Fprintln(ui.Out, resolver.JoinParagraphs(texts))
	return nil
}

func historyRun(reviewID string, pid int64) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	items, err := svc.History(context.Background(), reviewID, pid)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("paragraph %d not found", pid)
	}

	table := ui.Table([]string{"Version", "Saved", "State", "Text"})
	for i, it := range items {
		state := "superseded"
		switch {
		case it.IsDeleted:
			state = output.Red("retired")
		case i == len(items)-1:
			state = output.Green("live")
		}
		table.Append([]string{
			fmt.Sprintf("v%d", it.Version),
			it.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			state,
			preview(it.Text, 70),
		})
	}
	return table.Render()
}

// preview shortens text to at most n runes on a single line.
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n-1]) + "…"
}
