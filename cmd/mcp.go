package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/draftscore/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio, so an assistant
can save drafts, run analyses and read feedback. Configure it with:

  {
    "mcpServers": {
      "draftscore": { "command": "draftscore", "args": ["mcp"] }
    }
  }

Available tools: ds_list_reviews, ds_create_review, ds_save_document,
ds_analyze, ds_feedback, ds_dismiss`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := getService()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
		defer stop()
		return mcp.NewServer(svc, buildVersion).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
