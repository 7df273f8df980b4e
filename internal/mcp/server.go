package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/draftscore/internal/models"
	"github.com/joescharf/draftscore/internal/review"
)

// Server exposes the review workflow as MCP tools.
type Server struct {
	svc     *review.Service
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(svc *review.Service, version string) *Server {
	return &Server{svc: svc, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("draftscore", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listReviewsTool())
	srv.AddTool(s.createReviewTool())
	srv.AddTool(s.saveDocumentTool())
	srv.AddTool(s.analyzeTool())
	srv.AddTool(s.feedbackTool())
	srv.AddTool(s.dismissTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// ds_list_reviews
func (s *Server) listReviewsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ds_list_reviews",
		mcp.WithDescription("List all reviews. Returns a JSON array with id, title and timestamps."),
	)
	return tool, s.handleListReviews
}

type reviewOut struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toReviewOut(r *models.Review) reviewOut {
	return reviewOut{
		ID:        r.ID,
		Title:     r.Title,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
		UpdatedAt: r.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleListReviews(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reviews, err := s.svc.ListReviews(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list reviews: %v", err)), nil
	}
	out := make([]reviewOut, len(reviews))
	for i, r := range reviews {
		out[i] = toReviewOut(r)
	}
	return jsonResult(out)
}

// ds_create_review
func (s *Server) createReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ds_create_review",
		mcp.WithDescription("Create a new, empty review."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Review title")),
	)
	return tool, s.handleCreateReview
}

func (s *Server) handleCreateReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	r, err := s.svc.CreateReview(ctx, title)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create review: %v", err)), nil
	}
	return jsonResult(toReviewOut(r))
}

// ds_save_document
func (s *Server) saveDocumentTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ds_save_document",
		mcp.WithDescription("Save the full text of a review. Paragraphs are separated by blank lines; "+
			"edited paragraphs keep their IDs and get a new version."),
		mcp.WithString("review", mcp.Required(), mcp.Description("Review ID or unique ID prefix")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Full document text")),
	)
	return tool, s.handleSaveDocument
}

func (s *Server) handleSaveDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reviewID, err := request.RequireString("review")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review"), nil
	}
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}
	res, err := s.svc.Save(ctx, reviewID, text)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save document: %v", err)), nil
	}

	type paragraphOut struct {
		ID      int64 `json:"id"`
		Version int   `json:"version"`
	}
	paragraphs := make([]paragraphOut, len(res.Paragraphs))
	for i, p := range res.Paragraphs {
		paragraphs[i] = paragraphOut{ID: p.StableID, Version: p.Version}
	}
	return jsonResult(map[string]any{
		"review_id":  res.ReviewID,
		"paragraphs": paragraphs,
		"changed":    res.Changed,
		"minted":     res.Minted,
		"removed":    res.Removed,
	})
}

// ds_analyze
func (s *Server) analyzeTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ds_analyze",
		mcp.WithDescription("Score every paragraph whose current version has not been analyzed. "+
			"Returns the run summary; failed batches are listed but do not fail the call."),
		mcp.WithString("review", mcp.Required(), mcp.Description("Review ID or unique ID prefix")),
		mcp.WithBoolean("force", mcp.Description("Rescore paragraphs that already have scores")),
	)
	return tool, s.handleAnalyze
}

func (s *Server) handleAnalyze(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reviewID, err := request.RequireString("review")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review"), nil
	}
	res, err := s.svc.Analyze(ctx, reviewID, review.AnalyzeOptions{Force: request.GetBool("force", false)})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
	}

	failures := make([]string, len(res.Failures))
	for i, f := range res.Failures {
		failures[i] = f.Error()
	}
	return jsonResult(map[string]any{
		"run_id":   res.Run.ID,
		"status":   res.Run.Status,
		"total":    res.Run.TotalParagraphs,
		"scored":   res.Run.ScoredParagraphs,
		"failed":   res.Run.FailedParagraphs,
		"stale":    res.Run.StaleParagraphs,
		"failures": failures,
	})
}

// ds_feedback
func (s *Server) feedbackTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ds_feedback",
		mcp.WithDescription("Get the current feedback for a review: per paragraph, the visible (score below 5) "+
			"dimension comments with their severity. Dismissed dimensions are omitted."),
		mcp.WithString("review", mcp.Required(), mcp.Description("Review ID or unique ID prefix")),
		mcp.WithBoolean("all", mcp.Description("Include paragraphs with nothing to show")),
	)
	return tool, s.handleFeedback
}

func (s *Server) handleFeedback(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reviewID, err := request.RequireString("review")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review"), nil
	}
	all := request.GetBool("all", false)

	fb, err := s.svc.Feedback(ctx, reviewID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load feedback: %v", err)), nil
	}

	type paragraphOut struct {
		ID        int64                      `json:"id"`
		Version   int                        `json:"version"`
		Analyzed  bool                       `json:"analyzed"`
		Severity  models.Severity            `json:"severity"`
		Text      string                     `json:"text"`
		Comments  []review.DimensionFeedback `json:"comments,omitempty"`
		Dismissed []models.Dimension         `json:"dismissed,omitempty"`
	}
	out := []paragraphOut{}
	for _, p := range fb {
		visible := p.Visible()
		if !all && len(visible) == 0 {
			continue
		}
		out = append(out, paragraphOut{
			ID:        p.StableID,
			Version:   p.Version,
			Analyzed:  p.Analyzed,
			Severity:  p.Severity,
			Text:      p.Text,
			Comments:  visible,
			Dismissed: p.Dismissed,
		})
	}
	return jsonResult(out)
}

// ds_dismiss
func (s *Server) dismissTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ds_dismiss",
		mcp.WithDescription("Dismiss one dimension for a paragraph. It stays dismissed for all later versions."),
		mcp.WithString("review", mcp.Required(), mcp.Description("Review ID or unique ID prefix")),
		mcp.WithNumber("paragraph", mcp.Required(), mcp.Description("Stable paragraph ID")),
		mcp.WithString("dimension", mcp.Required(),
			mcp.Description("Dimension name or letter: actionability (A), helpfulness (H), grounding (G), verifiability (V)")),
	)
	return tool, s.handleDismiss
}

func (s *Server) handleDismiss(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reviewID, err := request.RequireString("review")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review"), nil
	}
	pid := request.GetInt("paragraph", 0)
	if pid <= 0 {
		return mcp.NewToolResultError("missing or invalid parameter: paragraph"), nil
	}
	dimName, err := request.RequireString("dimension")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: dimension"), nil
	}
	dim, err := models.ParseDimension(dimName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.svc.Dismiss(ctx, reviewID, int64(pid), dim); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to dismiss: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Dismissed %s for paragraph %d", dim, pid)), nil
}
