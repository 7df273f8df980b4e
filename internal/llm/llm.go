package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ParagraphInput is one paragraph sent for scoring.
type ParagraphInput struct {
	Index      int
	Text       string
	Dimensions []string
}

// DimensionScore is the model's verdict for one dimension.
type DimensionScore struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

// ParagraphScores holds the scores returned for one input paragraph.
type ParagraphScores struct {
	Index  int                       `json:"index"`
	Scores map[string]DimensionScore `json:"scores"`
}

// Client wraps the Anthropic API for paragraph scoring.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model. Extra
// request options (base URL, retries) are passed through to the SDK.
func NewClient(apiKey, model string, opts ...option.RequestOption) *Client {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for paragraph scoring.
func buildPrompt(paragraphs []ParagraphInput) (system string, user string) {
	system = `You review paragraphs of written feedback and score each one on the requested quality dimensions. Return ONLY a JSON array with one object per paragraph:
- "index": the paragraph index exactly as given
- "scores": an object keyed by dimension name; each value is {"score": <integer 1-5>, "comment": "<one or two sentences>"}

Dimensions:
- "actionability": does the paragraph tell the reader what to do next
- "helpfulness": would the recipient find it useful
- "grounding": is it tied to specific parts of the work under review
- "verifiability": are its claims supported by evidence or reasoning

Rules:
- 1 is very poor, 5 is excellent
- Score only the dimensions listed for each paragraph
- The comment must explain the score and suggest an improvement when the score is below 5
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Score these paragraphs:\n")
	for _, p := range paragraphs {
		fmt.Fprintf(&sb, "\n[paragraph %d] dimensions: %s\n", p.Index, strings.Join(p.Dimensions, ", "))
		sb.WriteString(p.Text)
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

// parseScores decodes the model's reply, keeping only entries whose index
// was requested.
func parseScores(text string, paragraphs []ParagraphInput) ([]ParagraphScores, error) {
	var scores []ParagraphScores
	if err := json.Unmarshal([]byte(stripFences(text)), &scores); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}

	wanted := make(map[int]bool, len(paragraphs))
	for _, p := range paragraphs {
		wanted[p.Index] = true
	}
	out := scores[:0]
	for _, s := range scores {
		if wanted[s.Index] {
			out = append(out, s)
		}
	}
	return out, nil
}

// ScoreParagraphs sends a batch of paragraphs to the LLM and returns the
// scores it assigned.
func (c *Client) ScoreParagraphs(ctx context.Context, paragraphs []ParagraphInput) ([]ParagraphScores, error) {
	systemPrompt, userPrompt := buildPrompt(paragraphs)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return parseScores(text, paragraphs)
}
