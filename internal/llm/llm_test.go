package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt(t *testing.T) {
	system, user := buildPrompt([]ParagraphInput{
		{Index: 0, Text: "First paragraph.", Dimensions: []string{"actionability", "grounding"}},
		{Index: 3, Text: "Second paragraph.", Dimensions: []string{"helpfulness"}},
	})

	assert.Contains(t, system, "JSON array")
	assert.Contains(t, system, `"index"`)
	assert.Contains(t, system, `"scores"`)
	for _, d := range []string{"actionability", "helpfulness", "grounding", "verifiability"} {
		assert.Contains(t, system, d)
	}

	assert.Contains(t, user, "[paragraph 0] dimensions: actionability, grounding")
	assert.Contains(t, user, "First paragraph.")
	assert.Contains(t, user, "[paragraph 3] dimensions: helpfulness")
	assert.Contains(t, user, "Second paragraph.")
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `[1]`, stripFences("```json\n[1]\n```"))
	assert.Equal(t, `[1]`, stripFences("  [1]  "))
}

func TestParseScores(t *testing.T) {
	in := []ParagraphInput{{Index: 0}, {Index: 1}}

	t.Run("fenced reply", func(t *testing.T) {
		text := "```json\n[{\"index\":1,\"scores\":{\"grounding\":{\"score\":2,\"comment\":\"cite the section\"}}}]\n```"
		got, err := parseScores(text, in)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 1, got[0].Index)
		assert.Equal(t, DimensionScore{Score: 2, Comment: "cite the section"}, got[0].Scores["grounding"])
	})

	t.Run("drops unrequested indexes", func(t *testing.T) {
		got, err := parseScores(`[{"index":7,"scores":{}},{"index":0,"scores":{}}]`, in)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 0, got[0].Index)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := parseScores("not json", in)
		assert.Error(t, err)
	})
}

func TestScoreParagraphs(t *testing.T) {
	reply := `[{"index":0,"scores":{"actionability":{"score":4,"comment":"clear next step"}}}]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         "test-model",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]any{{"type": "text", "text": reply}},
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 10},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", "test-model", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	got, err := c.ScoreParagraphs(context.Background(), []ParagraphInput{
		{Index: 0, Text: "Add a unit test for the parser.", Dimensions: []string{"actionability"}},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].Scores["actionability"].Score)
}

func TestScoreParagraphs_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", "test-model", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := c.ScoreParagraphs(context.Background(), []ParagraphInput{{Index: 0, Text: "x"}})
	assert.Error(t, err)
}
