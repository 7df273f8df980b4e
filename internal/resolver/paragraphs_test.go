package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitParagraphs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", " \n\t\n", nil},
		{"single", "One paragraph.", []string{"One paragraph."}},
		{"two", "First.\n\nSecond.", []string{"First.", "Second."}},
		{"multi-line paragraph", "Line one\nline two\n\nNext", []string{"Line one\nline two", "Next"}},
		{"extra blank lines", "\n\nA\n\n\n\nB\n\n", []string{"A", "B"}},
		{"whitespace blank line", "A\n   \nB", []string{"A", "B"}},
		{"crlf", "A\r\n\r\nB\r\nC", []string{"A", "B\nC"}},
		{"trims", "  padded  \n\n\tB", []string{"padded", "B"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitParagraphs(tt.raw))
		})
	}
}

func TestJoinParagraphs_RoundTrip(t *testing.T) {
	paras := []string{"Para one text.", "Para two\nspans lines.", "Three"}
	assert.Equal(t, paras, SplitParagraphs(JoinParagraphs(paras)))
}
