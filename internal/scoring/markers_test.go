package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joescharf/draftscore/internal/models"
)

func TestParseMarkers(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[models.Dimension]int
	}{
		{"none", "Plain paragraph.", nil},
		{"low", "Para one text. LOW_A", map[models.Dimension]int{models.DimensionActionability: 1}},
		{"mid", "MID_G first", map[models.Dimension]int{models.DimensionGrounding: 3}},
		{"high", "Para two text. HIGH_H", map[models.Dimension]int{models.DimensionHelpfulness: 5}},
		{
			"independent dimensions",
			"LOW_A and HIGH_V together",
			map[models.Dimension]int{models.DimensionActionability: 1, models.DimensionVerifiability: 5},
		},
		{"last wins", "LOW_A then MID_A", map[models.Dimension]int{models.DimensionActionability: 3}},
		{"lowercase ignored", "low_a", nil},
		{"unknown letter", "LOW_X", nil},
		{"embedded in word", "xLOW_A", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMarkers(tt.text))
		})
	}
}

func TestApplyMarkers(t *testing.T) {
	t.Run("overrides backend result", func(t *testing.T) {
		in := map[models.Dimension]DimensionResult{
			models.DimensionActionability: {Score: 5, Text: "great"},
			models.DimensionGrounding:     {Score: 4, Text: "fine"},
		}
		out := ApplyMarkers("Do it. LOW_A", in)
		assert.Equal(t, 1, out[models.DimensionActionability].Score)
		assert.NotEqual(t, "great", out[models.DimensionActionability].Text)
		assert.Equal(t, DimensionResult{Score: 4, Text: "fine"}, out[models.DimensionGrounding])
	})

	t.Run("adds missing dimension", func(t *testing.T) {
		out := ApplyMarkers("HIGH_H", nil)
		assert.Equal(t, 5, out[models.DimensionHelpfulness].Score)
	})

	t.Run("no markers leaves results alone", func(t *testing.T) {
		in := map[models.Dimension]DimensionResult{models.DimensionGrounding: {Score: 2}}
		assert.Equal(t, in, ApplyMarkers("nothing here", in))
	})
}
