package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstruction_AllKindsRender(t *testing.T) {
	for _, kind := range []Kind{CommitAnalysis, PRReview, Overview, TrendNarrative, Classify, Chat} {
		text := Instruction(kind, nil)
		assert.NotEmpty(t, text, string(kind))
		assert.False(t, strings.Contains(text, "{{"), string(kind))
	}
}

func TestInstruction_ClassifyAsksForJSONArray(t *testing.T) {
	text := Instruction(Classify, nil)
	assert.Contains(t, text, "JSON array")
}

func TestInstruction_UnknownKind(t *testing.T) {
	assert.Equal(t, "", Instruction(Kind("nope"), nil))
}
