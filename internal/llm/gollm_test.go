package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateUsage(t *testing.T) {
	req := Request{
		SystemPrompt: strings.Repeat("a", 400),
		Prompt:       strings.Repeat("b", 200),
	}

	usage := estimateUsage(req, strings.Repeat("c", 1000))

	assert.Equal(t, 150, usage.InputTokens)
	assert.Equal(t, 250, usage.OutputTokens)
	assert.Equal(t, 400, usage.Total())
}
