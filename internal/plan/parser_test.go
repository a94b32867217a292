package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPlanJSON = `{
  "strategy": "run the test suite",
  "steps": [
    {"id": 1, "kind": "edit", "description": "add multiply", "path": "math_utils.py", "content": "def multiply(a, b):\n    return a * b\n"},
    {"id": 2, "kind": "test", "description": "run tests", "command": "pytest"}
  ]
}`

func TestParse_ValidPlan(t *testing.T) {
	p, err := Parse(validPlanJSON, "job1", 1)
	require.NoError(t, err)

	assert.Equal(t, "job1", p.JobID)
	assert.Equal(t, 1, p.Attempt)
	assert.Equal(t, "run the test suite", p.Strategy)
	require.Len(t, p.Steps, 2)

	assert.Equal(t, StepEdit, p.Steps[0].Kind)
	assert.Equal(t, "math_utils.py", p.Steps[0].Path)
	assert.True(t, p.Steps[0].Required, "required must default to true")

	assert.Equal(t, StepTest, p.Steps[1].Kind)
	assert.Equal(t, "pytest", p.Steps[1].Command)
}

func TestParse_StripsMarkdownFences(t *testing.T) {
	fenced := "```json\n" + validPlanJSON + "\n```"

	p, err := Parse(fenced, "job1", 1)
	require.NoError(t, err)
	assert.Len(t, p.Steps, 2)
}

func TestParse_ExplicitOptionalStep(t *testing.T) {
	raw := `{"steps": [{"id": 1, "kind": "shell", "command": "pylint src", "required": false}]}`

	p, err := Parse(raw, "job1", 1)
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)
	assert.False(t, p.Steps[0].Required)
}

func TestParse_AmbiguousDeclaration(t *testing.T) {
	raw := `{"ambiguous": true, "reason": "no measurable objective"}`

	p, err := Parse(raw, "job1", 1)
	assert.Nil(t, p)
	require.Error(t, err)

	var ambiguous *ErrAmbiguous
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, "no measurable objective", ambiguous.Reason)
}

func TestParse_NeverReturnsPartialPlan(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not JSON", raw: "I will first edit the file and then run tests."},
		{name: "truncated JSON", raw: `{"steps": [{"id": 1, "kind": "shell",`},
		{name: "invalid step kind", raw: `{"steps": [{"id": 1, "kind": "deploy", "command": "x"}]}`},
		{name: "shell step without command", raw: `{"steps": [{"id": 1, "kind": "shell"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.raw, "job1", 1)
			assert.Nil(t, p, "a malformed document must not yield a partial plan")
			require.Error(t, err)

			var ambiguous *ErrAmbiguous
			assert.False(t, errors.As(err, &ambiguous), "parse failures are not ambiguity")
		})
	}
}

func TestParse_RenumbersSteps(t *testing.T) {
	raw := `{"steps": [
	  {"id": 7, "kind": "shell", "command": "ls"},
	  {"id": 3, "kind": "test", "command": "pytest"}
	]}`

	p, err := Parse(raw, "job1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Steps[0].ID)
	assert.Equal(t, 2, p.Steps[1].ID)
}
