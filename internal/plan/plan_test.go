package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepKind_IsValid(t *testing.T) {
	assert.True(t, StepShell.IsValid())
	assert.True(t, StepEdit.IsValid())
	assert.True(t, StepTest.IsValid())
	assert.False(t, StepKind("deploy").IsValid())
	assert.False(t, StepKind("").IsValid())
}

func TestStep_Validate(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr string
	}{
		{name: "valid shell", step: Step{ID: 1, Kind: StepShell, Command: "go build ./..."}},
		{name: "valid edit", step: Step{ID: 1, Kind: StepEdit, Path: "math.py", Content: "x = 1"}},
		{name: "valid test", step: Step{ID: 1, Kind: StepTest, Command: "pytest"}},
		{name: "shell without command", step: Step{ID: 2, Kind: StepShell}, wantErr: "missing command"},
		{name: "test without command", step: Step{ID: 2, Kind: StepTest}, wantErr: "missing command"},
		{name: "edit without path", step: Step{ID: 3, Kind: StepEdit, Content: "x"}, wantErr: "missing target path"},
		{name: "unknown kind", step: Step{ID: 4, Kind: "compile"}, wantErr: "invalid kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPlan_Validate(t *testing.T) {
	valid := func(n int) []Step {
		steps := make([]Step, n)
		for i := range steps {
			steps[i] = Step{ID: i + 1, Kind: StepShell, Command: "echo ok", Required: true}
		}
		return steps
	}

	t.Run("empty plan", func(t *testing.T) {
		p := New("job1", 1)
		assert.Error(t, p.Validate(10))
	})

	t.Run("within step budget", func(t *testing.T) {
		p := New("job1", 1)
		p.Steps = valid(3)
		assert.NoError(t, p.Validate(10))
	})

	t.Run("over step budget", func(t *testing.T) {
		p := New("job1", 1)
		p.Steps = valid(11)
		err := p.Validate(10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too many steps")
	})

	t.Run("malformed step", func(t *testing.T) {
		p := New("job1", 1)
		p.Steps = []Step{{ID: 1, Kind: StepShell}}
		assert.Error(t, p.Validate(10))
	})
}

func TestPlan_TestSteps(t *testing.T) {
	p := New("job1", 1)
	p.Steps = []Step{
		{ID: 1, Kind: StepEdit, Path: "a.py", Content: "x"},
		{ID: 2, Kind: StepTest, Command: "pytest"},
		{ID: 3, Kind: StepShell, Command: "ls"},
		{ID: 4, Kind: StepTest, Command: "pytest -k slow"},
	}

	tests := p.TestSteps()
	require.Len(t, tests, 2)
	assert.Equal(t, 2, tests[0].ID)
	assert.Equal(t, 4, tests[1].ID)
}
