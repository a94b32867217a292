// Package executor runs a plan's steps through the sandbox, re-checking
// every step with the guardrail gate immediately before dispatch.
package executor

import (
	"context"
	"fmt"

	"github.com/castorlabs/gantry/internal/guardrail"
	"github.com/castorlabs/gantry/internal/job"
	"github.com/castorlabs/gantry/internal/plan"
	"github.com/castorlabs/gantry/internal/sandbox"
)

// BudgetChecker reports whether the job's budget allows further dispatch.
// *job.BudgetTracker implements it.
type BudgetChecker interface {
	Check() job.BudgetStatus
}

// Outcome is the cumulative result of executing one plan.
type Outcome struct {
	// Results holds one entry per step attempted, in plan order.
	// Execution stops at the first gate rejection or fatal step failure,
	// so Results may be shorter than the plan.
	Results []sandbox.ExecutionResult

	// Rejected is set when the gate refused a step; RejectedStep is the
	// offending step. No later step was dispatched.
	Rejected     *guardrail.StepVerdict
	RejectedStep *plan.Step

	// FatalStep is the ID of a required step that failed, stopping the
	// plan. Zero when no required step failed.
	FatalStep int

	// Diff is the cumulative change set in the working copy.
	Diff sandbox.DiffStats

	// Warnings is the count of non-fatal guardrail warnings accumulated
	// across all steps; the confidence evaluator consumes it.
	Warnings int

	// BudgetStop is the budget-exhaustion reason that halted dispatch at
	// a step boundary; empty when the budget allowed every step.
	BudgetStop string
}

// GateRejected reports whether execution stopped on a guardrail rejection.
func (o *Outcome) GateRejected() bool {
	return o.Rejected != nil
}

// Executor dispatches plan steps to a sandbox.
type Executor struct {
	gate   *guardrail.Gate
	sbx    sandbox.Sandbox
	budget BudgetChecker
}

// New creates an executor for one sandbox instance. A nil budget disables
// step-boundary budget checks.
func New(gate *guardrail.Gate, sbx sandbox.Sandbox, budget BudgetChecker) *Executor {
	return &Executor{gate: gate, sbx: sbx, budget: budget}
}

// Execute runs the plan's steps in order. Each step is submitted to the
// gate first and dispatched to the sandbox only on approval. A rejection
// or a failing required step stops the plan; best-effort steps may fail
// without stopping it. Cancellation and budget exhaustion are observed at
// step boundaries.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan) (*Outcome, error) {
	outcome := &Outcome{}

	for i := range p.Steps {
		step := p.Steps[i]

		if err := ctx.Err(); err != nil {
			return outcome, fmt.Errorf("execution cancelled before step %d: %w", step.ID, err)
		}
		if e.budget != nil {
			if status := e.budget.Check(); !status.CanContinue {
				outcome.BudgetStop = status.Reason
				break
			}
		}

		verdict := e.gate.CheckStep(step)
		if !verdict.Allowed {
			outcome.Rejected = &verdict
			outcome.RejectedStep = &step
			return outcome, nil
		}
		outcome.Warnings += len(verdict.Warnings)

		var result sandbox.ExecutionResult
		switch step.Kind {
		case plan.StepShell, plan.StepTest:
			result = e.sbx.Run(ctx, step.ID, step.Command)
		case plan.StepEdit:
			result = e.sbx.Apply(ctx, step.ID, sandbox.FileEdit{Path: step.Path, Content: step.Content})
		}

		outcome.Warnings += len(result.Warnings)
		outcome.Results = append(outcome.Results, result)

		if !result.Passed() && step.Required {
			outcome.FatalStep = step.ID
			break
		}
	}

	diff, err := e.sbx.Diff()
	if err != nil {
		return outcome, fmt.Errorf("computing working copy diff: %w", err)
	}
	outcome.Diff = diff

	return outcome, nil
}
