// Package controller owns the job lifecycle: it sequences the guardrail
// gate, planner, executor, reflection engine, and confidence evaluator,
// enforces budgets and retry limits, and drives every job to exactly one
// terminal state.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/castorlabs/gantry/internal/confidence"
	"github.com/castorlabs/gantry/internal/executor"
	"github.com/castorlabs/gantry/internal/guardrail"
	"github.com/castorlabs/gantry/internal/job"
	"github.com/castorlabs/gantry/internal/plan"
	"github.com/castorlabs/gantry/internal/planner"
	"github.com/castorlabs/gantry/internal/reflection"
	"github.com/castorlabs/gantry/internal/sandbox"
)

// sandboxFaultRetries is how many times a sandbox provisioning failure is
// retried before it is treated as fatal.
const sandboxFaultRetries = 2

// ContextProvider supplies a bounded snapshot of repository structure and
// content for the planner.
type ContextProvider interface {
	Snapshot(ctx context.Context, repoPath string) (string, error)
}

// Deps contains the collaborators a Controller sequences.
type Deps struct {
	Gate      *guardrail.Gate
	Planner   *planner.Planner
	Sandboxes sandbox.Factory
	Context   ContextProvider
	Incidents *guardrail.IncidentLog
	Emitter   *Emitter
	AuditDir  string
}

// Options are the control-loop limits, threaded in explicitly so the
// controller's behavior is a function of its inputs.
type Options struct {
	// MaxRetries bounds the total planning attempts per job.
	MaxRetries int

	// StateTimeout bounds the wall clock of each non-terminal state.
	StateTimeout time.Duration

	// ConfidenceThreshold gates completion.
	ConfidenceThreshold float64

	// MaxPlanSteps bounds plan size.
	MaxPlanSteps int
}

// Controller runs one job's control loop. A controller instance owns its
// job exclusively; the job's counters are never mutated concurrently by
// more than one path.
type Controller struct {
	deps Deps
	opts Options
}

// New creates a controller with the given collaborators and limits.
func New(deps Deps, opts Options) *Controller {
	return &Controller{deps: deps, opts: opts}
}

// Run drives the job to a terminal state and returns it. Every code path
// out of the loop resolves to a defined transition: collaborator panics
// and unhandled errors force STOPPED_ERROR rather than leaving the job
// stuck in a non-terminal state.
func (c *Controller) Run(ctx context.Context, j *job.Job) (final job.State) {
	budget := job.NewBudgetTracker(j.Limits)
	machine := j.Machine
	machine.OnTransition(func(t job.Transition) {
		c.deps.Emitter.EmitTransition(j.ID, t)
	})

	// The attempt's sandbox, tracked so a panicking collaborator cannot
	// leave an orphaned working copy. Close is idempotent.
	var live sandbox.Sandbox

	defer func() {
		if r := recover(); r != nil {
			machine.ForceErrorStop(fmt.Sprintf("unhandled panic: %v", r))
		}
		if live != nil {
			_ = live.Close()
		}
		if !machine.Current().Terminal() {
			machine.ForceErrorStop("control loop exited without a terminal transition")
		}
		final = machine.Current()
		j.Finalize(final, lastReason(machine), budget.TokensUsed(), budget.CostUSD())
	}()

	// Task-level gate check, once, before any planning.
	taskVerdict := c.deps.Gate.CheckTask(j.Task)
	switch {
	case taskVerdict.Ambiguous:
		c.stopSafe(machine, taskVerdict.Detail)
		return
	case !taskVerdict.Allowed:
		c.recordIncident(guardrail.NewIncident(j.ID, taskVerdict.Reason, taskVerdict.Severity, taskVerdict.Detail))
		c.stopError(machine, "guardrail rejected task: "+taskVerdict.Detail)
		return
	}
	taskWarnings := len(taskVerdict.Warnings)

	reflector := reflection.New()
	feedback := ""

	for {
		if err := ctx.Err(); err != nil {
			machine.ForceErrorStop("cancelled: " + err.Error())
			return
		}
		if status := budget.Check(); !status.CanContinue {
			c.stopError(machine, status.Reason)
			return
		}

		attempt := j.BeginAttempt()

		// PLANNING
		p, done := c.runPlanning(ctx, j, budget, machine, feedback, attempt)
		if done {
			return
		}
		// Audit persistence failure does not fail the attempt.
		_, _ = plan.SaveRecord(c.deps.AuditDir, p)

		// EXECUTING
		sbx, err := c.provisionSandbox(j.RepoPath)
		if err != nil {
			c.stopError(machine, err.Error())
			return
		}
		live = sbx

		outcome, done := c.runExecution(ctx, j, machine, budget, sbx, p)
		if done {
			_ = sbx.Close()
			return
		}

		// TESTING: evaluate the fully materialized result sequence.
		if err := machine.To(job.StateTesting, "all steps dispatched"); err != nil {
			_ = sbx.Close()
			machine.ForceErrorStop(err.Error())
			return
		}

		// Budget exhaustion is fatal even for an attempt that would
		// otherwise complete.
		if status := budget.Check(); !status.CanContinue {
			_ = sbx.Close()
			c.stopError(machine, status.Reason)
			return
		}

		warnings := taskWarnings + outcome.Warnings
		score := confidence.Evaluate(p, outcome.Results, outcome.Diff, j.Task, attempt, warnings)
		j.SetConfidence(score.Value)

		testsPassed := outcome.FatalStep == 0 && score.TestsPassedRatio == 1.0

		if testsPassed && score.Value >= c.opts.ConfidenceThreshold {
			_ = sbx.Close()
			if err := machine.To(job.StateTestsPassed, "all required tests passed"); err != nil {
				machine.ForceErrorStop(err.Error())
				return
			}
			if err := machine.To(job.StateCompleted, fmt.Sprintf("confidence %.2f meets threshold %.2f", score.Value, c.opts.ConfidenceThreshold)); err != nil {
				machine.ForceErrorStop(err.Error())
				return
			}
			return
		}

		// TESTS_FAILED -> REFLECTING
		reason := "required tests failed"
		if testsPassed {
			reason = fmt.Sprintf("confidence %.2f below threshold %.2f", score.Value, c.opts.ConfidenceThreshold)
		}
		if err := machine.To(job.StateTestsFailed, reason); err != nil {
			_ = sbx.Close()
			machine.ForceErrorStop(err.Error())
			return
		}
		if err := machine.To(job.StateReflecting, "classifying failure"); err != nil {
			_ = sbx.Close()
			machine.ForceErrorStop(err.Error())
			return
		}

		verdict := reflector.Reflect(p, outcome.Results, outcome.Diff)

		// The sandbox is torn down at the attempt boundary; the next
		// attempt provisions a fresh one so no state leaks across
		// attempts.
		_ = sbx.Close()

		if !verdict.Recoverable {
			c.stopError(machine, "unrecoverable failure: "+verdict.Reason)
			return
		}
		if attempt >= c.opts.MaxRetries {
			c.stopError(machine, fmt.Sprintf("retry limit reached (%d/%d attempts)", attempt, c.opts.MaxRetries))
			return
		}
		if status := budget.Check(); !status.CanContinue {
			c.stopError(machine, status.Reason)
			return
		}

		feedback = verdict.Feedback
		if err := machine.To(job.StatePlanning, fmt.Sprintf("retrying, attempt %d", attempt+1)); err != nil {
			machine.ForceErrorStop(err.Error())
			return
		}
	}
}

// runPlanning executes the PLANNING state: repository snapshot, planner
// call under the state timeout, plan validation. Returns done=true when
// the machine reached a terminal state.
func (c *Controller) runPlanning(ctx context.Context, j *job.Job, budget *job.BudgetTracker, machine *job.Machine, feedback string, attempt int) (*plan.Plan, bool) {
	stateCtx, cancel := context.WithTimeout(ctx, c.opts.StateTimeout)
	defer cancel()

	repoContext, err := c.deps.Context.Snapshot(stateCtx, j.RepoPath)
	if err != nil {
		c.stopError(machine, "repository snapshot failed: "+err.Error())
		return nil, true
	}

	result, err := c.deps.Planner.Plan(stateCtx, j.ID, j.Task, repoContext, feedback, attempt)
	if err != nil {
		if stateCtx.Err() == context.DeadlineExceeded {
			c.stopError(machine, fmt.Sprintf("planning did not complete within %s: %v", c.opts.StateTimeout, job.ErrStateTimeout))
		} else {
			c.stopError(machine, "planning failed: "+err.Error())
		}
		return nil, true
	}

	budget.Record(result.Usage.Total(), result.CostUSD)

	if result.Ambiguous {
		reason := result.Reason
		if reason == "" {
			reason = "planner could not derive a verifiable objective"
		}
		c.stopSafe(machine, reason)
		return nil, true
	}

	p := result.Plan
	if len(p.Steps) == 0 {
		c.stopSafe(machine, "planner returned an empty plan")
		return nil, true
	}
	if err := p.Validate(c.opts.MaxPlanSteps); err != nil {
		c.stopError(machine, "invalid plan: "+err.Error())
		return nil, true
	}

	if status := budget.Check(); !status.CanContinue {
		c.stopError(machine, status.Reason)
		return nil, true
	}

	if err := machine.To(job.StateExecuting, fmt.Sprintf("plan %s validated with %d steps", p.PlanID, len(p.Steps))); err != nil {
		machine.ForceErrorStop(err.Error())
		return nil, true
	}
	return p, false
}

// runExecution executes the EXECUTING state. Returns done=true when the
// machine reached a terminal state; the caller owns sandbox teardown in
// both cases.
func (c *Controller) runExecution(ctx context.Context, j *job.Job, machine *job.Machine, budget *job.BudgetTracker, sbx sandbox.Sandbox, p *plan.Plan) (*executor.Outcome, bool) {
	exec := executor.New(c.deps.Gate, sbx, budget)

	outcome, err := exec.Execute(ctx, p)
	if err != nil {
		machine.ForceErrorStop("execution failed: " + err.Error())
		return nil, true
	}

	if outcome.GateRejected() {
		// Immediate error stop, no retry, regardless of remaining budget.
		detail := fmt.Sprintf("step %d rejected: %s", outcome.RejectedStep.ID, outcome.Rejected.Detail)
		c.recordIncident(guardrail.NewIncident(j.ID, outcome.Rejected.Reason, outcome.Rejected.Severity, detail))
		c.stopError(machine, "guardrail rejected step: "+detail)
		return nil, true
	}

	if outcome.BudgetStop != "" {
		c.stopError(machine, outcome.BudgetStop)
		return nil, true
	}

	return outcome, false
}

// provisionSandbox retries transient sandbox faults a small fixed number
// of times before giving up.
func (c *Controller) provisionSandbox(repoRoot string) (sandbox.Sandbox, error) {
	var lastErr error
	for attempt := 0; attempt <= sandboxFaultRetries; attempt++ {
		sbx, err := c.deps.Sandboxes.Provision(repoRoot)
		if err == nil {
			return sbx, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("sandbox provisioning failed after %d attempts: %w", sandboxFaultRetries+1, lastErr)
}

// stopSafe transitions to STOPPED_SAFE, falling back to a forced stop if
// the table disallows it from the current state.
func (c *Controller) stopSafe(machine *job.Machine, reason string) {
	if err := machine.To(job.StateStoppedSafe, reason); err != nil {
		machine.ForceErrorStop(reason)
	}
}

// stopError transitions to STOPPED_ERROR, forcing it if necessary.
func (c *Controller) stopError(machine *job.Machine, reason string) {
	if err := machine.To(job.StateStoppedError, reason); err != nil {
		machine.ForceErrorStop(reason)
	}
}

// recordIncident appends to the incident log and emits the event.
func (c *Controller) recordIncident(inc guardrail.Incident) {
	c.deps.Incidents.Append(inc)
	c.deps.Emitter.EmitIncident(inc)
}

// lastReason returns the reason of the machine's most recent transition.
func lastReason(machine *job.Machine) string {
	log := machine.Log()
	if len(log) == 0 {
		return ""
	}
	return log[len(log)-1].Reason
}
