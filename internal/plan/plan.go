// Package plan defines the action plan a job executes: an ordered sequence
// of steps, each a closed tagged variant of shell command, file edit, or
// test invocation.
package plan

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StepKind identifies the kind of a plan step.
type StepKind string

const (
	// StepShell runs a shell command inside the sandbox.
	StepShell StepKind = "shell"
	// StepEdit writes content to a file inside the working copy.
	StepEdit StepKind = "edit"
	// StepTest invokes the test command for the repository.
	StepTest StepKind = "test"
)

// validStepKinds is the set of valid step kinds.
var validStepKinds = map[StepKind]bool{
	StepShell: true,
	StepEdit:  true,
	StepTest:  true,
}

// IsValid returns true if the kind is a valid value.
func (k StepKind) IsValid() bool {
	return validStepKinds[k]
}

// Step is a single atomic action within a plan. Exactly one of the
// kind-specific fields is meaningful, selected by Kind: Command for
// StepShell and StepTest, Path and Content for StepEdit.
type Step struct {
	// ID is the 1-based position of the step within its plan.
	ID int `json:"id"`

	// Kind selects the step variant.
	Kind StepKind `json:"kind"`

	// Description is a short human-readable summary of the step.
	Description string `json:"description"`

	// Command is the command line for shell and test steps.
	Command string `json:"command,omitempty"`

	// Path is the file path (relative to the working copy) for edit steps.
	Path string `json:"path,omitempty"`

	// Content is the full file content for edit steps.
	Content string `json:"content,omitempty"`

	// Required marks the step as fatal-on-failure. Best-effort steps
	// (Required == false) may fail without stopping the plan.
	Required bool `json:"required"`
}

// Validate checks that the step is structurally well-formed.
func (s Step) Validate() error {
	if !s.Kind.IsValid() {
		return fmt.Errorf("step %d: invalid kind %q", s.ID, s.Kind)
	}
	switch s.Kind {
	case StepShell, StepTest:
		if s.Command == "" {
			return fmt.Errorf("step %d: missing command", s.ID)
		}
	case StepEdit:
		if s.Path == "" {
			return fmt.Errorf("step %d: missing target path", s.ID)
		}
	}
	return nil
}

// Plan is an ordered sequence of steps produced by one planning round.
// Plans are never mutated in place; a retry produces a fresh plan and the
// previous one is preserved for audit.
type Plan struct {
	// PlanID is the unique identifier for this plan.
	PlanID string `json:"plan_id"`

	// JobID is the job this plan was produced for.
	JobID string `json:"job_id"`

	// Attempt is the 1-based planning round that produced this plan.
	Attempt int `json:"attempt"`

	// CreatedAt is when the plan was produced.
	CreatedAt time.Time `json:"created_at"`

	// Steps is the ordered step sequence.
	Steps []Step `json:"steps"`

	// Strategy is the planner's stated validation strategy.
	Strategy string `json:"strategy,omitempty"`
}

// New creates an empty plan for the given job and attempt.
func New(jobID string, attempt int) *Plan {
	return &Plan{
		PlanID:    uuid.New().String()[:8],
		JobID:     jobID,
		Attempt:   attempt,
		CreatedAt: time.Now(),
	}
}

// Validate checks that the plan is non-empty, within the step budget, and
// that every step is well-formed.
func (p *Plan) Validate(maxSteps int) error {
	if len(p.Steps) == 0 {
		return errors.New("plan has no steps")
	}
	if maxSteps > 0 && len(p.Steps) > maxSteps {
		return fmt.Errorf("plan has too many steps (%d, max %d)", len(p.Steps), maxSteps)
	}
	for _, s := range p.Steps {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TestSteps returns the test-invocation steps of the plan, in order.
func (p *Plan) TestSteps() []Step {
	var tests []Step
	for _, s := range p.Steps {
		if s.Kind == StepTest {
			tests = append(tests, s)
		}
	}
	return tests
}
