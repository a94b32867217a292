// Package sandbox provides the isolated, resource-bounded execution
// environment that runs plan steps. All filesystem mutations are confined
// to a per-job working copy; the original repository is never touched.
package sandbox

import (
	"context"
	"fmt"
	"time"
)

// ExecutionResult is the per-step record of a sandbox execution.
type ExecutionResult struct {
	// StepID is the plan step this result belongs to.
	StepID int `json:"step_id"`

	// ExitCode is the process exit code. -1 indicates a timeout kill.
	ExitCode int `json:"exit_code"`

	// Stdout is the captured standard output, size-capped and sanitized.
	Stdout string `json:"stdout,omitempty"`

	// Stderr is the captured standard error, size-capped and sanitized.
	Stderr string `json:"stderr,omitempty"`

	// Duration is the wall-clock execution time.
	Duration time.Duration `json:"duration"`

	// FilesTouched lists files known to be modified by this step.
	FilesTouched []string `json:"files_touched,omitempty"`

	// TimedOut reports that the step was hard-killed at its timeout.
	TimedOut bool `json:"timed_out,omitempty"`

	// Warnings are sanitization findings attached by the guardrail pass.
	Warnings []string `json:"warnings,omitempty"`
}

// Passed reports whether the step exited cleanly.
func (r ExecutionResult) Passed() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// FileEdit is a request to write content to a path inside the working copy.
type FileEdit struct {
	Path    string
	Content string
}

// DiffStats summarizes the cumulative changes in a working copy relative to
// the repository it was cloned from.
type DiffStats struct {
	// FilesChanged lists added, modified, and deleted paths.
	FilesChanged []string `json:"files_changed"`

	// LinesChanged is the total count of added plus removed lines.
	LinesChanged int `json:"lines_changed"`

	// Summary is a human-reviewable per-file change listing.
	Summary string `json:"summary,omitempty"`
}

// Sanitizer is the guardrail output-sanitization pass applied to every
// capture before it is attached to an ExecutionResult.
type Sanitizer interface {
	SanitizeOutput(output string) (sanitized string, warnings []string)
}

// Limits defines the resource bounds for a single sandbox execution.
type Limits struct {
	// CPUSeconds is the CPU time quota per run.
	CPUSeconds int `json:"cpu_seconds"`

	// Timeout is the wall-clock bound; the process is hard-killed at it.
	Timeout time.Duration `json:"timeout"`

	// MemoryBytes is the memory cap.
	MemoryBytes int64 `json:"memory_bytes"`

	// MaxOutputBytes caps how much stdout/stderr is captured.
	MaxOutputBytes int `json:"max_output_bytes"`
}

// DefaultLimits returns the default sandbox limits.
func DefaultLimits() Limits {
	return Limits{
		CPUSeconds:     120,
		Timeout:        10 * time.Minute,
		MemoryBytes:    2 * 1024 * 1024 * 1024,
		MaxOutputBytes: 10 * 1024 * 1024,
	}
}

// HardCeilings returns the absolute limits that configuration may never
// exceed.
func HardCeilings() Limits {
	return Limits{
		CPUSeconds:     300,
		Timeout:        20 * time.Minute,
		MemoryBytes:    4 * 1024 * 1024 * 1024,
		MaxOutputBytes: 50 * 1024 * 1024,
	}
}

// Validate checks the limits against the hard ceilings.
func (l Limits) Validate() error {
	hard := HardCeilings()
	if l.CPUSeconds > hard.CPUSeconds {
		return fmt.Errorf("cpu limit %ds exceeds ceiling %ds", l.CPUSeconds, hard.CPUSeconds)
	}
	if l.Timeout > hard.Timeout {
		return fmt.Errorf("timeout %s exceeds ceiling %s", l.Timeout, hard.Timeout)
	}
	if l.MemoryBytes > hard.MemoryBytes {
		return fmt.Errorf("memory limit %d bytes exceeds ceiling %d bytes", l.MemoryBytes, hard.MemoryBytes)
	}
	if l.MaxOutputBytes > hard.MaxOutputBytes {
		return fmt.Errorf("output cap %d bytes exceeds ceiling %d bytes", l.MaxOutputBytes, hard.MaxOutputBytes)
	}
	return nil
}

// Fault is a sandbox provisioning or runtime failure, distinct from a
// step's own non-zero exit code. Faults are retried a small fixed number of
// times by the controller before being treated as fatal.
type Fault struct {
	Op  string
	Err error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("sandbox %s: %v", f.Op, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Sandbox is one live isolated execution context. A sandbox is provisioned
// per job attempt and must be closed no later than job completion, retry,
// or timeout; an orphaned sandbox is a bug, not tolerated behavior.
type Sandbox interface {
	// ID returns the unique handle identifier.
	ID() string

	// WorkDir returns the per-job working copy path.
	WorkDir() string

	// Run executes a command inside the working copy, bounded by the
	// limits' timeout, and returns the captured, sanitized result.
	Run(ctx context.Context, stepID int, command string) ExecutionResult

	// Apply writes a file edit inside the working copy.
	Apply(ctx context.Context, stepID int, edit FileEdit) ExecutionResult

	// Diff computes the cumulative changes against the cloned repository.
	Diff() (DiffStats, error)

	// Close tears the sandbox down and reclaims its resources. Close is
	// idempotent.
	Close() error
}
