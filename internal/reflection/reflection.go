// Package reflection classifies failed attempts: recoverable failures
// yield corrective feedback for the next planning round, unrecoverable
// ones stop the job. Guardrail rejections never reach this package; the
// controller routes those straight to an error stop.
package reflection

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/castorlabs/gantry/internal/plan"
	"github.com/castorlabs/gantry/internal/sandbox"
)

// maxFeedbackBytes caps how much failure output is carried into the next
// planning prompt.
const maxFeedbackBytes = 8192

// Verdict is the reflection outcome for one failed attempt.
type Verdict struct {
	// Recoverable reports whether a bounded retry is worthwhile.
	Recoverable bool

	// Feedback is the corrective instruction for the next planning round.
	// Set only when Recoverable.
	Feedback string

	// Reason explains an unrecoverable classification.
	Reason string

	// Signature identifies the failure; identical signatures across
	// attempts mean the retry made no progress.
	Signature string
}

// Engine classifies failures across a job's attempts.
type Engine struct {
	// lastSignature and lastDiffFiles remember the previous failed
	// attempt, to detect repeats.
	lastSignature string
	lastDiffFiles string
}

// New creates a reflection engine for one job.
func New() *Engine {
	return &Engine{}
}

// Reflect inspects a failed attempt's results and decides whether to
// retry. Transient environment errors and test assertion failures are
// recoverable; a repeat of the identical failure with an unchanged diff is
// not, to avoid unproductive loops.
func (e *Engine) Reflect(p *plan.Plan, results []sandbox.ExecutionResult, diff sandbox.DiffStats) Verdict {
	failed := failedResults(p, results)
	if len(failed) == 0 {
		return Verdict{
			Recoverable: true,
			Feedback:    "all steps passed but the attempt scored below the confidence threshold; produce a smaller, more targeted plan",
		}
	}

	signature := ComputeSignature(failed)
	diffFiles := strings.Join(diff.FilesChanged, "\n")

	if signature != "" && signature == e.lastSignature && diffFiles == e.lastDiffFiles {
		return Verdict{
			Reason:    "identical failure repeated with no change to the diff; retrying would loop",
			Signature: signature,
		}
	}
	e.lastSignature = signature
	e.lastDiffFiles = diffFiles

	for _, r := range failed {
		if r.TimedOut {
			return Verdict{
				Recoverable: true,
				Feedback:    fmt.Sprintf("step %d exceeded its wall-clock limit; split the work into smaller steps", r.StepID),
				Signature:   signature,
			}
		}
	}

	return Verdict{
		Recoverable: true,
		Feedback:    buildFeedback(p, failed, diff),
		Signature:   signature,
	}
}

// failedResults returns the results of required steps that did not pass.
func failedResults(p *plan.Plan, results []sandbox.ExecutionResult) []sandbox.ExecutionResult {
	required := make(map[int]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.Required {
			required[s.ID] = true
		}
	}
	var failed []sandbox.ExecutionResult
	for _, r := range results {
		if required[r.StepID] && !r.Passed() {
			failed = append(failed, r)
		}
	}
	return failed
}

// ComputeSignature hashes the stable parts of a failure set: step IDs,
// exit codes, and the first line of each error output. Returns empty for
// an empty set.
func ComputeSignature(failed []sandbox.ExecutionResult) string {
	if len(failed) == 0 {
		return ""
	}

	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%d|%d|%s", r.StepID, r.ExitCode, firstLine(r.Stderr+r.Stdout)))
	}
	sort.Strings(parts)

	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:8])
}

// buildFeedback formats the failure context for the next planning round,
// trimmed to a prompt-sized budget.
func buildFeedback(p *plan.Plan, failed []sandbox.ExecutionResult, diff sandbox.DiffStats) string {
	descriptions := make(map[int]string, len(p.Steps))
	for _, s := range p.Steps {
		descriptions[s.ID] = s.Description
	}

	var b strings.Builder
	for _, r := range failed {
		fmt.Fprintf(&b, "Step %d (%s) failed with exit code %d.\n", r.StepID, descriptions[r.StepID], r.ExitCode)
		if out := strings.TrimSpace(r.Stderr); out != "" {
			fmt.Fprintf(&b, "stderr:\n%s\n", out)
		}
		if out := strings.TrimSpace(r.Stdout); out != "" {
			fmt.Fprintf(&b, "stdout:\n%s\n", out)
		}
	}
	if len(diff.FilesChanged) > 0 {
		fmt.Fprintf(&b, "Files touched so far: %s\n", strings.Join(diff.FilesChanged, ", "))
	}

	feedback := b.String()
	if len(feedback) > maxFeedbackBytes {
		feedback = feedback[:maxFeedbackBytes] + "\n... [feedback truncated]"
	}
	return feedback
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
