package guardrail

import (
	"fmt"

	"github.com/castorlabs/gantry/internal/plan"
)

// StepVerdict is the result of checking a single proposed step.
type StepVerdict struct {
	// Allowed reports whether the step may be dispatched to the sandbox.
	Allowed bool

	// Reason identifies the rejection class when not allowed.
	Reason ReasonCode

	// Severity grades the rejection.
	Severity Severity

	// Detail is a human-readable explanation with offending content
	// redacted.
	Detail string

	// Warnings are non-fatal findings attached to an allowed step.
	Warnings []string
}

// Gate validates the task text before planning and each proposed step
// before execution. It is the only security boundary between untrusted,
// model-generated plans and the sandbox. An ambiguous classification is
// always a rejection.
type Gate struct {
	repoRoot  string
	allowlist map[string]bool
}

// NewGate creates a gate for the given repository root and command
// allowlist.
func NewGate(repoRoot string, allowedCommands []string) *Gate {
	allowlist := make(map[string]bool, len(allowedCommands))
	for _, cmd := range allowedCommands {
		allowlist[cmd] = true
	}
	return &Gate{repoRoot: repoRoot, allowlist: allowlist}
}

// CheckTask classifies the raw task description.
func (g *Gate) CheckTask(task string) TaskVerdict {
	return ValidateTask(task)
}

// CheckStep classifies one proposed step. Every step must pass this check
// immediately before it executes; a rejection is final for the whole job.
func (g *Gate) CheckStep(step plan.Step) StepVerdict {
	if err := step.Validate(); err != nil {
		return StepVerdict{
			Reason:   ReasonInvalidStep,
			Severity: SeverityHigh,
			Detail:   err.Error(),
		}
	}

	switch step.Kind {
	case plan.StepShell, plan.StepTest:
		cv := CheckCommand(step.Command, g.allowlist)
		if !cv.Allowed {
			return StepVerdict{
				Reason:   cv.Reason,
				Severity: SeverityHigh,
				Detail:   cv.Detail,
			}
		}

	case plan.StepEdit:
		if !CheckPath(g.repoRoot, step.Path) {
			return StepVerdict{
				Reason:   ReasonPathEscape,
				Severity: SeverityHigh,
				Detail:   fmt.Sprintf("path %q escapes the repository root", step.Path),
			}
		}
		if secrets := ScanSecrets(step.Content); len(secrets) > 0 {
			// A secret written to a tracked file would be persisted in the
			// diff; reject rather than redact.
			return StepVerdict{
				Reason:   ReasonSecretDetected,
				Severity: SeverityHigh,
				Detail:   fmt.Sprintf("edit content contains a %s credential (%s)", secrets[0].Type, secrets[0].Redacted),
			}
		}
	}

	verdict := StepVerdict{Allowed: true}
	verdict.Warnings = append(verdict.Warnings, ScanInjection(step.Content)...)
	return verdict
}

// SanitizeOutput redacts credential-shaped strings from captured command
// output and returns the sanitized text plus warnings for any error-shaped
// patterns it noticed. This runs on every sandbox capture before the output
// is attached to an execution result.
func (g *Gate) SanitizeOutput(output string) (string, []string) {
	sanitized := output
	var warnings []string
	if secrets := ScanSecrets(output); len(secrets) > 0 {
		sanitized = RedactSecrets(output)
		for _, s := range secrets {
			warnings = append(warnings, "redacted "+s.Type+" from captured output")
		}
	}
	warnings = append(warnings, ScanOutput(sanitized)...)
	return sanitized, warnings
}
