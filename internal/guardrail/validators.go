package guardrail

import (
	"fmt"
	"regexp"
	"strings"
)

// TaskVerdict is the result of validating a raw task description.
type TaskVerdict struct {
	// Allowed reports whether planning may proceed.
	Allowed bool

	// Ambiguous reports that the task lacks a verifiable objective. The
	// controller routes this to a safe stop, not an error stop.
	Ambiguous bool

	// Reason identifies the rejection class when not allowed.
	Reason ReasonCode

	// Severity grades the rejection.
	Severity Severity

	// Detail is a human-readable explanation.
	Detail string

	// Warnings are non-fatal findings. Each one later reduces the
	// confidence score.
	Warnings []string
}

// vaguePatterns match tasks with no verifiable objective. An ambiguous
// verdict requests a safe stop rather than guessing intent.
var vaguePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^improve\s+performance$`),
	regexp.MustCompile(`(?i)^make\s+it\s+faster$`),
	regexp.MustCompile(`(?i)^optimize$`),
	regexp.MustCompile(`(?i)^fix\s+bugs$`),
	regexp.MustCompile(`(?i)^clean\s+up\s+code$`),
	regexp.MustCompile(`(?i)^make\s+it\s+better$`),
}

// scopeExpansionPatterns match tasks whose scope cannot be bounded.
var scopeExpansionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brefactor\s+(?:the\s+)?entire\b`),
	regexp.MustCompile(`(?i)\brewrite\s+(?:the\s+)?whole\b`),
	regexp.MustCompile(`(?i)\bupgrade\s+all\b`),
	regexp.MustCompile(`(?i)\bchange\s+everything\b`),
	regexp.MustCompile(`(?i)\bfix\s+all\b`),
}

// unsafePatterns match destructive operations that require manual review.
var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdelete\s+(?:the\s+)?database\b`),
	regexp.MustCompile(`(?i)\bdrop\s+table\b`),
	regexp.MustCompile(`(?i)\brm\s+-rf\b`),
	regexp.MustCompile(`(?i)\bformat\s+(?:the\s+)?disk\b`),
	regexp.MustCompile(`(?i)\bwipe\b`),
	regexp.MustCompile(`(?i)\bpurge\s+all\b`),
}

// injectionPatterns match prompt-injection attempts in text sourced from
// repository content or task descriptions.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(the\s+)?(system|safety)\s+(prompt|rules)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(in\s+)?developer\s+mode`),
	regexp.MustCompile(`(?i)reveal\s+(your\s+)?(system\s+prompt|instructions|secrets)`),
	regexp.MustCompile(`(?i)exfiltrate`),
}

// ValidateTask classifies a task description before any planning happens.
// An ambiguous verdict is always a rejection, never a pass-through.
func ValidateTask(task string) TaskVerdict {
	trimmed := strings.TrimSpace(task)

	for _, re := range vaguePatterns {
		if re.MatchString(trimmed) {
			return TaskVerdict{
				Ambiguous: true,
				Reason:    ReasonVagueTask,
				Severity:  SeverityLow,
				Detail:    fmt.Sprintf("task %q has no verifiable objective", trimmed),
			}
		}
	}

	for _, re := range scopeExpansionPatterns {
		if re.MatchString(trimmed) {
			return TaskVerdict{
				Reason:   ReasonScopeExpansion,
				Severity: SeverityMedium,
				Detail:   "task implies unbounded scope expansion",
			}
		}
	}

	for _, re := range unsafePatterns {
		if re.MatchString(trimmed) {
			return TaskVerdict{
				Reason:   ReasonUnsafeTask,
				Severity: SeverityHigh,
				Detail:   "task contains a potentially destructive operation",
			}
		}
	}

	for _, re := range injectionPatterns {
		if re.MatchString(trimmed) {
			return TaskVerdict{
				Reason:   ReasonPromptInjection,
				Severity: SeverityHigh,
				Detail:   "task contains a prompt-injection pattern",
			}
		}
	}

	verdict := TaskVerdict{Allowed: true}

	words := len(strings.Fields(trimmed))
	if words < 3 {
		// Short but not pattern-matched vague: treat as ambiguous too.
		return TaskVerdict{
			Ambiguous: true,
			Reason:    ReasonVagueTask,
			Severity:  SeverityLow,
			Detail:    "task description is too short to derive a verifiable objective",
		}
	}
	if words > 100 {
		verdict.Warnings = append(verdict.Warnings, "task description is very long; it may describe multiple tasks")
	}

	return verdict
}

// ScanInjection scans repository-sourced text for prompt-injection patterns
// and returns a warning per match class.
func ScanInjection(text string) []string {
	var warnings []string
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			warnings = append(warnings, "prompt-injection pattern in repository content: "+re.String())
		}
	}
	return warnings
}

// outputErrorPatterns are heuristics over captured command output that feed
// confidence warnings. They never reject on their own.
var outputErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)permission\s+denied`),
	regexp.MustCompile(`(?i)command\s+not\s+found`),
	regexp.MustCompile(`(?i)no\s+such\s+file`),
	regexp.MustCompile(`(?i)syntax\s+error`),
	regexp.MustCompile(`(?i)fatal\s+error`),
	regexp.MustCompile(`(?i)traceback`),
}

// ScanOutput returns a warning for every error-shaped pattern found in
// captured command output.
func ScanOutput(output string) []string {
	var warnings []string
	for _, re := range outputErrorPatterns {
		if re.MatchString(output) {
			warnings = append(warnings, "output matches error pattern "+re.String())
		}
	}
	return warnings
}
