// Package confidence scores a completed attempt. The score gates whether
// output is finalized; the completion threshold itself is configuration
// owned by the controller, not this package.
package confidence

import (
	"strings"

	"github.com/castorlabs/gantry/internal/plan"
	"github.com/castorlabs/gantry/internal/sandbox"
)

// Score is a derived [0,1] trust estimate plus its contributing signals.
// It is computed once per attempt, over a fully materialized result
// sequence, and never mutated.
type Score struct {
	// Value is the combined score in [0,1].
	Value float64 `json:"value"`

	// TestsPassedRatio is the fraction of required test steps that passed.
	TestsPassedRatio float64 `json:"tests_passed_ratio"`

	// ScopeRatio is changed lines relative to task-description length;
	// large values suggest scope creep.
	ScopeRatio float64 `json:"scope_ratio"`

	// GuardrailWarnings is the count of non-fatal guardrail findings.
	GuardrailWarnings int `json:"guardrail_warnings"`

	// AttemptsUsed is the number of attempts consumed including this one.
	AttemptsUsed int `json:"attempts_used"`
}

// Signal weights. Test outcomes dominate; the remaining signals apply
// bounded penalties.
const (
	testWeight        = 0.7
	scopePenaltyMax   = 0.15
	warningPenalty    = 0.05
	warningPenaltyMax = 0.15
	attemptPenalty    = 0.05
	attemptPenaltyMax = 0.2
	scopeRatioCeiling = 50.0
)

// Evaluate computes the score for one attempt. The function is
// deterministic: the same (plan, results, diff, attempts, warnings) input
// always yields the same score.
func Evaluate(p *plan.Plan, results []sandbox.ExecutionResult, diff sandbox.DiffStats, task string, attemptsUsed, guardrailWarnings int) Score {
	score := Score{
		AttemptsUsed:      attemptsUsed,
		GuardrailWarnings: guardrailWarnings,
	}

	score.TestsPassedRatio = testsPassedRatio(p, results)
	score.ScopeRatio = scopeRatio(diff, task)

	value := testWeight * score.TestsPassedRatio

	// Non-test required steps contribute the remainder of the base.
	value += (1 - testWeight) * requiredPassedRatio(p, results)

	// Scope-creep penalty grows with the changed-lines to task-length
	// ratio, capped.
	scopePenalty := (score.ScopeRatio / scopeRatioCeiling) * scopePenaltyMax
	if scopePenalty > scopePenaltyMax {
		scopePenalty = scopePenaltyMax
	}
	value -= scopePenalty

	warnPenalty := float64(guardrailWarnings) * warningPenalty
	if warnPenalty > warningPenaltyMax {
		warnPenalty = warningPenaltyMax
	}
	value -= warnPenalty

	// Each retry consumed reduces confidence monotonically.
	retryPenalty := float64(attemptsUsed-1) * attemptPenalty
	if retryPenalty > attemptPenaltyMax {
		retryPenalty = attemptPenaltyMax
	}
	value -= retryPenalty

	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	score.Value = value
	return score
}

// testsPassedRatio returns the fraction of required test steps with a
// passing result. A plan with no test steps scores zero here: an
// unverified attempt earns no test credit.
func testsPassedRatio(p *plan.Plan, results []sandbox.ExecutionResult) float64 {
	passed := make(map[int]bool, len(results))
	for _, r := range results {
		passed[r.StepID] = r.Passed()
	}

	total, ok := 0, 0
	for _, s := range p.Steps {
		if s.Kind != plan.StepTest || !s.Required {
			continue
		}
		total++
		if passed[s.ID] {
			ok++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(ok) / float64(total)
}

// requiredPassedRatio returns the fraction of all required steps that
// passed.
func requiredPassedRatio(p *plan.Plan, results []sandbox.ExecutionResult) float64 {
	passed := make(map[int]bool, len(results))
	for _, r := range results {
		passed[r.StepID] = r.Passed()
	}

	total, ok := 0, 0
	for _, s := range p.Steps {
		if !s.Required {
			continue
		}
		total++
		if passed[s.ID] {
			ok++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(ok) / float64(total)
}

// scopeRatio relates the size of the change to the size of the ask.
func scopeRatio(diff sandbox.DiffStats, task string) float64 {
	words := len(strings.Fields(task))
	if words == 0 {
		words = 1
	}
	return float64(diff.LinesChanged) / float64(words)
}
