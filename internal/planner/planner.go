// Package planner turns a task description and repository context into an
// ordered action plan via the completion backend.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/castorlabs/gantry/internal/llm"
	"github.com/castorlabs/gantry/internal/plan"
)

// systemPrompt instructs the backend to emit a strict JSON plan document.
const systemPrompt = `You are a code-modification planner. Given a task and a summary of the
target repository, produce an ordered plan as a single JSON object:

{
  "steps": [
    {"id": 1, "kind": "edit", "description": "...", "path": "relative/path", "content": "full file content", "required": true},
    {"id": 2, "kind": "shell", "description": "...", "command": "single command, no shell chaining", "required": false},
    {"id": 3, "kind": "test", "description": "...", "command": "test command", "required": true}
  ],
  "strategy": "how the result will be verified"
}

Rules:
- kinds are exactly "shell", "edit", "test"; every plan ends with a "test" step
- one command per shell step; never chain with ;, &&, || or pipes
- paths are relative to the repository root; never write outside it
- if the task has no verifiable objective, respond with {"ambiguous": true, "reason": "..."}
- respond with JSON only, no prose`

// Result is the outcome of one planning round.
type Result struct {
	// Plan is the produced plan; nil when Ambiguous is set.
	Plan *plan.Plan

	// Ambiguous reports that no verifiable objective could be derived.
	// This is a legitimate outcome routed to a safe stop, not an error.
	Ambiguous bool

	// Reason explains an ambiguous outcome.
	Reason string

	// Usage is the token consumption of the planning call.
	Usage llm.Usage

	// CostUSD is the cost of the planning call.
	CostUSD float64
}

// Planner produces plans from task descriptions.
type Planner struct {
	client llm.Client
	policy llm.RetryPolicy
}

// New creates a planner backed by the given completion client. The policy
// governs transport retries of the planning call; its MaxRetries comes
// from the planner_retries configuration.
func New(client llm.Client, policy llm.RetryPolicy) *Planner {
	return &Planner{client: client, policy: policy}
}

// Plan generates a plan for the task. repoContext is a bounded snapshot of
// the repository supplied by the caller; feedback carries the reflection
// engine's corrective instruction on retries and is empty on the first
// round. The returned plan is always fully parsed and validated; malformed
// backend output is an error, never a partial plan.
func (p *Planner) Plan(ctx context.Context, jobID, task, repoContext, feedback string, attempt int) (*Result, error) {
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("task cannot be empty")
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Task:\n%s\n", task)
	if repoContext != "" {
		fmt.Fprintf(&prompt, "\nRepository context:\n%s\n", repoContext)
	}
	if feedback != "" {
		fmt.Fprintf(&prompt, "\nThe previous attempt failed. Corrective feedback:\n%s\n", feedback)
	}

	resp, err := llm.CompleteWithRetry(ctx, p.client, p.policy, llm.Request{
		SystemPrompt: systemPrompt,
		Prompt:       prompt.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("planning call failed: %w", err)
	}

	result := &Result{Usage: resp.Usage, CostUSD: resp.CostUSD}

	parsed, err := plan.Parse(resp.Text, jobID, attempt)
	if err != nil {
		var ambiguous *plan.ErrAmbiguous
		if errors.As(err, &ambiguous) {
			result.Ambiguous = true
			result.Reason = ambiguous.Reason
			return result, nil
		}
		return nil, fmt.Errorf("planner produced malformed output: %w", err)
	}

	result.Plan = parsed
	return result, nil
}
