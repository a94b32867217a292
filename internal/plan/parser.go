package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// planDocument is the JSON shape the planning backend is asked to emit.
type planDocument struct {
	Steps []stepDocument `json:"steps"`
	// Strategy describes how the plan's outcome should be verified.
	Strategy string `json:"strategy"`
	// Ambiguous is set by the backend when no verifiable objective can be
	// derived from the task.
	Ambiguous bool   `json:"ambiguous"`
	Reason    string `json:"reason"`
}

type stepDocument struct {
	ID          int    `json:"id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Command     string `json:"command"`
	Path        string `json:"path"`
	Content     string `json:"content"`
	Required    *bool  `json:"required"`
}

// ErrAmbiguous is returned by Parse when the backend declares the task
// ambiguous. It is a legitimate planning outcome, not a parse failure.
type ErrAmbiguous struct {
	Reason string
}

func (e *ErrAmbiguous) Error() string {
	if e.Reason == "" {
		return "task is ambiguous"
	}
	return "task is ambiguous: " + e.Reason
}

// Parse parses a completion backend's plan output into a Plan. Markdown
// code fences around the JSON are stripped. Anything that does not decode
// into a complete, well-formed document is an error; a partially parsed
// plan is never returned.
func Parse(raw, jobID string, attempt int) (*Plan, error) {
	clean := stripFences(raw)

	var doc planDocument
	dec := json.NewDecoder(strings.NewReader(clean))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid plan JSON: %w", err)
	}

	if doc.Ambiguous {
		return nil, &ErrAmbiguous{Reason: doc.Reason}
	}

	p := New(jobID, attempt)
	p.Strategy = doc.Strategy
	for i, sd := range doc.Steps {
		step := Step{
			ID:          i + 1,
			Kind:        StepKind(sd.Kind),
			Description: sd.Description,
			Command:     sd.Command,
			Path:        sd.Path,
			Content:     sd.Content,
			Required:    true,
		}
		if sd.Required != nil {
			step.Required = *sd.Required
		}
		if err := step.Validate(); err != nil {
			return nil, fmt.Errorf("invalid plan: %w", err)
		}
		p.Steps = append(p.Steps, step)
	}

	return p, nil
}

// stripFences removes a leading/trailing markdown code fence if present.
func stripFences(raw string) string {
	clean := strings.TrimSpace(raw)
	if strings.HasPrefix(clean, "```") {
		if idx := strings.IndexByte(clean, '\n'); idx >= 0 {
			clean = clean[idx+1:]
		}
	}
	if strings.HasSuffix(clean, "```") {
		if idx := strings.LastIndexByte(clean, '\n'); idx >= 0 {
			clean = clean[:idx]
		}
	}
	return strings.TrimSpace(clean)
}
