// Package guardrail implements the deny-by-default gate that validates the
// task text before planning and every proposed step before execution. It is
// a pure classifier over already-materialized inputs; it never executes
// untrusted content itself.
package guardrail

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity grades how serious a guardrail finding is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ReasonCode identifies why the gate rejected an input.
type ReasonCode string

const (
	ReasonCommandNotAllowed ReasonCode = "command_not_allowed"
	ReasonForbiddenToken    ReasonCode = "forbidden_token"
	ReasonShellChaining     ReasonCode = "shell_chaining"
	ReasonPathEscape        ReasonCode = "path_escape"
	ReasonSecretDetected    ReasonCode = "secret_detected"
	ReasonPromptInjection   ReasonCode = "prompt_injection"
	ReasonUnsafeTask        ReasonCode = "unsafe_task"
	ReasonScopeExpansion    ReasonCode = "scope_expansion"
	ReasonVagueTask         ReasonCode = "vague_task"
	ReasonInvalidStep       ReasonCode = "invalid_step"
)

// Incident records a guardrail rejection or other security-relevant event.
// Incidents are append-only and are never silently dropped.
type Incident struct {
	// IncidentID is the unique identifier for this incident.
	IncidentID string `json:"incident_id"`

	// JobID is the job the incident belongs to.
	JobID string `json:"job_id"`

	// Reason identifies the rejection class.
	Reason ReasonCode `json:"reason"`

	// Severity grades the incident.
	Severity Severity `json:"severity"`

	// Detail is a human-readable description. Offending content is
	// redacted before it is stored here.
	Detail string `json:"detail"`

	// Timestamp is when the incident was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// NewIncident creates an incident for the given job.
func NewIncident(jobID string, reason ReasonCode, severity Severity, detail string) Incident {
	return Incident{
		IncidentID: uuid.New().String()[:8],
		JobID:      jobID,
		Reason:     reason,
		Severity:   severity,
		Detail:     detail,
		Timestamp:  time.Now(),
	}
}

// IncidentLog is an append-only, concurrency-safe incident store.
type IncidentLog struct {
	mu        sync.Mutex
	incidents []Incident
}

// NewIncidentLog creates an empty incident log.
func NewIncidentLog() *IncidentLog {
	return &IncidentLog{}
}

// Append records an incident. Incidents cannot be removed or modified.
func (l *IncidentLog) Append(inc Incident) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.incidents = append(l.incidents, inc)
}

// All returns a copy of the recorded incidents in append order.
func (l *IncidentLog) All() []Incident {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Incident, len(l.incidents))
	copy(out, l.incidents)
	return out
}

// ForJob returns the incidents recorded for the given job, in append order.
func (l *IncidentLog) ForJob(jobID string) []Incident {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Incident
	for _, inc := range l.incidents {
		if inc.JobID == jobID {
			out = append(out, inc)
		}
	}
	return out
}

// Len returns the number of recorded incidents.
func (l *IncidentLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.incidents)
}
