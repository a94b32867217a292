package job

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/castorlabs/gantry/internal/guardrail"
)

// ErrInvalidRequest is returned for malformed submissions, before any job
// is created.
var ErrInvalidRequest = errors.New("invalid request")

// ErrBudgetExceeded marks a fatal budget overrun.
var ErrBudgetExceeded = errors.New("budget exceeded")

// ErrStateTimeout marks a state that did not complete within its
// wall-clock allotment.
var ErrStateTimeout = errors.New("state timeout")

// Job is one submitted task against one target repository, tracked end to
// end. A job is owned exclusively by its controller for its lifetime and
// is immutable after reaching a terminal state.
type Job struct {
	// ID is the unique job identifier.
	ID string `json:"id"`

	// Task is the natural-language task description.
	Task string `json:"task"`

	// RepoPath is the target repository root.
	RepoPath string `json:"repo_path"`

	// CreatedAt is the submission time.
	CreatedAt time.Time `json:"created_at"`

	// Limits is the job's budget.
	Limits BudgetLimits `json:"limits"`

	// Machine holds the job's state and transition log.
	Machine *Machine `json:"-"`

	mu sync.Mutex

	attemptCount int

	// Final outcome fields, set exactly once at finalization.
	finalState      State
	completedAt     time.Time
	tokenUsage      int
	costUSD         float64
	confidenceScore float64
	hasConfidence   bool
	finalized       bool
	finalReason     string
}

// New validates the submission and creates a job in PLANNING.
func New(task, repoPath string, limits BudgetLimits) (*Job, error) {
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("%w: task must not be empty", ErrInvalidRequest)
	}
	if strings.TrimSpace(repoPath) == "" {
		return nil, fmt.Errorf("%w: repository path must not be empty", ErrInvalidRequest)
	}
	return &Job{
		ID:        uuid.New().String()[:8],
		Task:      task,
		RepoPath:  repoPath,
		CreatedAt: time.Now(),
		Limits:    limits,
		Machine:   NewMachine(),
	}, nil
}

// AttemptCount returns the number of planning rounds started.
func (j *Job) AttemptCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attemptCount
}

// BeginAttempt increments the attempt counter and returns its new value.
func (j *Job) BeginAttempt() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attemptCount++
	return j.attemptCount
}

// Finalize records the terminal outcome. Finalization is idempotent: the
// first call wins and later calls are ignored, so final_state is set
// exactly once.
func (j *Job) Finalize(state State, reason string, tokenUsage int, costUSD float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finalized {
		return
	}
	j.finalized = true
	j.finalState = state
	j.finalReason = reason
	j.completedAt = time.Now()
	j.tokenUsage = tokenUsage
	j.costUSD = costUSD
}

// SetConfidence records the attempt's confidence score.
func (j *Job) SetConfidence(score float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finalized {
		return
	}
	j.confidenceScore = score
	j.hasConfidence = true
}

// Finalized reports whether a terminal outcome has been recorded.
func (j *Job) Finalized() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finalized
}

// Snapshot is a read-only view of a job's externally visible status.
// Incidents are recorded outside the job and folded in by the service.
type Snapshot struct {
	ID              string               `json:"id"`
	State           State                `json:"state"`
	AttemptCount    int                  `json:"attempt_count"`
	TokenUsage      int                  `json:"token_usage"`
	CostUSD         float64              `json:"cost_usd"`
	ConfidenceScore *float64             `json:"confidence_score,omitempty"`
	FinalReason     string               `json:"final_reason,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	Transitions     []Transition         `json:"transitions"`
	Incidents       []guardrail.Incident `json:"incidents,omitempty"`
}

// Snapshot returns the job's current externally visible status.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := Snapshot{
		ID:           j.ID,
		State:        j.Machine.Current(),
		AttemptCount: j.attemptCount,
		TokenUsage:   j.tokenUsage,
		CostUSD:      j.costUSD,
		Transitions:  j.Machine.Log(),
	}
	if j.hasConfidence {
		score := j.confidenceScore
		snap.ConfidenceScore = &score
	}
	if j.finalized {
		snap.FinalReason = j.finalReason
		completed := j.completedAt
		snap.CompletedAt = &completed
	}
	return snap
}
