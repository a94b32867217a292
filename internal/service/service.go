// Package service is the external surface of the agent: job submission,
// status queries, and event subscription. It owns the worker pool that
// runs control loops and the global cap on concurrent sandboxes.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/castorlabs/gantry/internal/config"
	"github.com/castorlabs/gantry/internal/controller"
	"github.com/castorlabs/gantry/internal/guardrail"
	"github.com/castorlabs/gantry/internal/job"
	"github.com/castorlabs/gantry/internal/llm"
	"github.com/castorlabs/gantry/internal/planner"
	"github.com/castorlabs/gantry/internal/repoctx"
	"github.com/castorlabs/gantry/internal/sandbox"
)

// ErrUnknownJob is returned by Status for an ID that was never submitted.
var ErrUnknownJob = fmt.Errorf("unknown job")

// Service accepts tasks, runs each in its own goroutine, and bounds the
// number of concurrently provisioned sandboxes with a semaphore. Jobs
// past the cap queue on the semaphore rather than being rejected.
type Service struct {
	cfg       *config.Config
	client    llm.Client
	incidents *guardrail.IncidentLog
	emitter   *controller.Emitter

	sem chan struct{}

	mu   sync.Mutex
	jobs map[string]*job.Job

	wg     sync.WaitGroup
	closed bool
}

// New creates a service using the given completion client. The client is
// shared across jobs; everything else is provisioned per job.
func New(cfg *config.Config, client llm.Client) *Service {
	maxConcurrent := cfg.Sandbox.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Service{
		cfg:       cfg,
		client:    client,
		incidents: guardrail.NewIncidentLog(),
		emitter:   controller.NewEmitter(),
		sem:       make(chan struct{}, maxConcurrent),
		jobs:      make(map[string]*job.Job),
	}
}

// Submit validates the request, registers the job, and starts its control
// loop in the background. The returned ID is immediately valid for
// Status calls.
func (s *Service) Submit(ctx context.Context, task, repoPath string) (string, error) {
	if repoPath == "" {
		repoPath = s.cfg.Repo.Root
	}

	j, err := job.New(task, repoPath, s.budgetLimits())
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", fmt.Errorf("service is shutting down")
	}
	s.jobs[j.ID] = j
	s.wg.Add(1)
	s.mu.Unlock()

	go s.runJob(ctx, j)

	return j.ID, nil
}

// Status returns the externally visible snapshot for a job.
func (s *Service) Status(jobID string) (job.Snapshot, error) {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return job.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	snap := j.Snapshot()
	snap.Incidents = s.incidents.ForJob(jobID)
	return snap, nil
}

// Subscribe returns a channel of transition and incident events across
// all jobs, plus a cancel function that releases the subscription.
func (s *Service) Subscribe() (<-chan controller.Event, func()) {
	return s.emitter.Subscribe()
}

// Incidents returns the guardrail incidents recorded for a job.
func (s *Service) Incidents(jobID string) []guardrail.Incident {
	return s.incidents.ForJob(jobID)
}

// Wait blocks until every submitted job has reached a terminal state.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting new jobs and waits for running ones to finish
// or the context to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.emitter.Close()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// runJob acquires a sandbox slot and drives the job to completion.
func (s *Service) runJob(ctx context.Context, j *job.Job) {
	defer s.wg.Done()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		j.Machine.ForceErrorStop("cancelled while queued: " + ctx.Err().Error())
		j.Finalize(j.Machine.Current(), "cancelled while queued", 0, 0)
		return
	}
	defer func() { <-s.sem }()

	gate := guardrail.NewGate(j.RepoPath, s.cfg.Guardrails.AllowedCommands)

	factory, err := sandbox.NewFactory(
		s.cfg.Sandbox.Runtime,
		s.sandboxLimits(),
		gate,
		s.cfg.Sandbox.NetworkIsolation,
	)
	if err != nil {
		j.Machine.ForceErrorStop("sandbox factory: " + err.Error())
		j.Finalize(j.Machine.Current(), "sandbox factory: "+err.Error(), 0, 0)
		return
	}

	retryPolicy := llm.DefaultRetryPolicy()
	retryPolicy.MaxRetries = s.cfg.Loop.PlannerRetries

	ctrl := controller.New(controller.Deps{
		Gate:      gate,
		Planner:   planner.New(s.client, retryPolicy),
		Sandboxes: factory,
		Context:   repoctx.NewProvider(),
		Incidents: s.incidents,
		Emitter:   s.emitter,
		AuditDir:  s.cfg.Repo.AuditDir,
	}, controller.Options{
		MaxRetries:          s.cfg.Loop.MaxRetries,
		StateTimeout:        time.Duration(s.cfg.Loop.StateTimeoutSeconds) * time.Second,
		ConfidenceThreshold: s.cfg.Loop.ConfidenceThreshold,
		MaxPlanSteps:        s.cfg.Loop.MaxPlanSteps,
	})

	ctrl.Run(ctx, j)
}

func (s *Service) budgetLimits() job.BudgetLimits {
	return job.BudgetLimits{
		MaxTokens:   s.cfg.Budget.MaxTokensPerTask,
		MaxCostUSD:  s.cfg.Budget.MaxCostPerTask,
		MaxDuration: time.Duration(s.cfg.Budget.MaxJobMinutes) * time.Minute,
	}
}

func (s *Service) sandboxLimits() sandbox.Limits {
	return sandbox.Limits{
		CPUSeconds:     s.cfg.Sandbox.CPUSeconds,
		Timeout:        time.Duration(s.cfg.Sandbox.CommandTimeoutSeconds) * time.Second,
		MemoryBytes:    s.cfg.Sandbox.MemoryBytes,
		MaxOutputBytes: s.cfg.Sandbox.MaxOutputBytes,
	}
}
