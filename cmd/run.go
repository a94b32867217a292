package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/castorlabs/gantry/internal/config"
	"github.com/castorlabs/gantry/internal/controller"
	"github.com/castorlabs/gantry/internal/job"
	"github.com/castorlabs/gantry/internal/llm"
	"github.com/castorlabs/gantry/internal/service"
)

func newRunCmd() *cobra.Command {
	var repoPath string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a task to completion",
		Long: `Submit a natural-language task and block until it reaches a terminal
state. State transitions and guardrail incidents are streamed to stdout
as they happen.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, args[0], repoPath, quiet)
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", "", "target repository path (default: repo.root from config)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress event streaming, print only the final result")

	return cmd
}

func runTask(cmd *cobra.Command, task, repoPath string, quiet bool) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := config.LoadConfigWithFile(workDir, GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err := llm.NewGollmClient(llm.GollmOptions{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return fmt.Errorf("failed to create completion client: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := service.New(cfg, client)

	events, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	jobID, err := svc.Submit(ctx, task, repoPath)
	if err != nil {
		return fmt.Errorf("failed to submit task: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Job %s submitted\n", jobID)

	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()

	streamEvents(cmd, events, done, quiet)

	snap, err := svc.Status(jobID)
	if err != nil {
		return fmt.Errorf("failed to read job status: %w", err)
	}

	if path, err := job.SaveSnapshot(cfg.Repo.AuditDir, snap); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Audit record: %s\n", path)
	}

	printSnapshot(cmd, snap)

	if snap.State != job.StateCompleted {
		return fmt.Errorf("job %s stopped in state %s: %s", jobID, snap.State, snap.FinalReason)
	}
	return nil
}

// streamEvents prints events until the job pool drains.
func streamEvents(cmd *cobra.Command, events <-chan controller.Event, done <-chan struct{}, quiet bool) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if quiet {
				continue
			}
			switch ev.Kind {
			case controller.EventTransition:
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s -> %s: %s\n",
					ev.JobID, ev.Transition.From, ev.Transition.To, ev.Transition.Reason)
			case controller.EventIncident:
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] INCIDENT %s (%s): %s\n",
					ev.JobID, ev.Incident.Reason, ev.Incident.Severity, ev.Incident.Detail)
			}
		case <-done:
			return
		}
	}
}

func printSnapshot(cmd *cobra.Command, snap job.Snapshot) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nJob:        %s\n", snap.ID)
	fmt.Fprintf(out, "State:      %s\n", snap.State)
	fmt.Fprintf(out, "Attempts:   %d\n", snap.AttemptCount)
	fmt.Fprintf(out, "Tokens:     %d\n", snap.TokenUsage)
	fmt.Fprintf(out, "Cost:       $%.4f\n", snap.CostUSD)
	if snap.ConfidenceScore != nil {
		fmt.Fprintf(out, "Confidence: %.2f\n", *snap.ConfidenceScore)
	}
	if snap.FinalReason != "" {
		fmt.Fprintf(out, "Reason:     %s\n", snap.FinalReason)
	}
	if len(snap.Incidents) > 0 {
		fmt.Fprintf(out, "Incidents:  %d\n", len(snap.Incidents))
		for _, inc := range snap.Incidents {
			fmt.Fprintf(out, "  %s (%s): %s\n", inc.Reason, inc.Severity, inc.Detail)
		}
	}
}
