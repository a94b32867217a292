package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/castorlabs/gantry/internal/config"
	"github.com/castorlabs/gantry/internal/job"
	"github.com/castorlabs/gantry/internal/plan"
)

func newStatusCmd() *cobra.Command {
	var showPlans bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the recorded status of a job",
		Long:  "Show the persisted audit record of a job: final state, attempts, budgets, and state transitions.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args[0], showPlans)
		},
	}

	cmd.Flags().BoolVar(&showPlans, "plans", false, "also list the persisted plan records for the job")

	return cmd
}

func runStatus(cmd *cobra.Command, jobID string, showPlans bool) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := config.LoadConfigWithFile(workDir, GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	snap, err := job.LoadSnapshot(cfg.Repo.AuditDir, jobID)
	if err != nil {
		return fmt.Errorf("no audit record for job %s: %w", jobID, err)
	}

	printSnapshot(cmd, snap)

	out := cmd.OutOrStdout()
	if len(snap.Transitions) > 0 {
		fmt.Fprintf(out, "\nTransitions:\n")
		for _, t := range snap.Transitions {
			fmt.Fprintf(out, "  %s  %s -> %s  %s\n",
				t.Timestamp.Format("15:04:05"), t.From, t.To, t.Reason)
		}
	}

	if showPlans {
		records, err := plan.LoadRecords(cfg.Repo.AuditDir, jobID)
		if err != nil {
			return fmt.Errorf("failed to load plan records: %w", err)
		}
		fmt.Fprintf(out, "\nPlans:\n")
		for _, p := range records {
			fmt.Fprintf(out, "  attempt %d: plan %s, %d steps (%s)\n",
				p.Attempt, p.PlanID, len(p.Steps), p.Strategy)
		}
	}

	return nil
}
