package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/castorlabs/gantry/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default gantry.yaml",
		Long:  "Write a gantry.yaml with the default configuration into the current directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing gantry.yaml")

	return cmd
}

// initFileConfig mirrors the config schema with yaml tags so the
// generated file round-trips through LoadConfig.
type initFileConfig struct {
	Repo struct {
		Root     string `yaml:"root"`
		AuditDir string `yaml:"audit_dir"`
	} `yaml:"repo"`
	Budget struct {
		MaxTokensPerTask int     `yaml:"max_tokens_per_task"`
		MaxCostPerTask   float64 `yaml:"max_cost_per_task"`
		MaxJobMinutes    int     `yaml:"max_job_minutes"`
	} `yaml:"budget"`
	Loop struct {
		MaxRetries          int     `yaml:"max_retries"`
		StateTimeoutSeconds int     `yaml:"state_timeout_seconds"`
		ConfidenceThreshold float64 `yaml:"confidence_threshold"`
		MaxPlanSteps        int     `yaml:"max_plan_steps"`
	} `yaml:"loop"`
	Sandbox struct {
		Runtime               string `yaml:"runtime"`
		CommandTimeoutSeconds int    `yaml:"command_timeout_seconds"`
		NetworkIsolation      bool   `yaml:"network_isolation"`
		MaxConcurrent         int    `yaml:"max_concurrent"`
	} `yaml:"sandbox"`
	Guardrails struct {
		AllowedCommands []string `yaml:"allowed_commands"`
	} `yaml:"guardrails"`
	LLM struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`
}

func runInit(cmd *cobra.Command, force bool) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	path := filepath.Join(workDir, "gantry.yaml")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("gantry.yaml already exists (use --force to overwrite)")
	}

	var fc initFileConfig
	fc.Repo.Root = "."
	fc.Repo.AuditDir = config.DefaultAuditDir
	fc.Budget.MaxTokensPerTask = config.DefaultMaxTokensPerTask
	fc.Budget.MaxCostPerTask = config.DefaultMaxCostPerTask
	fc.Budget.MaxJobMinutes = config.DefaultMaxJobMinutes
	fc.Loop.MaxRetries = config.DefaultMaxRetries
	fc.Loop.StateTimeoutSeconds = config.DefaultStateTimeoutSeconds
	fc.Loop.ConfidenceThreshold = config.DefaultConfidenceThreshold
	fc.Loop.MaxPlanSteps = config.DefaultMaxPlanSteps
	fc.Sandbox.Runtime = config.DefaultSandboxRuntime
	fc.Sandbox.CommandTimeoutSeconds = config.DefaultCommandTimeoutSeconds
	fc.Sandbox.NetworkIsolation = true
	fc.Sandbox.MaxConcurrent = config.DefaultMaxConcurrentSandboxes
	fc.Guardrails.AllowedCommands = config.DefaultAllowedCommands()
	fc.LLM.Provider = config.DefaultLLMProvider
	fc.LLM.MaxTokens = config.DefaultLLMMaxTokens
	fc.LLM.Temperature = config.DefaultLLMTemperature

	data, err := yaml.Marshal(&fc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write gantry.yaml: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
