package config

import (
	"os"

	"github.com/spf13/viper"
)

// Config holds all gantry agent configuration.
type Config struct {
	Repo       RepoConfig       `mapstructure:"repo"`
	Budget     BudgetConfig     `mapstructure:"budget"`
	Loop       LoopConfig       `mapstructure:"loop"`
	Sandbox    SandboxConfig    `mapstructure:"sandbox"`
	Guardrails GuardrailsConfig `mapstructure:"guardrails"`
	LLM        LLMConfig        `mapstructure:"llm"`
}

// RepoConfig holds target repository settings.
type RepoConfig struct {
	Root     string `mapstructure:"root"`
	AuditDir string `mapstructure:"audit_dir"`
}

// BudgetConfig holds per-job budget limits. Zero means unlimited.
type BudgetConfig struct {
	MaxTokensPerTask int     `mapstructure:"max_tokens_per_task"`
	MaxCostPerTask   float64 `mapstructure:"max_cost_per_task"`
	MaxJobMinutes    int     `mapstructure:"max_job_minutes"`
}

// LoopConfig holds control-loop settings.
type LoopConfig struct {
	MaxRetries          int     `mapstructure:"max_retries"`
	StateTimeoutSeconds int     `mapstructure:"state_timeout_seconds"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MaxPlanSteps        int     `mapstructure:"max_plan_steps"`
	PlannerRetries      int     `mapstructure:"planner_retries"`
}

// SandboxConfig holds sandbox isolation settings.
type SandboxConfig struct {
	Runtime               string `mapstructure:"runtime"`
	CommandTimeoutSeconds int    `mapstructure:"command_timeout_seconds"`
	CPUSeconds            int    `mapstructure:"cpu_seconds"`
	MemoryBytes           int64  `mapstructure:"memory_bytes"`
	MaxOutputBytes        int    `mapstructure:"max_output_bytes"`
	NetworkIsolation      bool   `mapstructure:"network_isolation"`
	MaxConcurrent         int    `mapstructure:"max_concurrent"`
}

// GuardrailsConfig holds guardrail gate settings.
type GuardrailsConfig struct {
	AllowedCommands []string `mapstructure:"allowed_commands"`
}

// LLMConfig holds completion-backend settings.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LoadConfigWithFile loads configuration from a specific file if provided,
// otherwise falls back to LoadConfig with the working directory.
func LoadConfigWithFile(workDir, configFile string) (*Config, error) {
	if configFile != "" {
		return LoadConfigFromPath(configFile)
	}
	return LoadConfig(workDir)
}

// LoadConfig loads configuration from gantry.yaml in the given directory.
// If no config file exists, sensible defaults are returned.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("gantry")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfigFromPath loads configuration from a specific file path.
func LoadConfigFromPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			if err := v.Unmarshal(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults sets all default values for configuration.
func setDefaults(v *viper.Viper) {
	// Repo defaults
	v.SetDefault("repo.root", ".")
	v.SetDefault("repo.audit_dir", DefaultAuditDir)

	// Budget defaults
	v.SetDefault("budget.max_tokens_per_task", DefaultMaxTokensPerTask)
	v.SetDefault("budget.max_cost_per_task", DefaultMaxCostPerTask)
	v.SetDefault("budget.max_job_minutes", DefaultMaxJobMinutes)

	// Loop defaults
	v.SetDefault("loop.max_retries", DefaultMaxRetries)
	v.SetDefault("loop.state_timeout_seconds", DefaultStateTimeoutSeconds)
	v.SetDefault("loop.confidence_threshold", DefaultConfidenceThreshold)
	v.SetDefault("loop.max_plan_steps", DefaultMaxPlanSteps)
	v.SetDefault("loop.planner_retries", DefaultPlannerRetries)

	// Sandbox defaults
	v.SetDefault("sandbox.runtime", DefaultSandboxRuntime)
	v.SetDefault("sandbox.command_timeout_seconds", DefaultCommandTimeoutSeconds)
	v.SetDefault("sandbox.cpu_seconds", DefaultCPUSeconds)
	v.SetDefault("sandbox.memory_bytes", int64(DefaultMemoryBytes))
	v.SetDefault("sandbox.max_output_bytes", DefaultMaxOutputBytes)
	v.SetDefault("sandbox.network_isolation", true)
	v.SetDefault("sandbox.max_concurrent", DefaultMaxConcurrentSandboxes)

	// Guardrail defaults
	v.SetDefault("guardrails.allowed_commands", DefaultAllowedCommands())

	// LLM defaults
	v.SetDefault("llm.provider", DefaultLLMProvider)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.max_tokens", DefaultLLMMaxTokens)
	v.SetDefault("llm.temperature", DefaultLLMTemperature)
}
