package config

// Repo defaults
const (
	DefaultRepoRoot = "."
	DefaultAuditDir = ".gantry"
)

// Budget defaults
const (
	DefaultMaxTokensPerTask = 120000
	DefaultMaxCostPerTask   = 5.0
	DefaultMaxJobMinutes    = 60
)

// Loop defaults
const (
	DefaultMaxRetries          = 2
	DefaultStateTimeoutSeconds = 300
	DefaultConfidenceThreshold = 0.8
	DefaultMaxPlanSteps        = 10
	DefaultPlannerRetries      = 2
)

// Sandbox defaults and hard ceilings. Configured limits may never exceed
// the ceilings.
const (
	DefaultSandboxRuntime         = "local"
	DefaultCommandTimeoutSeconds  = 600
	DefaultCPUSeconds             = 120
	DefaultMemoryBytes            = 2 * 1024 * 1024 * 1024
	DefaultMaxOutputBytes         = 10 * 1024 * 1024
	DefaultMaxConcurrentSandboxes = 4

	CeilingCommandTimeoutSeconds = 1200
	CeilingCPUSeconds            = 300
	CeilingMemoryBytes           = 4 * 1024 * 1024 * 1024
	CeilingMaxOutputBytes        = 50 * 1024 * 1024
)

// LLM defaults
const (
	DefaultLLMProvider    = "openai"
	DefaultLLMMaxTokens   = 4096
	DefaultLLMTemperature = 0.1
)

// DefaultAllowedCommands returns the default shell-command allowlist.
// The guardrail gate is deny-by-default; anything not listed here is
// rejected before it reaches the sandbox.
func DefaultAllowedCommands() []string {
	return []string{
		"python", "python3", "pip", "pytest", "pylint",
		"node", "npm", "yarn", "pnpm", "eslint",
		"go", "gofmt",
		"ls", "cat", "echo", "grep", "find", "wc", "head", "tail", "pwd",
		"mkdir", "cp", "mv", "touch", "date",
	}
}
