package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

// GetConfigFile returns the config file path from the flag.
func GetConfigFile() string {
	return cfgFile
}

// NewRootCmd creates the root command for the gantry CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gantry",
		Short: "Autonomous code-modification agent",
		Long: `Gantry accepts a natural-language task against a code repository and
drives it to completion autonomously: it plans concrete steps with an LLM,
executes them inside an isolated sandbox, verifies the result with tests,
and retries with corrective feedback until the change passes or a stop
condition is reached. Every command and edit passes a guardrail gate, and
every plan and state transition is persisted for audit.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./gantry.yaml)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newInitCmd())

	return rootCmd
}
