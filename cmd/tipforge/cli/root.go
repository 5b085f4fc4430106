// Package cli implements the tipforge command-line interface using Cobra.
// It provides commands for running installation phases against a platform
// container, inspecting the journal, and listing the phase graph.
package cli

import (
	"os"
	"path/filepath"

	"github.com/intelstack/tipforge/internal/config"
	"github.com/intelstack/tipforge/internal/log"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	verbose bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "tipforge",
	Short: "Tipforge - installation and patching for containerized threat-intel platforms",
	Long: `Tipforge installs and patches a containerized threat intelligence
platform. A run walks an ordered graph of idempotent phases: reachability
checks, dependency installation, dashboard widget deployment, source patches,
and permission repair. Every phase outcome is journaled, so re-running after
a failure resumes where the last run stopped.

Core promise: tipforge run converges the target to the desired state no
matter how many times it is invoked.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		debugDir := filepath.Join(stateDir(), "debug")

		if err := log.Init(log.Options{
			Verbose:       verbose,
			JSONFormat:    jsonOut,
			DebugDir:      debugDir,
			RetentionDays: 7,
		}); err != nil {
			// Log init failure is non-fatal - fallback to default logger
			cmd.PrintErrf("Warning: failed to initialize debug logging: %v\n", err)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "tipforge.yaml", "path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
}

// stateDir is where tipforge keeps host-side state (journal, debug logs).
func stateDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".tipforge"
	}
	return filepath.Join(homeDir, ".tipforge")
}

// loadConfig reads the configuration named by --config.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgPath)
}
