package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	// Version information, set by Execute.
	appVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	appVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "camline",
		Short: "camline - furniture BOM editing and CAM pipeline client",
		Long: `camline edits the bill-of-materials of a furniture order and drives
the CAM manufacturing pipeline of the remote service.

Workflow:
  - resume an order to load its specification
  - set fields; incidental edits save automatically, structural ones
    require an explicit recalculation
  - generate the cutting layout, CNC cutting program and drilling
    program; machine-dependent stages require a machine profile
  - download the generated artifacts`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newResumeCommand())
	rootCmd.AddCommand(newSetCommand())
	rootCmd.AddCommand(newRecalculateCommand())
	rootCmd.AddCommand(newGenerateCommand())
	rootCmd.AddCommand(newProfileCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newDownloadCommand())

	return rootCmd
}
