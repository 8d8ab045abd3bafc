package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "farmctl",
	Short: "Coordinate a render-farm worker fleet for a ComfyUI master",
	Long: `farmctl claims render-farm machines as distributed ComfyUI workers,
tracks their health, and serves the worker panel a master instance uses to
manage its fleet. It speaks to Deadline or Kubernetes as the farm backend.`,
	// Errors we return are already descriptive; printing usage on top of
	// them buries the message.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI. Called once from main.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "farmctl version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		// Cobra prints the error, we just exit non-zero.
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
