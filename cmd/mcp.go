package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"farmctl/internal/mcptools"
	"farmctl/pkg/logging"
)

var mcpConfig string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve fleet control as MCP tools over stdio",
	Long: `Runs an MCP server exposing farm_status, list_workers,
claim_workers, and release_workers, so an AI assistant can inspect and
drive the fleet. Meant to be launched by an MCP client, not by hand.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Stdout carries the MCP protocol; logs must not pollute it.
		logging.InitForCLI(logging.LevelWarn, os.Stderr)

		coord, err := buildCoordinator(mcpConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize coordinator: %w", err)
		}

		srv := mcptools.NewServer(coord, rootCmd.Version)
		return mcptools.ServeStdio(srv)
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpConfig, "config", "", "Explicit config file (skips layered lookup)")
	rootCmd.AddCommand(mcpCmd)
}
