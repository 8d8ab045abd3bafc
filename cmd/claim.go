package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	claimCount    int
	claimPriority int
	claimPool     string
	claimGroup    string
)

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim farm workers from a running coordinator",
	Long: `Submits a claim to the coordinator started by 'farmctl serve'. The
coordinator submits one farm job spanning the requested worker count; the
workers register back once their instances are up.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient(apiAddr)

		var result struct {
			Success bool   `json:"success"`
			JobID   string `json:"job_id"`
		}
		err := client.post("/farm/claim_workers", map[string]any{
			"count":    claimCount,
			"priority": claimPriority,
			"pool":     claimPool,
			"group":    claimGroup,
		}, &result)
		if err != nil {
			return err
		}
		fmt.Printf("Claimed %d worker(s), farm job %s\n", claimCount, result.JobID)
		return nil
	},
}

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release all claimed farm workers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient(apiAddr)

		var result struct {
			Success      bool `json:"success"`
			ReleasedJobs int  `json:"released_jobs"`
		}
		if err := client.post("/farm/release_workers", map[string]any{}, &result); err != nil {
			return err
		}
		fmt.Printf("Released %d farm job(s)\n", result.ReleasedJobs)
		return nil
	},
}

func init() {
	claimCmd.Flags().IntVar(&claimCount, "count", 4, "Number of workers to claim")
	claimCmd.Flags().IntVar(&claimPriority, "priority", 50, "Farm job priority (0-100)")
	claimCmd.Flags().StringVar(&claimPool, "pool", "none", "Farm pool to target")
	claimCmd.Flags().StringVar(&claimGroup, "group", "none", "Farm group to target")

	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "127.0.0.1:8189", "Address of the running coordinator API")
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(releaseCmd)
}
