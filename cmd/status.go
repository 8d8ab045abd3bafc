package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the farm backend status and claimed worker counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient(apiAddr)

		var status struct {
			Available      bool   `json:"available"`
			Backend        string `json:"backend"`
			Error          string `json:"error"`
			TotalWorkers   int    `json:"total_workers"`
			ClaimedWorkers int    `json:"claimed_workers"`
			ActiveJobs     int    `json:"active_jobs"`
		}
		if err := client.get("/farm/status", &status); err != nil {
			return err
		}

		if status.Available {
			fmt.Printf("Farm backend: %s (available)\n", status.Backend)
		} else {
			fmt.Printf("Farm backend: %s (unavailable: %s)\n", status.Backend, status.Error)
		}
		fmt.Printf("Configured workers: %d\n", status.TotalWorkers)
		fmt.Printf("Claimed workers:    %d across %d job(s)\n", status.ClaimedWorkers, status.ActiveJobs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
