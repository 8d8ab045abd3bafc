package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List configured workers and live farm registrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient(apiAddr)

		var cfg struct {
			Workers []struct {
				ID      string `json:"id"`
				Name    string `json:"name"`
				Host    string `json:"host"`
				Port    int    `json:"port"`
				Role    string `json:"role"`
				Source  string `json:"source"`
				Enabled bool   `json:"enabled"`
			} `json:"workers"`
		}
		if err := client.get("/config", &cfg); err != nil {
			return err
		}

		var status struct {
			ActiveWorkers []struct {
				ID string `json:"id"`
			} `json:"active_workers"`
		}
		if err := client.get("/farm/status", &status); err != nil {
			return err
		}
		active := make(map[string]bool, len(status.ActiveWorkers))
		for _, w := range status.ActiveWorkers {
			active[w.ID] = true
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tADDRESS\tROLE\tSOURCE\tENABLED\tLIVE")
		for _, w := range cfg.Workers {
			live := ""
			if active[w.ID] {
				live = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s:%d\t%s\t%s\t%v\t%s\n",
				w.ID, w.Name, w.Host, w.Port, w.Role, w.Source, w.Enabled, live)
		}
		return tw.Flush()
	},
}

var removeWorkersCmd = &cobra.Command{
	Use:   "remove-farm-workers",
	Short: "Remove farm-sourced worker entries from the config",
	Long: `Removes the worker entries farm jobs registered. Refused while
claimed jobs are still live unless --force is given, because removing the
entries first would orphan the running jobs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		client := newAPIClient(apiAddr)

		var result struct {
			Removed int `json:"removed"`
		}
		if err := client.post("/farm/remove_remote_workers", map[string]any{"force": force}, &result); err != nil {
			return err
		}
		fmt.Printf("Removed %d worker entr(ies)\n", result.Removed)
		return nil
	},
}

func init() {
	removeWorkersCmd.Flags().Bool("force", false, "Remove entries even while farm jobs are live")
	rootCmd.AddCommand(workersCmd)
	rootCmd.AddCommand(removeWorkersCmd)
}
