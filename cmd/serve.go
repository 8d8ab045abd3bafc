package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"farmctl/internal/panel"
	"farmctl/internal/server"
	"farmctl/internal/tui"
	"farmctl/pkg/logging"
)

var (
	serveNoTUI  bool
	serveDebug  bool
	serveListen string
	serveConfig string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fleet coordinator with an interactive panel or headless",
	Long: `Starts the fleet coordinator: the HTTP API farm workers register
against, the status prober, and the worker panel.

It runs in two modes:

1. Interactive TUI mode (default):
   - Shows the worker list with live statuses, the settings toggles,
     and the farm claim controls.

2. Headless mode (--no-tui):
   - Serves the HTTP API and background loops only. Useful on headless
     masters or under a process supervisor.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	coord, err := buildCoordinator(serveConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize coordinator: %w", err)
	}

	level := logging.LevelInfo
	if serveDebug || coord.Store().Snapshot().Settings.Debug {
		level = logging.LevelDebug
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiServer := server.New(coord, serveListen)

	errCh := make(chan error, 2)
	go func() { errCh <- coord.Run(ctx) }()
	go func() { errCh <- apiServer.Start(ctx) }()

	if serveNoTUI {
		logging.InitForCLI(level, os.Stderr)
		logging.Info("Serve", "Running headless on %s, press Ctrl+C to stop", serveListen)
		return <-errCh
	}

	logCh := logging.InitForTUI(level)
	sink := &tui.Sink{}
	p := panel.New(coord, coord.Store(), coord.Store(), coord.Registry(), sink)
	model := tui.NewModel(p, coord, coord.Store(), logCh, rootCmd.Version)

	if err := tui.Run(ctx, sink, model); err != nil {
		return fmt.Errorf("panel UI: %w", err)
	}
	stop()

	// Let the coordinator finish its shutdown path (worker release when
	// stop-on-exit is enabled) before returning.
	return <-errCh
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveNoTUI, "no-tui", false, "Disable the TUI and run headless")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveListen, "listen", ":8189", "Address the coordinator API listens on")
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Explicit config file (skips layered lookup)")
}
