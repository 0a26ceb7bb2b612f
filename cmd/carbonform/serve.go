package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var warmTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Serves the calculate endpoint, the schema and options endpoints and the
rendered forms. The emission factor document is watched and reloaded when
it changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&warmTimeout, "warm-timeout", 10*time.Second, "Time allowed for the initial schema fetch")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.Warm(ctx, warmTimeout); err != nil {
		// the store may be populated after start; requests retry the fetch
		logger.Warn("initial load failed", zap.Error(err))
	}

	stop, err := a.WatchFactors(ctx)
	if err != nil {
		logger.Warn("factor watch unavailable", zap.Error(err))
	} else {
		defer stop()
	}

	return a.Serve(ctx)
}
