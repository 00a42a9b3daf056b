// Package cmd defines the CLI commands for the trackwebhookd executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/config"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trackwebhookd",
		Short: "Webhook receiver for scraping-provider callbacks",
		Long: `trackwebhookd receives, verifies, stores, and normalizes webhook
deliveries from the scraping provider, propagates request statuses, and
serves health and analytics endpoints.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (settings fall back to TRACKWEBHOOK_* env vars)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newReplayCmd())
	return cmd
}

// loadConfig reads the optional .env file and builds the configuration.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return &cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
