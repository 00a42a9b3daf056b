package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/app"
)

// newServeCmd creates the 'serve' subcommand, which runs the webhook
// receiver until interrupted.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver",
		Long: `Starts the HTTP server that receives provider deliveries, plus the
background replay loop that drains stuck events.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			application, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to build application: %w", err)
			}
			return application.Run(cmd.Context())
		},
	}
}
