package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/app"
)

// newReplayCmd creates the 'replay' subcommand for operator-invoked
// reprocessing of stuck deliveries.
func newReplayCmd() *cobra.Command {
	var (
		limit  int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Reprocess stored events that never completed",
		Long: `Pulls the oldest pending and failed events from the event store and
runs them back through the ingestion pipeline. With --dry-run the candidates
are listed without touching anything.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			application, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to build application: %w", err)
			}
			defer func() {
				_ = application.Close(cmd.Context())
			}()

			summary, err := application.Replay(cmd.Context(), limit, dryRun)
			if err != nil {
				return fmt.Errorf("replay failed: %w", err)
			}

			out, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to render summary: %w", err)
			}
			cmd.Println(string(out))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum events to reprocess (0 uses replay.default_limit)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list candidates without reprocessing")
	return cmd
}
