package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newSyncCmd creates the 'sync-registry' subcommand, which reconciles
// stored agencies against the CISA dotgov dataset.
func newSyncCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "sync-registry",
		Short: "Reconciles one state's agencies against the dotgov dataset",
		Long: `Downloads the CISA dotgov registration dataset and reconciles it with
one state's stored agencies: registered domains correct stored URLs and
seed agencies we have never seen. Registry URLs are authoritative, so
matches are stored as verified.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSyncCommand(cmd, state)
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "two-letter state code (required)")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func runSyncCommand(cmd *cobra.Command, state string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	state, err = normalizeState(state)
	if err != nil {
		return err
	}

	stats, err := appInstance.SyncRegistry(cmd.Context(), state)
	if err != nil {
		return fmt.Errorf("sync registry for %s: %w", state, err)
	}

	appInstance.Logger().Info("registry sync finished", zap.String("state", state),
		zap.Int("matched", stats.Matched), zap.Int("updated", stats.Updated),
		zap.Int("inserted", stats.Inserted), zap.Int("skipped", stats.Skipped))
	return nil
}
