package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newAuditCmd creates the 'audit' subcommand, which cleans one state's
// stored opportunities.
func newAuditCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audits one state's stored opportunities",
		Long: `Runs the content QA pipeline over a state's stored opportunities:
deletes records filed under the wrong state, records whose deadlines have
passed, and navigation noise scraped as titles; normalizes casing on what
survives; and tags untagged records with trade categories.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuditCommand(cmd, state)
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "two-letter state code (required)")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func runAuditCommand(cmd *cobra.Command, state string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	state, err = normalizeState(state)
	if err != nil {
		return err
	}

	report, err := appInstance.Audit(cmd.Context(), state)
	if err != nil {
		return fmt.Errorf("audit %s: %w", state, err)
	}

	appInstance.Logger().Info("audit finished", zap.String("state", state),
		zap.Int("scanned", report.Scanned), zap.Int("misattributed", report.Misattributed),
		zap.Int("stale", report.Stale), zap.Int("noise", report.Noise),
		zap.Int("untagged", report.Untagged), zap.Int("cleaned", report.Cleaned),
		zap.Int("errors", report.Errors))
	return nil
}
