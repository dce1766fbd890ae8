package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newScrapeCmd creates the 'scrape' subcommand, which runs one crawl pass
// for a state in the foreground.
func newScrapeCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Crawls one state's agencies for posted solicitations",
		Long: `Runs a full crawl for a single state: refreshes agency URLs, harvests
each agency's procurement page, and falls back to a headless-browser deep
scan where a plain fetch found nothing. Results are stored as the run
progresses, so an interrupted run keeps everything harvested so far.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrapeCommand(cmd, state)
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "two-letter state code (required)")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func runScrapeCommand(cmd *cobra.Command, state string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	state, err = normalizeState(state)
	if err != nil {
		return err
	}

	logger := appInstance.Logger()
	summary, err := appInstance.Scrape(cmd.Context(), state, &logReporter{logger: logger})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scrape %s: %w", state, err)
	}

	logger.Info("scrape finished", zap.String("state", state),
		zap.Int("agencies", summary.Agencies), zap.Int("urls_updated", summary.URLsUpdated),
		zap.Int("harvested", summary.Harvested), zap.Int("inserted", summary.Inserted),
		zap.Int("refreshed", summary.Refreshed), zap.Int("deep_scans", summary.DeepScans),
		zap.Int("skipped", summary.Skipped), zap.Int("errors", summary.Errors))
	return nil
}

// logReporter forwards run progress to the process logger.
type logReporter struct {
	logger *zap.Logger
}

func (r *logReporter) SetProgress(fraction float64) {
	r.logger.Debug("progress", zap.Float64("fraction", fraction))
}

func (r *logReporter) Logf(format string, args ...any) {
	r.logger.Info(fmt.Sprintf(format, args...))
}

// normalizeState validates and upcases a two-letter state code.
func normalizeState(state string) (string, error) {
	state = strings.ToUpper(strings.TrimSpace(state))
	if len(state) != 2 {
		return "", fmt.Errorf("state must be a two-letter code, got %q", state)
	}
	return state, nil
}
