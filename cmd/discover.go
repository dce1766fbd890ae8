package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newDiscoverCmd creates the 'discover' subcommand. With an entity name it
// is a one-off URL lookup; without one it seeds agencies for the whole
// state from its jurisdiction list.
func newDiscoverCmd() *cobra.Command {
	var (
		state    string
		category string
	)

	cmd := &cobra.Command{
		Use:   "discover [entity name]",
		Short: "Resolves official websites for government entities",
		Long: `Resolves official websites the same way the crawler does during a run:
the dotgov registry first, then domain pattern probing, then a web search.

Given an entity name, looks up that one entity and prints the URL. Given
only --state, walks every jurisdiction in the state, resolves its
government site and the sites of the special districts it typically runs,
and stores what it finds.`,

		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runDiscoverCommand(cmd, args[0], state, category)
			}
			return runSeedCommand(cmd, state)
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "two-letter state code (required)")
	cmd.Flags().StringVar(&category, "category", "city", "entity category (city, town, county, ...)")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func runDiscoverCommand(cmd *cobra.Command, name, state, category string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	state, err = normalizeState(state)
	if err != nil {
		return err
	}

	res, ok := appInstance.Discoverer().Discover(cmd.Context(), name, state, category)
	if !ok {
		return fmt.Errorf("no website found for %q in %s", name, state)
	}
	cmd.Println(res.URL)
	return nil
}

func runSeedCommand(cmd *cobra.Command, state string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	state, err = normalizeState(state)
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	summary, err := appInstance.DiscoverAgencies(cmd.Context(), state, &logReporter{logger: logger})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("discovery for %s: %w", state, err)
	}
	logger.Info("discovery finished",
		zap.String("state", state),
		zap.Int("tasks", summary.Tasks),
		zap.Int("discovered", summary.Discovered),
		zap.Int("inserted", summary.Inserted),
		zap.Int("updated", summary.Updated),
		zap.Int("missed", summary.Missed),
		zap.Int("errors", summary.Errors))
	return nil
}
