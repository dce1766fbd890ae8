// Package cmd defines and implements the CLI commands for the rfpscraper
// executable.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/app"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/config"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/logging"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/orchestrator"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/qa"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/registry"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/store"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is the application surface commands use. An interface so tests can
// inject a mock through newApp.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Store() store.Store
	Discoverer() *orchestrator.URLDiscoverer
	Scrape(ctx context.Context, state string, report orchestrator.Reporter) (orchestrator.Summary, error)
	DiscoverAgencies(ctx context.Context, state string, report orchestrator.Reporter) (orchestrator.SeedSummary, error)
	Audit(ctx context.Context, state string) (qa.Report, error)
	SyncRegistry(ctx context.Context, state string) (registry.SyncStats, error)
}

// newApp is the application factory, a variable so tests can swap in a
// mock factory.
var newApp = func(ctx context.Context) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rfpscraper",
		Short: "Discovers and harvests local government RFP listings.",
		Long: `rfpscraper finds the official procurement pages of cities, counties, and
special districts, harvests the solicitations they post, and keeps the
stored inventory fresh and clean.`,

		// Runs after flags are parsed and before the subcommand: build the
		// service graph once and hand it to whichever command runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newDiscoverCmd())

	return cmd
}

// resolveApp pulls the App built in PersistentPreRunE out of the context.
func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
