package cmd

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/api"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/jobs"
)

// newServeCmd creates the 'serve' subcommand, which runs the HTTP API.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API server",
		Long: `Serves the job-submission API: crawl and audit runs are submitted as
background jobs and polled for progress, and stored opportunities are
read back per state. The server drains running jobs on shutdown.`,

		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	logger := appInstance.Logger()
	manager := jobs.NewManager(logger)
	server := api.NewServer(manager, appInstance, appInstance.Store(), logger)

	err = server.ListenAndServe(cmd.Context(), appInstance.Config().Server.Port)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
