// The main package for the rfpscraper executable.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Echoandelementwebsites/rfp-scraper/cmd"
)

// main is the entry point of the application. Interrupt and terminate
// signals cancel the command context so runs shut down cleanly.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
