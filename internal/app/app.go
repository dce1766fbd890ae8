// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/adapters"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/ai"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/browser"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/compliance"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/config"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/discovery"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/orchestrator"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/qa"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/registry"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/store"
)

// searchTimeout bounds one DuckDuckGo round trip. Search pages answer
// slower than the liveness probes the discovery timeout was tuned for.
const searchTimeout = 15 * time.Second

// App holds all the shared, long-lived services. It is initialized once at
// startup and torn down via Close; everything downstream borrows from it.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	store      store.Store
	browser    *browser.Browser
	registry   *registry.Registry
	discoverer *orchestrator.URLDiscoverer
	orch       *orchestrator.Orchestrator
	seeder     *orchestrator.Seeder
	auditor    *qa.Auditor
}

// New builds the service graph from configuration. It fails fast: any
// service that cannot come up aborts startup.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	logger.Info("initializing application services")

	st, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	gate := compliance.NewGate(compliance.Config{
		UserAgent:     cfg.Compliance.UserAgent,
		RespectRobots: cfg.Compliance.RespectRobots,
		MinDelay:      secondsf(cfg.Compliance.MinDelaySec),
		MaxDelay:      secondsf(cfg.Compliance.MaxDelaySec),
	}, logger)

	b, err := browser.New(browser.Config{
		UserAgent:         cfg.Browser.UserAgent,
		Headless:          cfg.Browser.Headless,
		NavTimeout:        seconds(cfg.Browser.NavTimeoutSec),
		ScrollCeiling:     seconds(cfg.Browser.ScrollCeilingSec),
		ChallengeWait:     seconds(cfg.Browser.ChallengeWaitSec),
		ChallengePoll:     seconds(cfg.Browser.ChallengePollSec),
		ScreenshotOnError: cfg.Browser.ScreenshotOnError,
	}, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("initialize browser: %w", err)
	}

	var completer ai.Completer
	if cfg.AI.APIKey != "" {
		completer = ai.NewCompleter(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.MaxTokens)
	} else {
		logger.Warn("no AI API key configured; extraction and ranking are disabled")
	}
	analyst := ai.NewAnalyst(completer, logger)

	// A disabled analyst must not reach the QA classifier: zero tags there
	// deletes the record, and a model-less classifier tags nothing.
	var classifier qa.TradeClassifier
	var picker orchestrator.ResultPicker
	if analyst.Enabled() {
		classifier = analyst
		picker = analyst
	}

	verifier := discovery.NewVerifier(cfg.Discovery.ProbeTimeout(), cfg.Compliance.UserAgent, logger)
	patterns := discovery.NewPatternGenerator(cfg.Discovery.Patterns)
	arbiter := discovery.NewArbiter(verifier, logger)
	searcher := discovery.NewDuckDuckGoSearcher(searchTimeout, cfg.Browser.UserAgent, logger)

	reg := registry.New(cfg.Registry.DatasetURL, seconds(cfg.Registry.DownloadTimeoutSec), logger)

	discoverer := orchestrator.NewURLDiscoverer(orchestrator.DiscovererConfig{
		Registry:   reg,
		Patterns:   patterns,
		Verifier:   verifier,
		Searcher:   searcher,
		Picker:     picker,
		Unwanted:   cfg.Discovery.UnwantedCityTerms,
		MaxResults: cfg.Discovery.SearchMaxResults,
	}, logger)

	resolver := adapters.NewRegistry(cfg.Portals, "static")
	static := adapters.NewStatic(analyst, cfg.Compliance.UserAgent, seconds(cfg.Browser.NavTimeoutSec), logger)
	deep := adapters.NewDeep(b, analyst, cfg.Browser.ReferrerOverride, logger)
	for _, a := range []adapters.Adapter{static, deep} {
		if err := resolver.Register(a); err != nil {
			b.Close()
			st.Close()
			return nil, fmt.Errorf("register adapter: %w", err)
		}
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Store:      st,
		Gate:       gate,
		Resolver:   resolver,
		Deep:       deep,
		Discoverer: discoverer,
		Arbiter:    arbiter,
		Liveness:   verifier,
		Classifier: classifier,
		Links:      verifier,
		BufferDays: cfg.QA.FreshnessBufferDays,
		Logger:     logger,
	})
	if err != nil {
		b.Close()
		st.Close()
		return nil, fmt.Errorf("initialize orchestrator: %w", err)
	}

	seeder := orchestrator.NewSeeder(st, discoverer, arbiter, logger)
	auditor := qa.NewAuditor(st, classifier, cfg.QA.FreshnessBufferDays, logger)

	return &App{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		browser:    b,
		registry:   reg,
		discoverer: discoverer,
		orch:       orch,
		seeder:     seeder,
		auditor:    auditor,
	}, nil
}

func newStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.DB.DSN == "" {
		logger.Warn("no database DSN configured; using in-memory store, data is lost on exit")
		return store.NewMemory(), nil
	}
	logger.Info("connecting to PostgreSQL")
	st, err := store.NewPostgres(ctx, store.PostgresConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return st, nil
}

// Close releases every held service. Safe to call once after New succeeds.
func (a *App) Close() {
	a.browser.Close()
	a.store.Close()
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store exposes persistence for the read side of the API.
func (a *App) Store() store.Store { return a.store }

// Discoverer exposes URL discovery for one-off lookups.
func (a *App) Discoverer() *orchestrator.URLDiscoverer { return a.discoverer }

// Scrape runs a full crawl of one state.
func (a *App) Scrape(ctx context.Context, state string, report orchestrator.Reporter) (orchestrator.Summary, error) {
	return a.orch.ScrapeState(ctx, state, report)
}

// DiscoverAgencies resolves official sites for every jurisdiction in a
// state and persists what it finds.
func (a *App) DiscoverAgencies(ctx context.Context, state string, report orchestrator.Reporter) (orchestrator.SeedSummary, error) {
	return a.seeder.Run(ctx, state, report)
}

// Audit runs the content QA pipeline over one state's stored opportunities.
func (a *App) Audit(ctx context.Context, state string) (qa.Report, error) {
	return a.auditor.Run(ctx, state)
}

// SyncRegistry reconciles one state's agencies against the dotgov dataset,
// downloading it first if this process has not yet.
func (a *App) SyncRegistry(ctx context.Context, state string) (registry.SyncStats, error) {
	if !a.registry.Loaded() {
		if err := a.registry.Refresh(ctx); err != nil {
			return registry.SyncStats{}, fmt.Errorf("refresh registry dataset: %w", err)
		}
	}
	return a.registry.Sync(ctx, state, a.store)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func secondsf(n float64) time.Duration { return time.Duration(n * float64(time.Second)) }
