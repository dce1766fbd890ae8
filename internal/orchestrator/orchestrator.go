// Package orchestrator runs the crawl itself: refresh agency URLs, harvest
// each agency's listing page, and deep-scan with a browser where a shallow
// pass found nothing. One bad agency never sinks a run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/adapters"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/browser"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/metrics"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/qa"
)

// AgencyStore is the persistence the crawl needs.
type AgencyStore interface {
	AgenciesByState(ctx context.Context, state string) ([]procure.Agency, error)
	UpdateAgencyURL(ctx context.Context, id int64, url string, verified bool) error
	DeleteAgency(ctx context.Context, id int64) error
	UpsertOpportunity(ctx context.Context, o procure.Opportunity) (bool, error)
	ListOpportunities(ctx context.Context, state string) ([]procure.Opportunity, error)
}

// Gate clears a fetch against robots and pacing rules.
type Gate interface {
	Check(ctx context.Context, rawURL string) (bool, error)
}

// AdapterResolver picks the harvesting adapter for a URL.
type AdapterResolver interface {
	ForURL(rawURL string) (adapters.Adapter, error)
}

// URLArbiter decides whether a discovered URL replaces a stored one.
type URLArbiter interface {
	IsBetterURL(ctx context.Context, newURL, oldURL string) bool
}

// Liveness probes whether a URL still answers.
type Liveness interface {
	Reachable(ctx context.Context, rawURL string) bool
}

// Classifier tags opportunities with trades at ingest. May be nil.
type Classifier interface {
	ClassifyTrades(ctx context.Context, title, description string) []string
}

// LinkChecker verifies an item's link answers and hands back the page text
// behind it. May be nil.
type LinkChecker interface {
	PageText(ctx context.Context, rawURL string) (string, bool)
}

// Reporter receives progress as a run advances. The jobs manager provides
// one; NopReporter serves everywhere else.
type Reporter interface {
	SetProgress(fraction float64)
	Logf(format string, args ...any)
}

// NopReporter discards progress.
type NopReporter struct{}

func (NopReporter) SetProgress(float64) {}
func (NopReporter) Logf(string, ...any) {}

// Summary tallies one crawl run. Zero findings with zero errors is a
// successful run; most small towns have nothing posted.
type Summary struct {
	Agencies     int
	URLsUpdated  int
	AgenciesGone int
	Harvested    int
	Inserted     int
	Refreshed    int
	DeepScans    int
	Skipped      int
	Errors       int
}

// Orchestrator coordinates one state's crawl.
type Orchestrator struct {
	store      AgencyStore
	gate       Gate
	resolver   AdapterResolver
	deep       adapters.Adapter
	discoverer *URLDiscoverer
	arbiter    URLArbiter
	liveness   Liveness
	classifier Classifier
	links      LinkChecker
	bufferDays int
	now        func() time.Time
	logger     *zap.Logger
}

// Deps wires an Orchestrator. Deep, discoverer, arbiter, liveness,
// classifier, and links are optional; their steps are skipped when nil.
// BufferDays is the margin a deadline must clear beyond today to be worth
// storing.
type Deps struct {
	Store      AgencyStore
	Gate       Gate
	Resolver   AdapterResolver
	Deep       adapters.Adapter
	Discoverer *URLDiscoverer
	Arbiter    URLArbiter
	Liveness   Liveness
	Classifier Classifier
	Links      LinkChecker
	BufferDays int
	Logger     *zap.Logger
}

// New builds an Orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Gate == nil {
		return nil, fmt.Errorf("compliance gate is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("adapter resolver is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	buffer := deps.BufferDays
	if buffer < 0 {
		buffer = 0
	}
	return &Orchestrator{
		store:      deps.Store,
		gate:       deps.Gate,
		resolver:   deps.Resolver,
		deep:       deps.Deep,
		discoverer: deps.Discoverer,
		arbiter:    deps.Arbiter,
		liveness:   deps.Liveness,
		classifier: deps.Classifier,
		links:      deps.Links,
		bufferDays: buffer,
		now:        time.Now,
		logger:     logger,
	}, nil
}

// ScrapeState runs the full crawl for one state: refresh URLs, shallow
// harvest with persistence, then a deep scan over every agency whose URL
// has not been browsed this run or stored from an earlier one. Candidates
// are persisted as each agency completes, so a run killed partway keeps
// everything harvested so far.
func (o *Orchestrator) ScrapeState(ctx context.Context, state string, report Reporter) (Summary, error) {
	if report == nil {
		report = NopReporter{}
	}
	state = strings.ToUpper(strings.TrimSpace(state))

	var summary Summary
	agencies, err := o.store.AgenciesByState(ctx, state)
	if err != nil {
		return summary, fmt.Errorf("loading agencies for %s: %w", state, err)
	}
	summary.Agencies = len(agencies)
	report.Logf("starting crawl for %s: %d agencies", state, len(agencies))
	if len(agencies) == 0 {
		report.SetProgress(1)
		return summary, nil
	}

	// Snapshot source URLs stored by earlier runs before this one adds any,
	// so the deep pass skips pages already mined without being fooled by its
	// own shallow findings.
	previously := map[string]struct{}{}
	if o.deep != nil {
		previously, err = o.storedSourceURLs(ctx, state)
		if err != nil {
			summary.Errors++
			report.Logf("loading stored opportunities for %s failed: %v", state, err)
		}
	}

	agencies = o.refreshURLs(ctx, state, agencies, report, &summary)
	report.SetProgress(0.25)

	for i, agency := range agencies {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		metrics.AgenciesScanned.Inc()
		if _, err := o.harvestAgency(ctx, agency, false, &summary); err != nil {
			summary.Errors++
			metrics.CrawlErrors.Inc()
			report.Logf("agency %s: shallow harvest failed: %v", agency.Name, err)
		}
		report.SetProgress(0.25 + 0.35*float64(i+1)/float64(len(agencies)))
	}

	if o.deep != nil {
		crawled := make(map[string]struct{}, len(agencies))
		for i, agency := range agencies {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			key := normalizeSourceURL(agency.URL)
			if key == "" {
				continue
			}
			if _, dup := crawled[key]; dup {
				summary.Skipped++
				continue
			}
			if _, done := previously[key]; done {
				summary.Skipped++
				report.Logf("agency %s: already mined %s, skipping deep scan", agency.Name, agency.URL)
				continue
			}
			if adapters.IsFileURL(agency.URL) {
				summary.Skipped++
				report.Logf("agency %s: url is a file download, skipping deep scan", agency.Name)
				continue
			}
			crawled[key] = struct{}{}
			summary.DeepScans++
			metrics.DeepScans.Inc()
			if _, err := o.harvestAgency(ctx, agency, true, &summary); err != nil {
				if errors.Is(err, browser.ErrChallengeUnresolved) {
					summary.Skipped++
					metrics.ChallengeSkips.Inc()
					report.Logf("agency %s: bot challenge held, skipping", agency.Name)
				} else {
					summary.Errors++
					metrics.CrawlErrors.Inc()
					report.Logf("agency %s: deep scan failed: %v", agency.Name, err)
				}
			}
			report.SetProgress(0.6 + 0.4*float64(i+1)/float64(len(agencies)))
		}
	}

	report.SetProgress(1)
	report.Logf("crawl for %s complete: %d harvested, %d new, %d errors",
		state, summary.Harvested, summary.Inserted, summary.Errors)
	return summary, nil
}

// storedSourceURLs returns the normalized source URLs of every opportunity
// already on file for a state.
func (o *Orchestrator) storedSourceURLs(ctx context.Context, state string) (map[string]struct{}, error) {
	stored, err := o.store.ListOpportunities(ctx, state)
	if err != nil {
		return map[string]struct{}{}, err
	}
	urls := make(map[string]struct{}, len(stored))
	for _, opp := range stored {
		if key := normalizeSourceURL(opp.SourceURL); key != "" {
			urls[key] = struct{}{}
		}
	}
	return urls, nil
}

// normalizeSourceURL reduces a URL to its comparable core so the same page
// matches across scheme, www, and trailing-slash variations.
func normalizeSourceURL(rawURL string) string {
	u := strings.ToLower(strings.TrimSpace(rawURL))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimSuffix(u, "/")
}

// refreshURLs fixes up agency URLs before harvesting. Discovery failures
// leave an agency alone unless its stored URL is also dead, in which case
// the agency is removed as unreachable by any means.
func (o *Orchestrator) refreshURLs(ctx context.Context, state string, agencies []procure.Agency, report Reporter, summary *Summary) []procure.Agency {
	if o.discoverer == nil {
		return agencies
	}
	kept := make([]procure.Agency, 0, len(agencies))
	for _, agency := range agencies {
		if ctx.Err() != nil {
			return kept
		}
		if agency.URL != "" && agency.Verified {
			kept = append(kept, agency)
			continue
		}

		res, ok := o.discoverer.Discover(ctx, agency.Name, state, agency.Category)
		if ok {
			if o.arbiter == nil || o.arbiter.IsBetterURL(ctx, res.URL, agency.URL) {
				if err := o.store.UpdateAgencyURL(ctx, agency.ID, res.URL, res.Verified); err != nil {
					summary.Errors++
					report.Logf("agency %s: url update failed: %v", agency.Name, err)
				} else {
					agency.URL = res.URL
					agency.Verified = res.Verified
					summary.URLsUpdated++
					metrics.URLDiscoveries.Inc()
				}
			}
			kept = append(kept, agency)
			continue
		}

		if agency.URL != "" && (o.liveness == nil || o.liveness.Reachable(ctx, agency.URL)) {
			kept = append(kept, agency)
			continue
		}

		// Nothing discovered and nothing stored works.
		if err := o.store.DeleteAgency(ctx, agency.ID); err != nil {
			summary.Errors++
			report.Logf("agency %s: removal failed: %v", agency.Name, err)
			kept = append(kept, agency)
			continue
		}
		summary.AgenciesGone++
		report.Logf("agency %s: no working url found, removed", agency.Name)
	}
	return kept
}

// harvestAgency collects candidates from one agency and persists the valid
// ones. The count of newly inserted rows is returned.
func (o *Orchestrator) harvestAgency(ctx context.Context, agency procure.Agency, useDeep bool, summary *Summary) (int, error) {
	if agency.URL == "" {
		return 0, nil
	}
	allowed, err := o.gate.Check(ctx, agency.URL)
	if err != nil {
		return 0, fmt.Errorf("compliance gate: %w", err)
	}
	if !allowed {
		o.logger.Info("robots disallow, skipping agency",
			zap.String("agency", agency.Name), zap.String("url", agency.URL))
		summary.Skipped++
		return 0, nil
	}

	adapter := o.deep
	if !useDeep {
		adapter, err = o.resolver.ForURL(agency.URL)
		if err != nil {
			return 0, err
		}
	}

	candidates, err := adapter.Collect(ctx, adapters.Target{Agency: agency, URL: agency.URL})
	if err != nil {
		return 0, err
	}

	inserted := 0
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		opp, ok := o.toOpportunity(ctx, candidate, agency, useDeep)
		if !ok {
			continue
		}
		if _, dup := seen[opp.Fingerprint]; dup {
			continue
		}
		seen[opp.Fingerprint] = struct{}{}
		summary.Harvested++
		created, err := o.store.UpsertOpportunity(ctx, opp)
		if err != nil {
			summary.Errors++
			o.logger.Warn("opportunity persist failed",
				zap.String("title", opp.Title), zap.Error(err))
			continue
		}
		if created {
			summary.Inserted++
			inserted++
			metrics.OpportunitiesInserted.Inc()
		} else {
			summary.Refreshed++
			metrics.OpportunitiesRefreshed.Inc()
		}
	}
	return inserted, nil
}

// toOpportunity builds the stored form of a candidate, dropping anything
// not worth a row: noise titles, blocked links, dead links, deadlines that
// won't parse or fall inside the freshness buffer, and items the classifier
// finds no trade in. For shallow candidates the linked page is fetched and
// its text becomes the description; deep candidates already carry text the
// browser read in place.
func (o *Orchestrator) toOpportunity(ctx context.Context, c procure.Candidate, agency procure.Agency, fromDeep bool) (procure.Opportunity, bool) {
	title := qa.CleanText(c.Title)
	if !qa.IsValidTitle(title) {
		return procure.Opportunity{}, false
	}
	if qa.BlockedLink(c.Link, title) {
		return procure.Opportunity{}, false
	}

	description := c.Description
	if !fromDeep && o.links != nil && c.Link != "" {
		text, alive := o.links.PageText(ctx, c.Link)
		if !alive {
			o.logger.Debug("broken link, dropping candidate",
				zap.String("title", title), zap.String("url", c.Link))
			return procure.Opportunity{}, false
		}
		description = text
	}

	client := qa.CleanText(c.Client)
	if client == "" {
		client = agency.Name
	}
	source := c.Link
	if source == "" {
		source = agency.URL
	}

	deadline, ok := qa.NormalizeDate(c.Deadline)
	if !ok {
		return procure.Opportunity{}, false
	}
	if deadline.Before(qa.FreshnessCutoff(o.now(), o.bufferDays)) {
		return procure.Opportunity{}, false
	}

	opp := procure.Opportunity{
		Fingerprint: procure.Fingerprint(title, client, source),
		Client:      client,
		Title:       title,
		Deadline:    deadline,
		SourceURL:   source,
		State:       agency.State,
		Description: description,
	}
	if o.classifier != nil {
		opp.TradeTags = o.classifier.ClassifyTrades(ctx, title, description)
		if len(opp.TradeTags) == 0 {
			return procure.Opportunity{}, false
		}
	}
	return opp, true
}
