package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/adapters"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/browser"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
)

type fakeStore struct {
	agencies      []procure.Agency
	listErr       error
	opportunities map[string]procure.Opportunity
	urlUpdates    map[int64]string
	urlVerified   map[int64]bool
	deleted       []int64
}

func newFakeStore(agencies ...procure.Agency) *fakeStore {
	return &fakeStore{
		agencies:      agencies,
		opportunities: make(map[string]procure.Opportunity),
		urlUpdates:    make(map[int64]string),
		urlVerified:   make(map[int64]bool),
	}
}

func (s *fakeStore) AgenciesByState(_ context.Context, _ string) ([]procure.Agency, error) {
	return s.agencies, s.listErr
}

func (s *fakeStore) UpdateAgencyURL(_ context.Context, id int64, url string, verified bool) error {
	s.urlUpdates[id] = url
	s.urlVerified[id] = verified
	return nil
}

func (s *fakeStore) ListOpportunities(_ context.Context, _ string) ([]procure.Opportunity, error) {
	out := make([]procure.Opportunity, 0, len(s.opportunities))
	for _, o := range s.opportunities {
		out = append(out, o)
	}
	return out, nil
}

func (s *fakeStore) DeleteAgency(_ context.Context, id int64) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeStore) UpsertOpportunity(_ context.Context, o procure.Opportunity) (bool, error) {
	_, exists := s.opportunities[o.Fingerprint]
	s.opportunities[o.Fingerprint] = o
	return !exists, nil
}

type openGate struct {
	denied map[string]bool
}

func (g *openGate) Check(_ context.Context, rawURL string) (bool, error) {
	return !g.denied[rawURL], nil
}

type scriptedAdapter struct {
	name     string
	byURL    map[string][]procure.Candidate
	errByURL map[string]error
	calls    []string
}

func (a *scriptedAdapter) Name() string { return a.name }

func (a *scriptedAdapter) Collect(_ context.Context, target adapters.Target) ([]procure.Candidate, error) {
	a.calls = append(a.calls, target.URL)
	if err := a.errByURL[target.URL]; err != nil {
		return nil, err
	}
	return a.byURL[target.URL], nil
}

type singleResolver struct {
	adapter adapters.Adapter
}

func (r *singleResolver) ForURL(string) (adapters.Adapter, error) { return r.adapter, nil }

type stubClassifier struct {
	tags []string
}

func (c *stubClassifier) ClassifyTrades(_ context.Context, _, _ string) []string {
	return c.tags
}

type stubLinks struct {
	text map[string]string
}

func (l *stubLinks) PageText(_ context.Context, rawURL string) (string, bool) {
	text, ok := l.text[rawURL]
	return text, ok
}

func agency(id int64, name, url string) procure.Agency {
	return procure.Agency{ID: id, State: "IL", Name: name, URL: url, Verified: true, Category: "city"}
}

// due formats a deadline the given number of days out, in the US form
// listing pages use.
func due(days int) string {
	return time.Now().AddDate(0, 0, days).Format("01/02/2006")
}

func newOrchestrator(t *testing.T, deps Deps) *Orchestrator {
	t.Helper()
	o, err := New(deps)
	require.NoError(t, err)
	return o
}

func TestScrapeStatePersistsShallowFindings(t *testing.T) {
	store := newFakeStore(agency(1, "Springfield", "https://springfield.gov/bids"))
	shallow := &scriptedAdapter{name: "static", byURL: map[string][]procure.Candidate{
		"https://springfield.gov/bids": {
			{Title: "Roof Replacement at City Hall", Deadline: due(30), Link: "https://springfield.gov/bids/42"},
			{Title: "Read More", Deadline: due(30)}, // noise, dropped at ingest
		},
	}}

	o := newOrchestrator(t, Deps{Store: store, Gate: &openGate{}, Resolver: &singleResolver{shallow}})
	summary, err := o.ScrapeState(context.Background(), "il", nil)
	require.NoError(t, err)

	require.Equal(t, 1, summary.Harvested)
	require.Equal(t, 1, summary.Inserted)
	require.Len(t, store.opportunities, 1)
	for _, opp := range store.opportunities {
		require.Equal(t, "Roof Replacement at City Hall", opp.Title)
		require.Equal(t, "Springfield", opp.Client)
		require.Equal(t, "IL", opp.State)
		require.Equal(t, time.Now().AddDate(0, 0, 30).Format("2006-01-02"), opp.Deadline.Format("2006-01-02"))
	}
}

func TestScrapeStateZeroFindingsIsSuccess(t *testing.T) {
	store := newFakeStore(agency(1, "Springfield", "https://springfield.gov/bids"))
	shallow := &scriptedAdapter{name: "static"}

	o := newOrchestrator(t, Deps{Store: store, Gate: &openGate{}, Resolver: &singleResolver{shallow}})
	summary, err := o.ScrapeState(context.Background(), "IL", nil)
	require.NoError(t, err)
	require.Zero(t, summary.Harvested)
	require.Zero(t, summary.Errors)
}

func TestScrapeStateDropsBlockedLinks(t *testing.T) {
	store := newFakeStore(agency(1, "Springfield", "https://springfield.gov/bids"))
	shallow := &scriptedAdapter{name: "static", byURL: map[string][]procure.Candidate{
		"https://springfield.gov/bids": {
			{Title: "Roof Replacement at City Hall", Deadline: due(30), Link: "https://springfield.gov/bids/42"},
			{Title: "Openings at the Parks Department", Deadline: due(30), Link: "https://springfield.gov/jobs/openings"},
			{Title: "City Council Agenda June 2026", Deadline: due(30), Link: "https://springfield.gov/bids/43"},
		},
	}}

	o := newOrchestrator(t, Deps{Store: store, Gate: &openGate{}, Resolver: &singleResolver{shallow}})
	summary, err := o.ScrapeState(context.Background(), "IL", nil)
	require.NoError(t, err)

	require.Equal(t, 1, summary.Harvested)
	require.Len(t, store.opportunities, 1)
}

func TestScrapeStateDedupsCandidatesWithinRun(t *testing.T) {
	store := newFakeStore(agency(1, "Springfield", "https://springfield.gov/bids"))
	dup := procure.Candidate{Title: "Roof Replacement at City Hall", Deadline: due(30), Link: "https://springfield.gov/bids/42"}
	shallow := &scriptedAdapter{name: "static", byURL: map[string][]procure.Candidate{
		"https://springfield.gov/bids": {dup, dup},
	}}

	o := newOrchestrator(t, Deps{Store: store, Gate: &openGate{}, Resolver: &singleResolver{shallow}})
	summary, err := o.ScrapeState(context.Background(), "IL", nil)
	require.NoError(t, err)

	require.Equal(t, 1, summary.Harvested)
	require.Equal(t, 1, summary.Inserted)
	require.Zero(t, summary.Refreshed)
}

func TestScrapeStateOneBadAgencyDoesNotAbort(t *testing.T) {
	store := newFakeStore(
		agency(1, "Springfield", "https://springfield.gov/bids"),
		agency(2, "Madison", "https://madison.gov/bids"),
	)
	shallow := &scriptedAdapter{
		name: "static",
		errByURL: map[string]error{
			"https://springfield.gov/bids": errors.New("connection reset"),
		},
		byURL: map[string][]procure.Candidate{
			"https://madison.gov/bids": {{Title: "Sewer Lining Program Phase Two", Deadline: due(30)}},
		},
	}

	o := newOrchestrator(t, Deps{Store: store, Gate: &openGate{}, Resolver: &singleResolver{shallow}})
	summary, err := o.ScrapeState(context.Background(), "IL", nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Errors)
	require.Equal(t, 1, summary.Inserted)
}

func TestScrapeStateDeepScansEveryAgency(t *testing.T) {
	store := newFakeStore(
		agency(1, "Springfield", "https://springfield.gov/bids"),
		agency(2, "Madison", "https://madison.gov/bids"),
	)
	shallow := &scriptedAdapter{name: "static", byURL: map[string][]procure.Candidate{
		"https://springfield.gov/bids": {{Title: "Roof Replacement at City Hall", Deadline: due(30), Link: "https://springfield.gov/bids/42"}},
	}}
	deep := &scriptedAdapter{name: "browser", byURL: map[string][]procure.Candidate{
		"https://madison.gov/bids": {{Title: "Water Main Extension Project", Deadline: due(30), Link: "https://madison.gov/bids/7"}},
	}}

	o := newOrchestrator(t, Deps{
		Store: store, Gate: &openGate{}, Resolver: &singleResolver{shallow}, Deep: deep,
	})
	summary, err := o.ScrapeState(context.Background(), "IL", nil)
	require.NoError(t, err)

	// A shallow find does not spare an agency the deep pass.
	sort.Strings(deep.calls)
	require.Equal(t, []string{"https://madison.gov/bids", "https://springfield.gov/bids"}, deep.calls)
	require.Equal(t, 2, summary.DeepScans)
	require.Equal(t, 2, summary.Inserted)
}

func TestScrapeStateDeepScanSkipsDuplicateAndMinedURLs(t *testing.T) {
	springfield := agency(1, "Springfield", "https://springfield.gov/bids")
	alias := agency(2, "Springfield Purchasing", "http://www.springfield.gov/bids/")
	mined := agency(3, "Madison", "https://madison.gov/bids")
	docOnly := agency(4, "Gotham", "https://gotham.gov/bids.pdf")

	store := newFakeStore(springfield, alias, mined, docOnly)
	store.opportunities["old"] = procure.Opportunity{
		Fingerprint: "old", State: "IL", SourceURL: "https://madison.gov/bids",
	}
	shallow := &scriptedAdapter{name: "static"}
	deep := &scriptedAdapter{name: "browser"}

	o := newOrchestrator(t, Deps{
		Store: store, Gate: &openGate{}, Resolver: &singleResolver{shallow}, Deep: deep,
	})
	summary, err := o.ScrapeState(context.Background(), "IL", nil)
	require.NoError(t, err)

	// The alias collapses onto Springfield's page, Madison was mined by an
	// earlier run, and Gotham's URL is a document, not a page to browse.
	require.Equal(t, []string{"https://springfield.gov/bids"}, deep.calls)
	require.Equal(t, 1, summary.DeepScans)
	require.Equal(t, 3, summary.Skipped)
}

func TestScrapeStateChallengeSkipsAgency(t *testing.T) {
	store := newFakeStore(agency(1, "Madison", "https://madison.gov/bids"))
	shallow := &scriptedAdapter{name: "static"}
	deep := &scriptedAdapter{name: "browser", errByURL: map[string]error{
		"https://madison.gov/bids": fmt.Errorf("arriving: %w", browser.ErrChallengeUnresolved),
	}}

	o := newOrchestrator(t, Deps{
		Store: store, Gate: &openGate{}, Resolver: &singleResolver{shallow}, Deep: deep,
	})
	summary, err := o.ScrapeState(context.Background(), "IL", nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Zero(t, summary.Errors)
}

func TestScrapeStateHonorsRobotsDisallow(t *testing.T) {
	store := newFakeStore(agency(1, "Springfield", "https://springfield.gov/bids"))
	shallow := &scriptedAdapter{name: "static", byURL: map[string][]procure.Candidate{
		"https://springfield.gov/bids": {{Title: "Roof Replacement at City Hall"}},
	}}

	o := newOrchestrator(t, Deps{
		Store:    store,
		Gate:     &openGate{denied: map[string]bool{"https://springfield.gov/bids": true}},
		Resolver: &singleResolver{shallow},
	})
	summary, err := o.ScrapeState(context.Background(), "IL", nil)
	require.NoError(t, err)
	require.Empty(t, shallow.calls)
	require.Equal(t, 1, summary.Skipped)
	require.Empty(t, store.opportunities)
}

func TestScrapeStateRerunRefreshesInsteadOfDuplicating(t *testing.T) {
	store := newFakeStore(agency(1, "Springfield", "https://springfield.gov/bids"))
	shallow := &scriptedAdapter{name: "static", byURL: map[string][]procure.Candidate{
		"https://springfield.gov/bids": {{Title: "Roof Replacement at City Hall", Deadline: due(30)}},
	}}
	o := newOrchestrator(t, Deps{Store: store, Gate: &openGate{}, Resolver: &singleResolver{shallow}})

	first, err := o.ScrapeState(context.Background(), "IL", nil)
	require.NoError(t, err)
	require.Equal(t, 1, first.Inserted)

	second, err := o.ScrapeState(context.Background(), "IL", nil)
	require.NoError(t, err)
	require.Zero(t, second.Inserted)
	require.Equal(t, 1, second.Refreshed)
	require.Len(t, store.opportunities, 1)
}

func TestRefreshURLsDiscoversAndRemoves(t *testing.T) {
	unverified := agency(1, "Springfield", "")
	unverified.Verified = false
	deadStored := agency(2, "Gotham", "https://gotham-il.org")
	deadStored.Verified = false
	aliveStored := agency(3, "Madison", "https://madison-il.org")
	aliveStored.Verified = false

	store := newFakeStore(unverified, deadStored, aliveStored)
	shallow := &scriptedAdapter{name: "static"}

	discoverer := NewURLDiscoverer(DiscovererConfig{
		Registry: &stubRegistry{urls: map[string]string{"Springfield": "https://springfield.gov"}},
	}, nil)

	o := newOrchestrator(t, Deps{
		Store:      store,
		Gate:       &openGate{},
		Resolver:   &singleResolver{shallow},
		Discoverer: discoverer,
		Liveness:   &stubVerifier{reachable: map[string]bool{"https://madison-il.org": true}},
	})
	summary, err := o.ScrapeState(context.Background(), "IL", nil)
	require.NoError(t, err)

	require.Equal(t, "https://springfield.gov", store.urlUpdates[1])
	require.True(t, store.urlVerified[1])
	require.Equal(t, 1, summary.URLsUpdated)
	// Discovery failed for Gotham and its stored URL is dead: removed.
	require.Equal(t, []int64{2}, store.deleted)
	require.Equal(t, 1, summary.AgenciesGone)
	// Madison's stored URL still answers, so it stays despite failed discovery.
	require.NotContains(t, store.deleted, int64(3))
}

func TestRefreshURLsKeepsGuessedURLsUnverified(t *testing.T) {
	stale := agency(1, "Springfield", "")
	stale.Verified = false
	store := newFakeStore(stale)
	shallow := &scriptedAdapter{name: "static"}

	discoverer := NewURLDiscoverer(DiscovererConfig{
		Registry: &stubRegistry{},
		Patterns: &stubPatterns{},
		Verifier: &stubVerifier{best: "https://springfieldil.gov"},
	}, nil)

	o := newOrchestrator(t, Deps{
		Store:      store,
		Gate:       &openGate{},
		Resolver:   &singleResolver{shallow},
		Discoverer: discoverer,
	})
	_, err := o.ScrapeState(context.Background(), "IL", nil)
	require.NoError(t, err)

	// A pattern guess is stored, but not granted the trust a registry hit gets.
	require.Equal(t, "https://springfieldil.gov", store.urlUpdates[1])
	require.False(t, store.urlVerified[1])
}

func TestScrapeStateRejectsUndatedExpiredAndUntagged(t *testing.T) {
	store := newFakeStore(agency(1, "Springfield", "https://springfield.gov/bids"))
	shallow := &scriptedAdapter{name: "static", byURL: map[string][]procure.Candidate{
		"https://springfield.gov/bids": {
			{Title: "Road Resurfacing Program Phase II", Deadline: "TBD soon", Link: "https://springfield.gov/bids/1"},
			{Title: "Library HVAC Replacement Project", Deadline: "01/02/2020", Link: "https://springfield.gov/bids/2"},
			{Title: "Water Tower Repainting Contract", Deadline: due(30), Link: "https://springfield.gov/bids/3"},
		},
	}}

	o := newOrchestrator(t, Deps{
		Store:      store,
		Gate:       &openGate{},
		Resolver:   &singleResolver{shallow},
		Classifier: &stubClassifier{}, // finds no trade in anything
	})
	summary, err := o.ScrapeState(context.Background(), "IL", nil)
	require.NoError(t, err)

	// Unreadable deadline, long-gone deadline, and no matching trade: none
	// of the three earns a row.
	require.Empty(t, store.opportunities)
	require.Zero(t, summary.Harvested)
}

func TestScrapeStateFreshnessBufferRejectsImminentDeadlines(t *testing.T) {
	store := newFakeStore(agency(1, "Springfield", "https://springfield.gov/bids"))
	shallow := &scriptedAdapter{name: "static", byURL: map[string][]procure.Candidate{
		"https://springfield.gov/bids": {
			{Title: "Sidewalk Replacement Closing Tomorrow", Deadline: due(1)},
			{Title: "Roof Replacement at City Hall", Deadline: due(30)},
		},
	}}

	o := newOrchestrator(t, Deps{
		Store:      store,
		Gate:       &openGate{},
		Resolver:   &singleResolver{shallow},
		BufferDays: 5,
	})
	summary, err := o.ScrapeState(context.Background(), "IL", nil)
	require.NoError(t, err)

	require.Equal(t, 1, summary.Inserted)
	for _, opp := range store.opportunities {
		require.Equal(t, "Roof Replacement at City Hall", opp.Title)
	}
}

func TestScrapeStateFetchesEachItemPage(t *testing.T) {
	store := newFakeStore(agency(1, "Springfield", "https://springfield.gov/bids"))
	shallow := &scriptedAdapter{name: "static", byURL: map[string][]procure.Candidate{
		"https://springfield.gov/bids": {
			{Title: "Roof Replacement at City Hall", Deadline: due(30), Link: "https://springfield.gov/bids/42"},
			{Title: "Sewer Lining Program Phase Two", Deadline: due(30), Link: "https://springfield.gov/bids/43"},
		},
	}}
	links := &stubLinks{text: map[string]string{
		"https://springfield.gov/bids/42": "Sealed bids for the replacement of the City Hall roof are due at the purchasing office.",
	}}

	o := newOrchestrator(t, Deps{
		Store:    store,
		Gate:     &openGate{},
		Resolver: &singleResolver{shallow},
		Links:    links,
	})
	summary, err := o.ScrapeState(context.Background(), "IL", nil)
	require.NoError(t, err)

	// The dead second link is dropped; the survivor carries the text of the
	// page behind it, not whatever the listing row said.
	require.Equal(t, 1, summary.Harvested)
	require.Len(t, store.opportunities, 1)
	for _, opp := range store.opportunities {
		require.Equal(t, "Roof Replacement at City Hall", opp.Title)
		require.Contains(t, opp.Description, "Sealed bids for the replacement")
	}
}
