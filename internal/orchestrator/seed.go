package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/metrics"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/qa"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/store"
)

// SeedStore is the persistence the discovery pass needs.
type SeedStore interface {
	Jurisdictions(ctx context.Context, state string) ([]procure.Jurisdiction, error)
	AgencyByName(ctx context.Context, state, name string) (procure.Agency, error)
	InsertAgency(ctx context.Context, a procure.Agency) (int64, error)
	UpdateAgencyURL(ctx context.Context, id int64, url string, verified bool) error
}

// districtCategories are the special-district flavors tried for every city
// and county on top of its own government site.
var districtCategories = []string{
	"housing authority",
	"public library",
	"transit authority",
	"school district",
}

// SeedSummary tallies one discovery pass.
type SeedSummary struct {
	Tasks      int
	Discovered int
	Inserted   int
	Updated    int
	Missed     int
	Errors     int
}

// Seeder turns jurisdictions into agencies: for every jurisdiction in a
// state it tries to resolve the official site of the government itself and
// of the special districts it typically runs, and stores what it finds.
type Seeder struct {
	store      SeedStore
	discoverer *URLDiscoverer
	arbiter    URLArbiter
	logger     *zap.Logger
}

// NewSeeder builds a Seeder. The arbiter may be nil, in which case any
// discovered URL replaces a stored one.
func NewSeeder(st SeedStore, discoverer *URLDiscoverer, arbiter URLArbiter, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{store: st, discoverer: discoverer, arbiter: arbiter, logger: logger}
}

// Run discovers agencies for every jurisdiction in a state. Tasks that
// resolve nothing are counted and skipped; small districts with no web
// presence are normal, not failures.
func (s *Seeder) Run(ctx context.Context, state string, report Reporter) (SeedSummary, error) {
	if report == nil {
		report = NopReporter{}
	}
	state = strings.ToUpper(strings.TrimSpace(state))

	var summary SeedSummary
	if s.discoverer == nil {
		return summary, fmt.Errorf("url discoverer is required")
	}
	jurisdictions, err := s.store.Jurisdictions(ctx, state)
	if err != nil {
		return summary, fmt.Errorf("loading jurisdictions for %s: %w", state, err)
	}
	tasks := buildTasks(state, jurisdictions)
	summary.Tasks = len(tasks)
	report.Logf("discovery for %s: %d tasks from %d jurisdictions",
		state, len(tasks), len(jurisdictions))
	if len(tasks) == 0 {
		report.SetProgress(1)
		return summary, nil
	}

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := s.runTask(ctx, task, report, &summary); err != nil {
			summary.Errors++
			metrics.CrawlErrors.Inc()
			report.Logf("task %s: %v", agencyName(task), err)
		}
		report.SetProgress(float64(i+1) / float64(len(tasks)))
	}

	report.Logf("discovery for %s complete: %d found, %d inserted, %d updated, %d missed",
		state, summary.Discovered, summary.Inserted, summary.Updated, summary.Missed)
	return summary, nil
}

// buildTasks expands jurisdictions into discovery tasks. Every jurisdiction
// gets a task for its own government; cities and counties also get one per
// special-district category.
func buildTasks(state string, jurisdictions []procure.Jurisdiction) []procure.DiscoveryTask {
	var tasks []procure.DiscoveryTask
	for _, j := range jurisdictions {
		id := j.ID
		tasks = append(tasks, procure.DiscoveryTask{
			State:          state,
			JurisdictionID: &id,
			Name:           j.Name,
			Kind:           j.Kind,
			Category:       string(j.Kind),
			Phase:          "government",
		})
		if j.Kind != procure.KindCity && j.Kind != procure.KindCounty {
			continue
		}
		for _, category := range districtCategories {
			tasks = append(tasks, procure.DiscoveryTask{
				State:          state,
				JurisdictionID: &id,
				Name:           j.Name,
				Kind:           j.Kind,
				Category:       category,
				Phase:          "district",
			})
		}
	}
	return tasks
}

// agencyName is the stored display name for a task: the jurisdiction name
// itself for governments, "<name> <District Kind>" for districts.
func agencyName(task procure.DiscoveryTask) string {
	if task.Phase != "district" {
		return task.Name
	}
	return task.Name + " " + qa.CleanText(task.Category)
}

func (s *Seeder) runTask(ctx context.Context, task procure.DiscoveryTask, report Reporter, summary *SeedSummary) error {
	name := agencyName(task)
	existing, err := s.store.AgencyByName(ctx, task.State, name)
	known := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("looking up %s: %w", name, err)
	}
	if known && existing.Verified && existing.URL != "" {
		return nil
	}

	var res Resolution
	var ok bool
	if task.Phase == "district" {
		// The registry knows districts under their full name; patterns key
		// off the jurisdiction name, so "springfield" + "housing authority"
		// probes springfieldhousing.gov rather than a mashed full name.
		res, ok = s.discoverer.DiscoverDistrict(ctx, name, task.Name, task.State, task.Category)
	} else {
		res, ok = s.discoverer.Discover(ctx, task.Name, task.State, task.Category)
	}
	if !ok {
		summary.Missed++
		return nil
	}
	summary.Discovered++
	metrics.URLDiscoveries.Inc()

	if known {
		if existing.URL != "" && s.arbiter != nil && !s.arbiter.IsBetterURL(ctx, res.URL, existing.URL) {
			return nil
		}
		if err := s.store.UpdateAgencyURL(ctx, existing.ID, res.URL, res.Verified); err != nil {
			return fmt.Errorf("updating %s: %w", name, err)
		}
		summary.Updated++
		report.Logf("%s: url updated to %s", name, res.URL)
		return nil
	}

	_, err = s.store.InsertAgency(ctx, procure.Agency{
		State:          task.State,
		Name:           name,
		URL:            res.URL,
		Verified:       res.Verified,
		Category:       task.Category,
		JurisdictionID: task.JurisdictionID,
	})
	if err != nil {
		return fmt.Errorf("inserting %s: %w", name, err)
	}
	summary.Inserted++
	report.Logf("%s: discovered %s", name, res.URL)
	return nil
}
