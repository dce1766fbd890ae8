// Package registry maintains a local mirror of the CISA .gov registration
// dataset and reconciles it against stored agencies. Registry data is
// authoritative: an exact registration beats any guessed domain.
package registry

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
)

// Record is one row of the .gov dataset.
type Record struct {
	Domain       string
	DomainType   string
	Organization string
	Suborg       string
	City         string
	State        string
}

// URL returns the canonical https URL for the registered domain.
func (r Record) URL() string {
	return "https://" + strings.ToLower(r.Domain)
}

// AgencyStore is the persistence surface Sync needs.
type AgencyStore interface {
	AgenciesByState(ctx context.Context, state string) ([]procure.Agency, error)
	InsertAgency(ctx context.Context, a procure.Agency) (int64, error)
	UpdateAgencyURL(ctx context.Context, id int64, url string, verified bool) error
	InsertJurisdiction(ctx context.Context, j procure.Jurisdiction) (int64, error)
}

// SyncStats summarizes one reconciliation pass.
type SyncStats struct {
	Matched  int
	Updated  int
	Inserted int
	Skipped  int
}

// Registry downloads, indexes, and serves the dataset. All lookups are
// in-memory after Refresh.
type Registry struct {
	client     *http.Client
	datasetURL string
	logger     *zap.Logger

	mu        sync.RWMutex
	byState   map[string][]Record
	fetchedAt time.Time
}

// New builds a Registry for the given dataset URL.
func New(datasetURL string, timeout time.Duration, logger *zap.Logger) *Registry {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		client:     &http.Client{Timeout: timeout},
		datasetURL: datasetURL,
		logger:     logger,
		byState:    make(map[string][]Record),
	}
}

// Refresh downloads the dataset and rebuilds the in-memory index. Only
// local-government rows are kept; federal and tribal registrations are not
// procurement targets here.
func (r *Registry) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.datasetURL, nil)
	if err != nil {
		return fmt.Errorf("building dataset request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading dataset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dataset download returned status %d", resp.StatusCode)
	}

	records, err := parseDataset(resp.Body)
	if err != nil {
		return err
	}

	index := make(map[string][]Record, 56)
	for _, rec := range records {
		state := strings.ToUpper(rec.State)
		index[state] = append(index[state], rec)
	}

	r.mu.Lock()
	r.byState = index
	r.fetchedAt = time.Now()
	r.mu.Unlock()

	r.logger.Info("registry dataset refreshed",
		zap.Int("records", len(records)), zap.Int("states", len(index)))
	return nil
}

// parseDataset reads the CSV. Column layout: Domain name, Domain type,
// Agency, Organization name, City, State. Header variants across dataset
// revisions are resolved by name, not position.
func parseDataset(body io.Reader) ([]Record, error) {
	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading dataset header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading dataset row: %w", err)
		}
		rec := Record{
			Domain:       field(row, "domain name"),
			DomainType:   field(row, "domain type"),
			Organization: field(row, "organization name"),
			Suborg:       field(row, "suborganization name"),
			City:         field(row, "city"),
			State:        field(row, "state"),
		}
		if rec.Domain == "" {
			continue
		}
		domainType := strings.ToLower(rec.DomainType)
		if !strings.Contains(domainType, "city") &&
			!strings.Contains(domainType, "county") &&
			!strings.Contains(domainType, "state") {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Loaded reports whether Refresh has populated the index.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.fetchedAt.IsZero()
}

// Lookup finds the registered URL for an entity name in a state. Match
// order: organization name, then city name, then "City of {name}". The
// false return means no registration exists, which is common and normal.
func (r *Registry) Lookup(state, name string) (string, bool) {
	r.mu.RLock()
	records := r.byState[strings.ToUpper(strings.TrimSpace(state))]
	r.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return "", false
	}
	for _, rec := range records {
		if strings.ToLower(rec.Organization) == needle {
			return rec.URL(), true
		}
	}
	for _, rec := range records {
		if strings.ToLower(rec.City) == needle {
			return rec.URL(), true
		}
	}
	for _, rec := range records {
		if strings.ToLower(rec.Organization) == "city of "+needle {
			return rec.URL(), true
		}
	}
	return "", false
}

// Classify maps a dataset row to an agency kind. An organization named
// "Town of X" is a town even when the dataset files it under a city-type
// registration.
func Classify(rec Record) procure.JurisdictionKind {
	org := strings.ToLower(rec.Organization)
	domainType := strings.ToLower(rec.DomainType)

	if strings.HasPrefix(org, "town of ") {
		return procure.KindTown
	}
	if strings.Contains(domainType, "county") || strings.Contains(org, "county") {
		return procure.KindCounty
	}
	if strings.Contains(domainType, "city") || strings.HasPrefix(org, "city of ") {
		return procure.KindCity
	}
	return procure.KindCity
}

// CategoryStateAgency is the stored category for statewide registrations,
// which belong to no local jurisdiction.
const CategoryStateAgency = "state agency"

// Category maps a dataset row to the stored agency category.
func Category(rec Record) string {
	if strings.Contains(strings.ToLower(rec.DomainType), "state") {
		return CategoryStateAgency
	}
	return string(Classify(rec))
}

// entityName extracts the comparable local name of a record: the city
// field, or the organization with its "City of"/"Town of" prefix stripped.
func entityName(rec Record) string {
	if rec.City != "" {
		return rec.City
	}
	org := rec.Organization
	for _, prefix := range []string{"City of ", "Town of ", "County of "} {
		if strings.HasPrefix(org, prefix) {
			return strings.TrimPrefix(org, prefix)
		}
	}
	return org
}

// stateAgencyName is the stored name of a statewide registration. These
// rows match on the organization, not on a city.
func stateAgencyName(rec Record) string {
	if rec.Organization != "" {
		return rec.Organization
	}
	if rec.Suborg != "" {
		return rec.Suborg
	}
	return rec.Domain
}

// Sync reconciles one state's registrations against stored agencies.
// Agencies matched by name and category get their URL corrected when it
// drifts from the registration; unmatched registrations become new verified
// agencies. Local registrations also get a jurisdiction row so later
// discovery passes have a crawl target, and statewide registrations become
// state-agency rows with no jurisdiction. Running Sync twice in a row
// changes nothing the second time.
func (r *Registry) Sync(ctx context.Context, state string, store AgencyStore) (SyncStats, error) {
	state = strings.ToUpper(strings.TrimSpace(state))
	r.mu.RLock()
	records := r.byState[state]
	r.mu.RUnlock()

	var stats SyncStats
	if len(records) == 0 {
		return stats, nil
	}

	agencies, err := store.AgenciesByState(ctx, state)
	if err != nil {
		return stats, fmt.Errorf("loading agencies for %s: %w", state, err)
	}

	type agencyKey struct {
		name     string
		category string
	}
	byKey := make(map[agencyKey]*procure.Agency, len(agencies))
	byName := make(map[string]*procure.Agency, len(agencies))
	for i := range agencies {
		a := &agencies[i]
		key := agencyKey{
			name:     strings.ToLower(strings.TrimSpace(a.Name)),
			category: strings.ToLower(strings.TrimSpace(a.Category)),
		}
		byKey[key] = a
		byName[key.name] = a
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		category := Category(rec)
		displayName := entityName(rec)
		if category == CategoryStateAgency {
			displayName = stateAgencyName(rec)
		}
		name := strings.ToLower(strings.TrimSpace(displayName))
		if name == "" {
			stats.Skipped++
			continue
		}

		agency, ok := byKey[agencyKey{name: name, category: category}]
		if !ok && category != CategoryStateAgency {
			agency, ok = byName[name]
		}
		if ok {
			stats.Matched++
			if !urlsMatch(agency.URL, rec.URL()) {
				if err := store.UpdateAgencyURL(ctx, agency.ID, rec.URL(), true); err != nil {
					return stats, fmt.Errorf("updating agency %d: %w", agency.ID, err)
				}
				agency.URL = rec.URL()
				stats.Updated++
				r.logger.Info("registry corrected agency url",
					zap.String("agency", agency.Name), zap.String("url", rec.URL()))
			}
			continue
		}

		newAgency := procure.Agency{
			State:    state,
			Name:     displayName,
			URL:      rec.URL(),
			Verified: true,
			Category: category,
		}
		if category != CategoryStateAgency {
			jid, err := store.InsertJurisdiction(ctx, procure.Jurisdiction{
				State: state,
				Name:  entityName(rec),
				Kind:  Classify(rec),
			})
			if err != nil {
				return stats, fmt.Errorf("inserting jurisdiction %q: %w", entityName(rec), err)
			}
			newAgency.JurisdictionID = &jid
		}
		id, err := store.InsertAgency(ctx, newAgency)
		if err != nil {
			return stats, fmt.Errorf("inserting agency %q: %w", newAgency.Name, err)
		}
		newAgency.ID = id
		stats.Inserted++

		inserted := newAgency
		byKey[agencyKey{name: name, category: category}] = &inserted
		byName[name] = &inserted
	}

	r.logger.Info("registry sync complete", zap.String("state", state),
		zap.Int("matched", stats.Matched), zap.Int("updated", stats.Updated),
		zap.Int("inserted", stats.Inserted))
	return stats, nil
}

// urlsMatch compares URLs ignoring scheme, www, and a trailing slash.
func urlsMatch(a, b string) bool {
	return normalizeURL(a) == normalizeURL(b)
}

func normalizeURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimSuffix(u, "/")
}
