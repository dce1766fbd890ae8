package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/store"
)

type fakeSeedStore struct {
	jurisdictions   []procure.Jurisdiction
	agencies        map[string]procure.Agency
	inserted        []procure.Agency
	updated         map[int64]string
	updatedVerified map[int64]bool
	insertErrFor    string
}

func (f *fakeSeedStore) Jurisdictions(_ context.Context, _ string) ([]procure.Jurisdiction, error) {
	return f.jurisdictions, nil
}

func (f *fakeSeedStore) AgencyByName(_ context.Context, _, name string) (procure.Agency, error) {
	a, ok := f.agencies[name]
	if !ok {
		return procure.Agency{}, store.ErrNotFound
	}
	return a, nil
}

func (f *fakeSeedStore) InsertAgency(_ context.Context, a procure.Agency) (int64, error) {
	if f.insertErrFor == a.Name {
		return 0, errors.New("insert failed")
	}
	f.inserted = append(f.inserted, a)
	return int64(len(f.inserted)), nil
}

func (f *fakeSeedStore) UpdateAgencyURL(_ context.Context, id int64, url string, verified bool) error {
	if f.updated == nil {
		f.updated = make(map[int64]string)
		f.updatedVerified = make(map[int64]bool)
	}
	f.updated[id] = url
	f.updatedVerified[id] = verified
	return nil
}

type stubArbiter struct {
	better bool
}

func (a *stubArbiter) IsBetterURL(_ context.Context, _, _ string) bool { return a.better }

// registryOnlyDiscoverer resolves through the registry alone; patterns and
// search come up empty so misses stay misses.
func registryOnlyDiscoverer(urls map[string]string) *URLDiscoverer {
	return NewURLDiscoverer(DiscovererConfig{
		Registry: &stubRegistry{urls: urls},
		Patterns: &stubPatterns{},
		Verifier: &stubVerifier{},
	}, nil)
}

func TestSeederInsertsGovernmentsAndDistricts(t *testing.T) {
	st := &fakeSeedStore{
		jurisdictions: []procure.Jurisdiction{
			{ID: 1, State: "IL", Name: "Springfield", Kind: procure.KindCity},
		},
		agencies: map[string]procure.Agency{},
	}
	seeder := NewSeeder(st, registryOnlyDiscoverer(map[string]string{
		"Springfield":                   "https://springfield.gov",
		"Springfield Housing Authority": "https://springfieldhousing.gov",
	}), nil, nil)

	summary, err := seeder.Run(context.Background(), "il", nil)
	require.NoError(t, err)

	// One government task plus four district flavors.
	require.Equal(t, 5, summary.Tasks)
	require.Equal(t, 2, summary.Discovered)
	require.Equal(t, 2, summary.Inserted)
	require.Equal(t, 3, summary.Missed)
	require.Zero(t, summary.Errors)

	require.Len(t, st.inserted, 2)
	gov := st.inserted[0]
	require.Equal(t, "Springfield", gov.Name)
	require.Equal(t, "https://springfield.gov", gov.URL)
	require.Equal(t, "IL", gov.State)
	require.True(t, gov.Verified)
	require.Equal(t, "city", gov.Category)
	require.NotNil(t, gov.JurisdictionID)
	require.Equal(t, int64(1), *gov.JurisdictionID)

	district := st.inserted[1]
	require.Equal(t, "Springfield Housing Authority", district.Name)
	require.Equal(t, "housing authority", district.Category)
}

func TestSeederSkipsVerifiedAgencies(t *testing.T) {
	st := &fakeSeedStore{
		jurisdictions: []procure.Jurisdiction{
			{ID: 1, State: "IL", Name: "Springfield", Kind: procure.KindCity},
		},
		agencies: map[string]procure.Agency{
			"Springfield": {ID: 7, Name: "Springfield", URL: "https://springfield.gov", Verified: true},
		},
	}
	seeder := NewSeeder(st, registryOnlyDiscoverer(map[string]string{
		"Springfield": "https://somewhere-else.gov",
	}), nil, nil)

	summary, err := seeder.Run(context.Background(), "IL", nil)
	require.NoError(t, err)
	require.Zero(t, summary.Discovered)
	require.Empty(t, st.inserted)
	require.Empty(t, st.updated)
	require.Equal(t, 4, summary.Missed)
}

func TestSeederUpdatesKnownAgencyWithoutURL(t *testing.T) {
	st := &fakeSeedStore{
		jurisdictions: []procure.Jurisdiction{
			{ID: 2, State: "IL", Name: "Peoria", Kind: procure.KindTown},
		},
		agencies: map[string]procure.Agency{
			"Peoria": {ID: 11, Name: "Peoria"},
		},
	}
	seeder := NewSeeder(st, registryOnlyDiscoverer(map[string]string{
		"Peoria": "https://peoriail.gov",
	}), nil, nil)

	summary, err := seeder.Run(context.Background(), "IL", nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Tasks)
	require.Equal(t, 1, summary.Updated)
	require.Zero(t, summary.Inserted)
	require.Equal(t, "https://peoriail.gov", st.updated[11])
}

func TestSeederTownsGetNoDistrictTasks(t *testing.T) {
	tasks := buildTasks("MT", []procure.Jurisdiction{
		{ID: 3, State: "MT", Name: "Tinyville", Kind: procure.KindTown},
		{ID: 4, State: "MT", Name: "Cascade County", Kind: procure.KindCounty},
	})
	require.Len(t, tasks, 6)
	require.Equal(t, "government", tasks[0].Phase)
	require.Equal(t, "town", tasks[0].Category)
}

func TestSeederAbsorbsPerTaskFailures(t *testing.T) {
	st := &fakeSeedStore{
		jurisdictions: []procure.Jurisdiction{
			{ID: 1, State: "IL", Name: "Springfield", Kind: procure.KindTown},
			{ID: 2, State: "IL", Name: "Peoria", Kind: procure.KindTown},
		},
		agencies:     map[string]procure.Agency{},
		insertErrFor: "Springfield",
	}
	seeder := NewSeeder(st, registryOnlyDiscoverer(map[string]string{
		"Springfield": "https://springfield.gov",
		"Peoria":      "https://peoriail.gov",
	}), nil, nil)

	summary, err := seeder.Run(context.Background(), "IL", nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Errors)
	require.Equal(t, 1, summary.Inserted)
	require.Len(t, st.inserted, 1)
	require.Equal(t, "Peoria", st.inserted[0].Name)
}

func TestSeederRequiresDiscoverer(t *testing.T) {
	seeder := NewSeeder(&fakeSeedStore{}, nil, nil, nil)
	_, err := seeder.Run(context.Background(), "IL", nil)
	require.Error(t, err)
}

func TestSeederStoresGuessedURLsUnverified(t *testing.T) {
	st := &fakeSeedStore{
		jurisdictions: []procure.Jurisdiction{
			{ID: 5, State: "IL", Name: "Peoria", Kind: procure.KindTown},
		},
		agencies: map[string]procure.Agency{},
	}
	guessing := NewURLDiscoverer(DiscovererConfig{
		Registry: &stubRegistry{},
		Patterns: &stubPatterns{},
		Verifier: &stubVerifier{best: "https://peoriail.gov"},
	}, nil)
	seeder := NewSeeder(st, guessing, nil, nil)

	summary, err := seeder.Run(context.Background(), "IL", nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Inserted)
	require.Len(t, st.inserted, 1)
	require.Equal(t, "https://peoriail.gov", st.inserted[0].URL)
	require.False(t, st.inserted[0].Verified)
}

func TestSeederArbitratesBeforeReplacingStoredURL(t *testing.T) {
	st := &fakeSeedStore{
		jurisdictions: []procure.Jurisdiction{
			{ID: 6, State: "IL", Name: "Peoria", Kind: procure.KindTown},
		},
		agencies: map[string]procure.Agency{
			"Peoria": {ID: 13, Name: "Peoria", URL: "https://peoria-il.org"},
		},
	}
	discoverer := registryOnlyDiscoverer(map[string]string{
		"Peoria": "https://peoriail.gov",
	})

	seeder := NewSeeder(st, discoverer, &stubArbiter{better: false}, nil)
	_, err := seeder.Run(context.Background(), "IL", nil)
	require.NoError(t, err)
	require.Empty(t, st.updated, "a worse URL must not displace the stored one")

	seeder = NewSeeder(st, discoverer, &stubArbiter{better: true}, nil)
	_, err = seeder.Run(context.Background(), "IL", nil)
	require.NoError(t, err)
	require.Equal(t, "https://peoriail.gov", st.updated[13])
	require.True(t, st.updatedVerified[13])
}
