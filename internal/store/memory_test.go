package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
)

func TestMemoryUpsertIdempotence(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	o := procure.Opportunity{
		Fingerprint: "fp-1",
		Client:      "City of Springfield",
		Title:       "Roof Replacement",
		State:       "IL",
		Description: "as first harvested",
	}

	created, err := m.UpsertOpportunity(ctx, o)
	require.NoError(t, err)
	require.True(t, created)

	o.Description = "reworded on second sighting"
	o.Deadline = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	o.TradeTags = []string{"roofing"}
	created, err = m.UpsertOpportunity(ctx, o)
	require.NoError(t, err)
	require.False(t, created)

	items, err := m.ListOpportunities(ctx, "IL")
	require.NoError(t, err)
	require.Len(t, items, 1)
	// Deadline and tags track the latest sighting; the description keeps
	// its first-harvest form.
	require.Equal(t, "as first harvested", items[0].Description)
	require.Equal(t, o.Deadline, items[0].Deadline)
	require.Equal(t, []string{"roofing"}, items[0].TradeTags)
	require.False(t, items[0].FirstSeen.IsZero())
	require.False(t, items[0].LastSeen.Before(items[0].FirstSeen))
}

func TestMemoryInsertJurisdictionDedup(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first, err := m.InsertJurisdiction(ctx, procure.Jurisdiction{State: "IL", Name: "Springfield", Kind: procure.KindCity})
	require.NoError(t, err)
	again, err := m.InsertJurisdiction(ctx, procure.Jurisdiction{State: "IL", Name: "springfield", Kind: procure.KindCity})
	require.NoError(t, err)
	require.Equal(t, first, again)

	other, err := m.InsertJurisdiction(ctx, procure.Jurisdiction{State: "IL", Name: "Springfield", Kind: procure.KindTown})
	require.NoError(t, err)
	require.NotEqual(t, first, other)

	all, err := m.Jurisdictions(ctx, "IL")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestMemoryAgencyLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.InsertAgency(ctx, procure.Agency{State: "IL", Name: "Springfield", Category: "city"})
	require.NoError(t, err)

	got, err := m.AgencyByName(ctx, "il", "springfield")
	require.NoError(t, err)
	require.Equal(t, id, got.ID)

	require.NoError(t, m.UpdateAgencyURL(ctx, id, "https://springfield.gov", true))
	got, err = m.AgencyByName(ctx, "IL", "Springfield")
	require.NoError(t, err)
	require.True(t, got.Verified)
	require.Equal(t, "https://springfield.gov", got.URL)

	require.NoError(t, m.DeleteAgency(ctx, id))
	_, err = m.AgencyByName(ctx, "IL", "Springfield")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, m.DeleteAgency(ctx, id), ErrNotFound)
}

func TestMemoryUpdateOpportunityPreservesFirstSeen(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	o := procure.Opportunity{Fingerprint: "fp-1", Title: "Roof Replacement", State: "IL"}
	_, err := m.UpsertOpportunity(ctx, o)
	require.NoError(t, err)

	stored, err := m.ListOpportunities(ctx, "IL")
	require.NoError(t, err)
	firstSeen := stored[0].FirstSeen

	time.Sleep(5 * time.Millisecond)
	o.TradeTags = []string{"roofing"}
	require.NoError(t, m.UpdateOpportunity(ctx, o))

	stored, err = m.ListOpportunities(ctx, "IL")
	require.NoError(t, err)
	require.Equal(t, firstSeen, stored[0].FirstSeen)
	require.Equal(t, []string{"roofing"}, stored[0].TradeTags)
}
