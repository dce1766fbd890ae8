package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
)

type stubCompleter struct {
	reply string
	err   error
	calls int
}

func (s *stubCompleter) Complete(_ context.Context, _, _ string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestDisabledAnalystReturnsEmpty(t *testing.T) {
	a := NewAnalyst(nil, nil)
	ctx := context.Background()

	require.False(t, a.Enabled())
	require.Empty(t, a.ParseOpportunities(ctx, "some page text"))
	require.Empty(t, a.ClassifyTrades(ctx, "Roof Replacement", "..."))
	require.False(t, a.IsProcurementPage(ctx, "text"))
	_, ok := a.PickBestResult(ctx, "Springfield", "IL", []procure.SearchResult{{URL: "https://x.gov"}})
	require.False(t, ok)
}

func TestParseOpportunitiesPlainArray(t *testing.T) {
	stub := &stubCompleter{reply: `[
	  {"title": "Roof Replacement at City Hall", "clientName": "City of Springfield",
	   "deadline": "2026-10-01", "link": "https://springfield.gov/bids/42", "description": "Re-roof"},
	  {"title": "", "clientName": "ignored for missing title"}
	]`}
	a := NewAnalyst(stub, nil)

	got := a.ParseOpportunities(context.Background(), "page text")
	require.Len(t, got, 1)
	require.Equal(t, "Roof Replacement at City Hall", got[0].Title)
	require.Equal(t, "City of Springfield", got[0].Client)
	require.Equal(t, "2026-10-01", got[0].Deadline)
}

func TestParseOpportunitiesFencedAndWrapped(t *testing.T) {
	stub := &stubCompleter{reply: "```json\n{\"rfps\": [{\"title\": \"Sewer Lining\", \"clientName\": \"Cook County\"}]}\n```"}
	a := NewAnalyst(stub, nil)

	got := a.ParseOpportunities(context.Background(), "page text")
	require.Len(t, got, 1)
	require.Equal(t, "Sewer Lining", got[0].Title)
}

func TestParseOpportunitiesNeverPropagatesFailure(t *testing.T) {
	a := NewAnalyst(&stubCompleter{err: errors.New("rate limited")}, nil)
	require.Empty(t, a.ParseOpportunities(context.Background(), "page text"))

	a = NewAnalyst(&stubCompleter{reply: "I could not find any opportunities."}, nil)
	require.Empty(t, a.ParseOpportunities(context.Background(), "page text"))
}

func TestParseOpportunitiesEmptyPageSkipsModel(t *testing.T) {
	stub := &stubCompleter{reply: "[]"}
	a := NewAnalyst(stub, nil)
	require.Empty(t, a.ParseOpportunities(context.Background(), "   "))
	require.Zero(t, stub.calls)
}

func TestClassifyTradesFiltersToCanonical(t *testing.T) {
	stub := &stubCompleter{reply: `["roofing", "HVAC", "underwater basket weaving", "roofing"]`}
	a := NewAnalyst(stub, nil)

	tags := a.ClassifyTrades(context.Background(), "Roof and RTU Replacement", "desc")
	require.Equal(t, []string{"roofing", "hvac"}, tags)
}

func TestClassifyTradesEmptyMeansNotConstruction(t *testing.T) {
	a := NewAnalyst(&stubCompleter{reply: "[]"}, nil)
	require.Empty(t, a.ClassifyTrades(context.Background(), "Janitorial Services Contract", "desc"))
}

func TestPickBestResultOnlyAcceptsListedURLs(t *testing.T) {
	results := []procure.SearchResult{
		{Title: "City of Riverton", URL: "https://rivertonwy.gov"},
		{Title: "Riverton Chamber", URL: "https://rivertonchamber.org"},
	}

	a := NewAnalyst(&stubCompleter{reply: "https://rivertonwy.gov"}, nil)
	url, ok := a.PickBestResult(context.Background(), "Riverton", "WY", results)
	require.True(t, ok)
	require.Equal(t, "https://rivertonwy.gov", url)

	a = NewAnalyst(&stubCompleter{reply: "NONE"}, nil)
	_, ok = a.PickBestResult(context.Background(), "Riverton", "WY", results)
	require.False(t, ok)

	// A hallucinated URL outside the list is rejected.
	a = NewAnalyst(&stubCompleter{reply: "https://riverton-official.com"}, nil)
	_, ok = a.PickBestResult(context.Background(), "Riverton", "WY", results)
	require.False(t, ok)
}

func TestIsProcurementPage(t *testing.T) {
	a := NewAnalyst(&stubCompleter{reply: "YES"}, nil)
	require.True(t, a.IsProcurementPage(context.Background(), "Current Bids and RFPs"))

	a = NewAnalyst(&stubCompleter{reply: "no"}, nil)
	require.False(t, a.IsProcurementPage(context.Background(), "Parks calendar"))

	a = NewAnalyst(&stubCompleter{err: errors.New("timeout")}, nil)
	require.False(t, a.IsProcurementPage(context.Background(), "anything"))
}

func TestStripFences(t *testing.T) {
	require.Equal(t, `{"a": 1}`, stripFences("```json\n{\"a\": 1}\n```"))
	require.Equal(t, `[1, 2]`, stripFences("```\n[1, 2]\n```"))
	require.Equal(t, `plain`, stripFences("plain"))
}
