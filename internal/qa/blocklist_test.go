package qa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockedLink(t *testing.T) {
	blocked := []struct{ link, text string }{
		{"https://springfield.gov/calendar", "Upcoming Dates"},
		{"https://springfield.gov/jobs/openings", "Work With Us"},
		{"https://springfield.gov/Employment", "Openings"},
		{"https://springfield.gov/tax/rates", "Property Tax Rates"},
		{"https://springfield.gov/login", "Vendor Portal"},
		{"https://springfield.gov/faq", "Questions"},
		{"mailto:clerk@springfield.gov", "Contact the Clerk"},
		{"javascript:void(0)", "Expand"},
		{"https://springfield.gov/bids/123", "City Council Agenda"},
		{"https://springfield.gov/bids/124", "Meeting Minutes June 2026"},
		{"https://springfield.gov/bids/125", "Press Release: New Park"},
	}
	for _, tc := range blocked {
		require.True(t, BlockedLink(tc.link, tc.text),
			"expected %q %q to be blocked", tc.link, tc.text)
	}

	kept := []struct{ link, text string }{
		{"https://springfield.gov/bids/roof-replacement", "Roof Replacement at City Hall"},
		{"https://springfield.gov/procurement/rfp-26-014", "RFP 26-014 Sewer Lining"},
		{"", "Water Main Extension Phase 2"},
	}
	for _, tc := range kept {
		require.False(t, BlockedLink(tc.link, tc.text),
			"expected %q %q to pass", tc.link, tc.text)
	}
}
