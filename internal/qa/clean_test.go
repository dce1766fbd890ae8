package qa

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	require.Equal(t, "Roof Replacement at City Hall",
		CleanText("roof   replacement at city hall"))
	require.Equal(t, "Request for Proposals", CleanText("REQUEST FOR PROPOSALS"))
	require.Equal(t, "HVAC Upgrade for the Library",
		CleanText("HVAC upgrade for the library"))
	require.Equal(t, "The Main Street Project", CleanText("the main street project"))
	require.Equal(t, "", CleanText("   "))
}

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2026-10-01", "2026-10-01"},
		{"10/01/2026", "2026-10-01"},
		{"1/2/2026", "2026-01-02"},
		{"October 1, 2026", "2026-10-01"},
		{"Oct 1, 2026", "2026-10-01"},
		{"01-Oct-2026", "2026-10-01"},
		{"Due: 10/01/2026", "2026-10-01"},
		{"Deadline: October 1, 2026", "2026-10-01"},
		{"October 1, 2026 at 2:00 PM", "2026-10-01"},
	}
	for _, tc := range cases {
		got, ok := NormalizeDate(tc.in)
		require.True(t, ok, "expected %q to parse", tc.in)
		require.Equal(t, tc.want, got.Format("2006-01-02"), "input %q", tc.in)
	}
}

func TestNormalizeDateRejectsNonDates(t *testing.T) {
	for _, in := range []string{"", "TBD", "until filled", "see posting", "Roof Replacement"} {
		_, ok := NormalizeDate(in)
		require.False(t, ok, "expected %q not to parse", in)
	}
}

func TestNormalizeDateReturnsMidnight(t *testing.T) {
	got, ok := NormalizeDate("2026-10-01")
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestIsValidTitle(t *testing.T) {
	require.True(t, IsValidTitle("Roof Replacement at City Hall"))
	require.True(t, IsValidTitle("RFP 26-014 Sewer Lining"))

	require.False(t, IsValidTitle("Read More"))
	require.False(t, IsValidTitle("click here"))
	require.False(t, IsValidTitle("Home"))
	require.False(t, IsValidTitle("10/01/2026"))
	require.False(t, IsValidTitle("October 1, 2026"))
	require.False(t, IsValidTitle("26-014"))
	require.False(t, IsValidTitle("RFP"))
	require.False(t, IsValidTitle(""))
}
