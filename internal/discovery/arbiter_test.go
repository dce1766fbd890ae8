package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubProber struct {
	alive map[string]bool
	calls int
}

func (p *stubProber) Reachable(_ context.Context, rawURL string) bool {
	p.calls++
	return p.alive[rawURL]
}

func TestIsRootDomain(t *testing.T) {
	require.True(t, IsRootDomain("https://springfield.gov"))
	require.True(t, IsRootDomain("https://springfield.gov/"))
	require.True(t, IsRootDomain("https://springfield.gov/index.html"))
	require.True(t, IsRootDomain("https://springfield.gov/home"))
	require.False(t, IsRootDomain("https://springfield.gov/public-works/bids"))
	require.False(t, IsRootDomain("https://springfield.gov/purchasing"))
}

func TestIsBetterURLEmptyCases(t *testing.T) {
	a := NewArbiter(&stubProber{}, nil)
	ctx := context.Background()

	require.False(t, a.IsBetterURL(ctx, "", "https://old.gov"))
	require.False(t, a.IsBetterURL(ctx, "  ", "https://old.gov"))
	require.True(t, a.IsBetterURL(ctx, "https://new.gov", ""))
}

func TestIsBetterURLSpecificityGuard(t *testing.T) {
	ctx := context.Background()
	deep := "https://cityhall.gov/public-works/bids"

	// A live deep link is never replaced by a bare root domain.
	a := NewArbiter(&stubProber{alive: map[string]bool{deep: true}}, nil)
	require.False(t, a.IsBetterURL(ctx, "https://cityhall.gov", deep))

	// A dead deep link always loses.
	a = NewArbiter(&stubProber{alive: map[string]bool{}}, nil)
	require.True(t, a.IsBetterURL(ctx, "https://cityhall.gov", deep))
}

func TestIsBetterURLDifferentDomainGuard(t *testing.T) {
	ctx := context.Background()
	old := "https://oldcityhall.org"

	a := NewArbiter(&stubProber{alive: map[string]bool{old: true}}, nil)
	require.False(t, a.IsBetterURL(ctx, "https://cityhall.gov", old))

	a = NewArbiter(&stubProber{alive: map[string]bool{}}, nil)
	require.True(t, a.IsBetterURL(ctx, "https://cityhall.gov", old))
}

func TestIsBetterURLGovUpgrade(t *testing.T) {
	ctx := context.Background()
	// Both deep links, so the specificity guard does not apply.
	a := NewArbiter(&stubProber{}, nil)
	require.True(t, a.IsBetterURL(ctx, "https://cityhall.gov/bids", "https://cityhall.org/bids"))
	require.False(t, a.IsBetterURL(ctx, "https://cityhall.org/bids", "https://cityhall.gov/bids"))
	require.False(t, a.IsBetterURL(ctx, "https://cityhall.com/bids", "https://cityhall.org/bids"))
}

func TestIsBetterURLLivenessCache(t *testing.T) {
	ctx := context.Background()
	deep := "https://cityhall.gov/purchasing"
	prober := &stubProber{alive: map[string]bool{deep: true}}
	a := NewArbiter(prober, nil)

	require.False(t, a.IsBetterURL(ctx, "https://cityhall.gov", deep))
	require.False(t, a.IsBetterURL(ctx, "https://www.cityhall.gov", deep))
	require.Equal(t, 1, prober.calls, "second decision should hit the liveness cache")
}

func TestHostOfStripsWWW(t *testing.T) {
	require.Equal(t, "cityhall.gov", hostOf("https://www.cityhall.gov/bids"))
	require.Equal(t, "cityhall.gov", hostOf("https://CityHall.GOV"))
}
