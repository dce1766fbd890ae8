package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/discovery"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
)

// RegistryLookup answers whether an entity has a registered .gov domain.
type RegistryLookup interface {
	Lookup(state, name string) (string, bool)
}

// PatternSource generates candidate domains for an entity.
type PatternSource interface {
	GenerateCategory(name, stateAbbr, category string) discovery.CandidateSet
}

// CandidateVerifier probes and identity-checks candidate URLs.
type CandidateVerifier interface {
	BestCandidate(ctx context.Context, set discovery.CandidateSet, id discovery.Identity) (string, bool)
	Reachable(ctx context.Context, rawURL string) bool
}

// ResultPicker chooses an official site from search results.
type ResultPicker interface {
	PickBestResult(ctx context.Context, entityName, state string, results []procure.SearchResult) (string, bool)
}

// URLDiscoverer resolves an official procurement URL for an entity known
// only by name. Phases run cheapest-first: the .gov registry, then domain
// pattern probing, then a web search ranked by the model. A false return
// means every phase came up empty, which small districts often do.
type URLDiscoverer struct {
	registry  RegistryLookup
	patterns  PatternSource
	verifier  CandidateVerifier
	searcher  discovery.Searcher
	picker    ResultPicker
	stateName map[string]string
	unwanted  []string
	maxSearch int
	logger    *zap.Logger
}

// DiscovererConfig wires a URLDiscoverer. Registry, searcher, and picker
// may be nil; their phases are skipped.
type DiscovererConfig struct {
	Registry   RegistryLookup
	Patterns   PatternSource
	Verifier   CandidateVerifier
	Searcher   discovery.Searcher
	Picker     ResultPicker
	Unwanted   []string
	MaxResults int
}

// NewURLDiscoverer builds a discoverer.
func NewURLDiscoverer(cfg DiscovererConfig, logger *zap.Logger) *URLDiscoverer {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &URLDiscoverer{
		registry:  cfg.Registry,
		patterns:  cfg.Patterns,
		verifier:  cfg.Verifier,
		searcher:  cfg.Searcher,
		picker:    cfg.Picker,
		stateName: stateNames,
		unwanted:  cfg.Unwanted,
		maxSearch: cfg.MaxResults,
		logger:    logger,
	}
}

// Resolution is a discovered URL and its provenance. Only registry hits
// carry verification; guessed and searched URLs stay unverified so later
// runs re-arbitrate them.
type Resolution struct {
	URL      string
	Verified bool
}

// Discover runs the phases in order and returns the first URL that holds
// up. Registry hits are trusted as-is; guessed and searched URLs must pass
// identity verification.
func (d *URLDiscoverer) Discover(ctx context.Context, name, state, category string) (Resolution, bool) {
	return d.discover(ctx, name, name, state, category)
}

// DiscoverDistrict resolves a special district run by a parent
// jurisdiction. The registry is consulted under the district's full name;
// domain patterns build on the parent's name, since district templates
// already carry the district suffix.
func (d *URLDiscoverer) DiscoverDistrict(ctx context.Context, fullName, parentName, state, category string) (Resolution, bool) {
	return d.discover(ctx, fullName, parentName, state, category)
}

func (d *URLDiscoverer) discover(ctx context.Context, name, patternName, state, category string) (Resolution, bool) {
	if d.registry != nil {
		if url, ok := d.registry.Lookup(state, name); ok {
			d.logger.Debug("registry resolved entity",
				zap.String("name", name), zap.String("url", url))
			return Resolution{URL: url, Verified: true}, true
		}
	}

	id := discovery.Identity{
		EntityName: name,
		StateAbbr:  state,
		StateName:  d.stateName[state],
		Unwanted:   d.unwanted,
	}

	if d.patterns != nil && d.verifier != nil {
		set := d.patterns.GenerateCategory(patternName, state, category)
		if url, ok := d.verifier.BestCandidate(ctx, set, id); ok {
			d.logger.Debug("pattern probe resolved entity",
				zap.String("name", name), zap.String("url", url))
			return Resolution{URL: url}, true
		}
	}

	if d.searcher != nil && d.picker != nil {
		query := name + " " + state + " official website " + category
		results, err := d.searcher.Text(ctx, query, d.maxSearch)
		if err != nil {
			d.logger.Warn("discovery search failed", zap.String("name", name), zap.Error(err))
			return Resolution{}, false
		}
		if url, ok := d.picker.PickBestResult(ctx, name, state, results); ok {
			if d.verifier == nil || d.verifier.Reachable(ctx, url) {
				d.logger.Debug("search resolved entity",
					zap.String("name", name), zap.String("url", url))
				return Resolution{URL: url}, true
			}
		}
	}

	return Resolution{}, false
}

// USPS abbreviations to full state names, used for identity matching.
var stateNames = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": "Delaware",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho",
	"IL": "Illinois", "IN": "Indiana", "IA": "Iowa", "KS": "Kansas",
	"KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi",
	"MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada",
	"NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma",
	"OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah",
	"VT": "Vermont", "VA": "Virginia", "WA": "Washington", "WV": "West Virginia",
	"WI": "Wisconsin", "WY": "Wyoming", "DC": "District of Columbia",
}
