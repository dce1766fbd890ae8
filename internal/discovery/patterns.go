// Package discovery locates procurement URLs for entities known only by
// name: template-based domain guessing, live verification, URL quality
// arbitration, and web search as a last resort.
package discovery

import (
	"regexp"
	"strings"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
)

// CandidateSet holds generated domain candidates split by priority tier.
// Golden is always probed first; Generic is probed only when the earlier
// tiers verify nothing.
type CandidateSet struct {
	Golden   []string
	Specific []string
	Generic  []string
}

// URLs flattens the set in probe order with duplicates removed.
func (s CandidateSet) URLs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tier := range [][]string{s.Golden, s.Specific, s.Generic} {
		for _, u := range tier {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

// PatternGenerator expands domain templates into candidate URLs.
// Templates may contain [name] (or the kind-specific aliases [cityname],
// [countyname], [townname]) and [state_abbrev] placeholders.
type PatternGenerator struct {
	patterns map[string][]string
}

// NewPatternGenerator builds a generator from configured per-kind template
// lists. Kinds with no configured templates fall back to built-in sets.
func NewPatternGenerator(patterns map[string][]string) *PatternGenerator {
	return &PatternGenerator{patterns: patterns}
}

// Built-in fallbacks, .gov templates ahead of .org/.com.
var fallbackPatterns = map[string][]string{
	"city": {
		"[name].gov",
		"cityof[name].gov",
		"[name][state_abbrev].gov",
		"cityof[name].org",
	},
	"town": {
		"[name].gov",
		"townof[name].gov",
		"[name][state_abbrev].gov",
		"townof[name].org",
	},
	"county": {
		"[name]county.gov",
		"co.[name].[state_abbrev].us",
	},
	"housing authority": {
		"[name]housing.gov",
		"[name]ha.gov",
		"[name]housing.org",
		"[name]ha.org",
		"[name]housingauthority.com",
	},
	"public library": {
		"[name]library.gov",
		"[name]pl.gov",
		"[name]library.org",
		"[name]publiclibrary.org",
		"[name]pl.org",
	},
	"transit authority": {
		"[name]transit.gov",
		"[name]transit.org",
		"[name]metro.org",
	},
	"school district": {
		"[name]schools.gov",
		"[name]sd.org",
		"[name]isd.org",
		"[name]schools.org",
	},
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

// NormalizeName collapses an entity name for domain substitution:
// lowercased, whitespace and punctuation removed.
func NormalizeName(name string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(name), "")
}

// Generate produces the tiered candidate set for an entity. The golden
// pattern [name][state].gov and its www variant lead regardless of the
// configured templates; template candidates are split into a specific tier
// (templates containing the state abbreviation) and a generic name-only
// tier.
func (g *PatternGenerator) Generate(name, stateAbbr string, kind procure.JurisdictionKind) CandidateSet {
	return g.GenerateCategory(name, stateAbbr, string(kind))
}

// GenerateCategory is Generate for non-jurisdiction categories such as
// "Housing Authority".
func (g *PatternGenerator) GenerateCategory(name, stateAbbr, category string) CandidateSet {
	norm := NormalizeName(name)
	abbr := strings.ToLower(strings.TrimSpace(stateAbbr))
	if norm == "" {
		return CandidateSet{}
	}

	set := CandidateSet{
		Golden: expandDomain(norm + abbr + ".gov"),
	}

	for _, tpl := range g.templatesFor(category) {
		domain := substitute(tpl, norm, abbr)
		if domain == "" {
			continue
		}
		if strings.Contains(tpl, "[state_abbrev]") {
			set.Specific = append(set.Specific, expandDomain(domain)...)
		} else {
			set.Generic = append(set.Generic, expandDomain(domain)...)
		}
	}
	return set
}

func (g *PatternGenerator) templatesFor(category string) []string {
	key := strings.ToLower(strings.TrimSpace(category))
	if tpls, ok := g.patterns[key]; ok && len(tpls) > 0 {
		return tpls
	}
	return fallbackPatterns[key]
}

func substitute(tpl, norm, abbr string) string {
	out := tpl
	for _, alias := range []string{"[name]", "[cityname]", "[countyname]", "[townname]"} {
		out = strings.ReplaceAll(out, alias, norm)
	}
	out = strings.ReplaceAll(out, "[state_abbrev]", abbr)
	out = strings.TrimSpace(out)
	if out == "" || strings.Contains(out, "[") {
		return ""
	}
	return out
}

// expandDomain turns a bare domain into https URLs with and without www.
func expandDomain(domain string) []string {
	domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
	if domain == "" {
		return nil
	}
	return []string{
		"https://" + domain,
		"https://www." + domain,
	}
}
