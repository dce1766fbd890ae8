package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
)

// Trade tags the classifier may emit. Anything outside this list is
// discarded so one creative model response cannot pollute the taxonomy.
var canonicalTrades = []string{
	"general construction",
	"concrete",
	"masonry",
	"metals",
	"carpentry",
	"roofing",
	"doors and windows",
	"finishes",
	"painting",
	"flooring",
	"plumbing",
	"hvac",
	"electrical",
	"earthwork",
	"paving",
	"utilities",
	"landscaping",
	"demolition",
	"environmental",
	"fire protection",
}

// Analyst runs the model-backed judgment calls. A nil Completer makes every
// method return its empty result, so an unset API key disables AI features
// without branching at call sites.
type Analyst struct {
	completer Completer
	logger    *zap.Logger
}

// NewAnalyst builds an Analyst. completer may be nil.
func NewAnalyst(completer Completer, logger *zap.Logger) *Analyst {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyst{completer: completer, logger: logger}
}

// Enabled reports whether a model is configured.
func (a *Analyst) Enabled() bool {
	return a != nil && a.completer != nil
}

const parseSystem = `You extract government procurement opportunities (RFPs, RFQs, bids,
solicitations) from web page text. Respond with a JSON array only. Each element:
{"title": string, "clientName": string, "deadline": string, "link": string, "description": string}.
Use empty strings for unknown fields. Respond with [] when the page lists no opportunities.`

// ParseOpportunities extracts candidate opportunities from page text. An
// empty slice is the answer for pages without listings, model failures, and
// a disabled analyst alike.
func (a *Analyst) ParseOpportunities(ctx context.Context, pageText string) []procure.Candidate {
	if !a.Enabled() || strings.TrimSpace(pageText) == "" {
		return nil
	}
	raw, err := a.completer.Complete(ctx, parseSystem, clipText(pageText, 48000))
	if err != nil {
		a.logger.Warn("opportunity extraction failed", zap.Error(err))
		return nil
	}
	candidates, err := decodeCandidates(raw)
	if err != nil {
		a.logger.Warn("opportunity extraction returned unparseable output",
			zap.Error(err), zap.String("head", clipText(raw, 200)))
		return nil
	}
	kept := candidates[:0]
	for _, c := range candidates {
		if strings.TrimSpace(c.Title) == "" {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

const classifySystem = `You classify a government procurement opportunity into construction
trade categories. Respond with a JSON array of lowercase trade names only, chosen from: %s.
Respond with [] when the opportunity is not construction-related.`

// ClassifyTrades tags an opportunity with trade categories. An empty slice
// means the opportunity is not construction work.
func (a *Analyst) ClassifyTrades(ctx context.Context, title, description string) []string {
	if !a.Enabled() {
		return nil
	}
	system := fmt.Sprintf(classifySystem, strings.Join(canonicalTrades, ", "))
	user := "Title: " + title + "\n\nDescription: " + clipText(description, 8000)
	raw, err := a.completer.Complete(ctx, system, user)
	if err != nil {
		a.logger.Warn("trade classification failed", zap.Error(err))
		return nil
	}

	var tags []string
	if err := json.Unmarshal([]byte(stripFences(raw)), &tags); err != nil {
		a.logger.Warn("trade classification returned unparseable output", zap.Error(err))
		return nil
	}
	return filterCanonical(tags)
}

const pickSystem = `You are given web search results for a local government entity. Pick the
single result most likely to be the entity's official website. Respond with that result's URL
and nothing else, or the word NONE if no result is the official site.`

// PickBestResult asks the model which search result is the entity's
// official site. False means none qualified.
func (a *Analyst) PickBestResult(ctx context.Context, entityName, state string, results []procure.SearchResult) (string, bool) {
	if !a.Enabled() || len(results) == 0 {
		return "", false
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Entity: %s, %s\n\nResults:\n", entityName, state)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, clipText(r.Snippet, 300))
	}
	raw, err := a.completer.Complete(ctx, pickSystem, sb.String())
	if err != nil {
		a.logger.Warn("search result ranking failed", zap.Error(err))
		return "", false
	}
	answer := strings.TrimSpace(stripFences(raw))
	if answer == "" || strings.EqualFold(answer, "NONE") {
		return "", false
	}
	// Accept only a URL that was actually in the result list.
	for _, r := range results {
		if strings.EqualFold(answer, r.URL) {
			return r.URL, true
		}
	}
	a.logger.Debug("model picked a url outside the result list", zap.String("answer", answer))
	return "", false
}

const relevanceSystem = `You decide whether a web page is a government procurement page: one that
lists or links to RFPs, bids, or solicitations. Respond with exactly YES or NO.`

// IsProcurementPage reports whether page text looks like a procurement
// listing. Model failure counts as no.
func (a *Analyst) IsProcurementPage(ctx context.Context, pageText string) bool {
	if !a.Enabled() {
		return false
	}
	raw, err := a.completer.Complete(ctx, relevanceSystem, clipText(pageText, 12000))
	if err != nil {
		a.logger.Warn("relevance check failed", zap.Error(err))
		return false
	}
	return strings.EqualFold(strings.TrimSpace(stripFences(raw)), "YES")
}

// decodeCandidates parses model output into candidates. Fenced code blocks
// and an {"rfps": [...]} envelope are both tolerated; models drift between
// the two.
func decodeCandidates(raw string) ([]procure.Candidate, error) {
	payload := strings.TrimSpace(stripFences(raw))
	if payload == "" {
		return nil, nil
	}

	var candidates []procure.Candidate
	if err := json.Unmarshal([]byte(payload), &candidates); err == nil {
		return candidates, nil
	}

	var envelope struct {
		RFPs []procure.Candidate `json:"rfps"`
	}
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return nil, fmt.Errorf("decoding candidates: %w", err)
	}
	return envelope.RFPs, nil
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 && !strings.ContainsAny(s[:idx], "{[") {
		// Drop the language tag line ("json" etc).
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func filterCanonical(tags []string) []string {
	allowed := make(map[string]struct{}, len(canonicalTrades))
	for _, t := range canonicalTrades {
		allowed[t] = struct{}{}
	}
	var out []string
	seen := make(map[string]struct{})
	for _, tag := range tags {
		key := strings.ToLower(strings.TrimSpace(tag))
		if _, ok := allowed[key]; !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func clipText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
