package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Identity describes what a verified page must prove about itself.
type Identity struct {
	EntityName string
	StateAbbr  string
	StateName  string
	// Unwanted terms disqualify a candidate when they appear in the page
	// title; used to stop a city probe from matching a same-named school
	// district or housing authority.
	Unwanted []string
}

// Verifier probes candidate URLs over the network and checks that a page
// actually represents the target entity. "Nothing matched" is a normal
// outcome, not an error.
type Verifier struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewVerifier builds a Verifier with a short probe timeout.
func NewVerifier(timeout time.Duration, userAgent string, logger *zap.Logger) *Verifier {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// parking/for-sale/placeholder markers that disqualify a page outright.
var parkedMarkers = []string{
	"domain for sale",
	"buy this domain",
	"this domain is parked",
	"parked domain",
	"domain is available",
	"under construction",
	"coming soon",
	"godaddy",
	"sedoparking",
}

// Reachable reports whether a GET on rawURL, following redirects, lands on
// a 2xx response within the probe timeout.
func (v *Verifier) Reachable(ctx context.Context, rawURL string) bool {
	resp, err := v.get(ctx, rawURL)
	if err != nil {
		return false
	}
	defer drainClose(resp)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// VerifyIdentity fetches the page and checks that its title and meta
// description identify the target entity: no parking markers, the entity
// name as a whole word, the state abbreviation or full state name present,
// and none of the unwanted terms in the title.
func (v *Verifier) VerifyIdentity(ctx context.Context, rawURL string, id Identity) bool {
	resp, err := v.get(ctx, rawURL)
	if err != nil {
		return false
	}
	defer drainClose(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		v.logger.Debug("parse candidate page failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	desc, _ := doc.Find(`meta[name="description"]`).First().Attr("content")

	return matchesIdentity(title, desc, id)
}

func matchesIdentity(title, desc string, id Identity) bool {
	titleLower := strings.ToLower(title)
	combined := strings.ToLower(title + " " + desc)

	for _, marker := range parkedMarkers {
		if strings.Contains(combined, marker) {
			return false
		}
	}
	for _, term := range id.Unwanted {
		if term != "" && strings.Contains(titleLower, strings.ToLower(term)) {
			return false
		}
	}
	if !wholeWordMatch(combined, id.EntityName) {
		return false
	}
	if !wholeWordMatch(combined, id.StateAbbr) && !wholeWordMatch(combined, id.StateName) {
		return false
	}
	return true
}

func wholeWordMatch(haystack, needle string) bool {
	needle = strings.TrimSpace(strings.ToLower(needle))
	if needle == "" {
		return false
	}
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(needle) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(haystack)
}

// PageText fetches a page and returns its visible text, script and style
// blocks stripped and whitespace collapsed. The false return means the
// link is dead: unreachable, or an error status after redirects.
func (v *Verifier) PageText(ctx context.Context, rawURL string) (string, bool) {
	resp, err := v.get(ctx, rawURL)
	if err != nil {
		return "", false
	}
	defer drainClose(resp)
	if resp.StatusCode >= 400 {
		return "", false
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		v.logger.Debug("parse page failed", zap.String("url", rawURL), zap.Error(err))
		return "", false
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Find("body").Text()), " "), true
}

// BestCandidate probes a candidate set tier by tier: golden, then specific
// templates, then generic templates only if nothing earlier verified. Among
// all verified candidates of the winning tier the shortest URL wins as the
// most canonical. The second return is false when no candidate passed.
func (v *Verifier) BestCandidate(ctx context.Context, set CandidateSet, id Identity) (string, bool) {
	for _, tier := range [][]string{set.Golden, set.Specific, set.Generic} {
		if best, ok := v.verifyTier(ctx, tier, id); ok {
			return best, true
		}
	}
	return "", false
}

func (v *Verifier) verifyTier(ctx context.Context, tier []string, id Identity) (string, bool) {
	var best string
	for _, candidate := range tier {
		if ctx.Err() != nil {
			return best, best != ""
		}
		if !v.VerifyIdentity(ctx, candidate, id) {
			continue
		}
		if best == "" || len(candidate) < len(best) {
			best = candidate
		}
	}
	return best, best != ""
}

func (v *Verifier) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new probe request: %w", err)
	}
	if v.userAgent != "" {
		req.Header.Set("User-Agent", v.userAgent)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", rawURL, err)
	}
	return resp, nil
}

func drainClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<18))
	_ = resp.Body.Close()
}
