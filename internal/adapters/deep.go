package adapters

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/browser"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
)

// Link text and hrefs that point from a homepage toward the bid listing.
// Ordered by how specific they are; the first hit wins.
var procurementKeywords = []string{
	"request for proposal",
	"bids & rfps",
	"bid opportunities",
	"current bids",
	"solicitations",
	"procurement",
	"purchasing",
	"rfp",
	"bids",
}

// File extensions a deep scan never navigates into.
var skipExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".zip": {},
}

// defaultReferrer makes the first visit look like a search-engine arrival.
const defaultReferrer = "https://www.google.com/"

// DeepAdapter drives a full browser for portals that render client-side or
// gate access behind bot checks.
type DeepAdapter struct {
	browser  *browser.Browser
	parser   CandidateParser
	referrer string
	logger   *zap.Logger
}

// NewDeep builds the browser-backed adapter. referrer is the header sent on
// the first navigation; empty means the search-engine default.
func NewDeep(b *browser.Browser, parser CandidateParser, referrer string, logger *zap.Logger) *DeepAdapter {
	if referrer == "" {
		referrer = defaultReferrer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeepAdapter{browser: b, parser: parser, referrer: referrer, logger: logger}
}

// Name implements Adapter.
func (a *DeepAdapter) Name() string { return "browser" }

// Collect arrives at the target like a person, hops to the bid listing if
// the landing page only links to it, and extracts candidates from the
// rendered text.
func (a *DeepAdapter) Collect(ctx context.Context, target Target) ([]procure.Candidate, error) {
	session, closeTab := a.browser.NewSession()
	defer closeTab()

	info, err := session.Arrive(ctx, target.URL, a.referrer)
	if err != nil {
		return nil, fmt.Errorf("arriving at %s: %w", target.URL, err)
	}
	if info.Status >= 400 {
		a.logger.Info("portal page not available",
			zap.String("url", target.URL), zap.Int("status", info.Status))
		return nil, nil
	}

	// Landing on a homepage is common; follow the most procurement-shaped
	// link one hop before harvesting.
	if better, ok, err := session.FindLinkByKeywords(ctx, procurementKeywords); err != nil {
		a.logger.Debug("link scan failed", zap.String("url", info.URL), zap.Error(err))
	} else if ok && better != info.URL && !IsFileURL(better) {
		if _, err := session.Navigate(ctx, better, info.URL); err != nil {
			a.logger.Warn("following bid listing link failed",
				zap.String("url", better), zap.Error(err))
		}
	}

	text, err := session.ExtractContent(ctx)
	if err != nil {
		return nil, fmt.Errorf("extracting content from %s: %w", target.URL, err)
	}

	candidates := a.parser.ParseOpportunities(ctx, text)
	a.logger.Debug("rendered page harvested",
		zap.String("url", target.URL), zap.Int("candidates", len(candidates)))
	return finalize(candidates, target), nil
}

// IsFileURL reports whether a URL points at a document rather than a page.
func IsFileURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	_, skip := skipExtensions[ext]
	return skip
}
