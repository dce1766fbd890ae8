package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
)

// Searcher runs a text web search and returns ranked results.
type Searcher interface {
	Text(ctx context.Context, query string, max int) ([]procure.SearchResult, error)
}

// DuckDuckGoSearcher scrapes the HTML (no-JS) DuckDuckGo endpoint. It is the
// last-resort discovery phase when pattern probing finds nothing.
type DuckDuckGoSearcher struct {
	client    *http.Client
	endpoint  string
	userAgent string
	logger    *zap.Logger
}

// NewDuckDuckGoSearcher builds a searcher with the given timeout and UA.
func NewDuckDuckGoSearcher(timeout time.Duration, userAgent string, logger *zap.Logger) *DuckDuckGoSearcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DuckDuckGoSearcher{
		client:    &http.Client{Timeout: timeout},
		endpoint:  "https://html.duckduckgo.com/html/",
		userAgent: userAgent,
		logger:    logger,
	}
}

// Text searches and returns up to max results. An empty slice with a nil
// error means the query simply had no hits.
func (s *DuckDuckGoSearcher) Text(ctx context.Context, query string, max int) ([]procure.SearchResult, error) {
	if max <= 0 {
		max = 10
	}

	reqURL := s.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing search results: %w", err)
	}

	results := parseResults(doc, max)
	s.logger.Debug("web search completed",
		zap.String("query", query), zap.Int("results", len(results)))
	return results, nil
}

func parseResults(doc *goquery.Document, max int) []procure.SearchResult {
	var results []procure.SearchResult
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		anchor := sel.Find(".result__a").First()
		href, ok := anchor.Attr("href")
		if !ok {
			return true
		}
		target := resolveRedirect(href)
		if target == "" {
			return true
		}
		results = append(results, procure.SearchResult{
			Title:   strings.TrimSpace(anchor.Text()),
			URL:     target,
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").First().Text()),
		})
		return len(results) < max
	})
	return results
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}
