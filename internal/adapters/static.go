package adapters

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/qa"
)

// StaticAdapter harvests plain HTML listings with colly. It covers the
// long tail of municipal sites that render server-side.
type StaticAdapter struct {
	parser    CandidateParser
	userAgent string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewStatic builds the static-HTML adapter.
func NewStatic(parser CandidateParser, userAgent string, timeout time.Duration, logger *zap.Logger) *StaticAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaticAdapter{
		parser:    parser,
		userAgent: userAgent,
		timeout:   timeout,
		logger:    logger,
	}
}

// Name implements Adapter.
func (a *StaticAdapter) Name() string { return "static" }

// Collect fetches the page and extracts candidates from its text.
func (a *StaticAdapter) Collect(ctx context.Context, target Target) ([]procure.Candidate, error) {
	collector := colly.NewCollector()
	if a.userAgent != "" {
		collector.UserAgent = a.userAgent
	}
	// The compliance gate has already cleared this fetch.
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(a.timeout)

	var pageText string
	var pageBody *goquery.Selection
	var fetchErr error
	collector.OnHTML("body", func(e *colly.HTMLElement) {
		pageText = e.Text
		pageBody = e.DOM
	})
	collector.OnError(func(resp *colly.Response, err error) {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		fetchErr = fmt.Errorf("fetching %s (status %d): %w", target.URL, status, err)
	})

	if err := visit(ctx, collector, target.URL); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fetchErr
	}

	candidates := a.parser.ParseOpportunities(ctx, pageText)
	if len(candidates) == 0 {
		candidates = rowCandidates(pageBody)
	}
	a.logger.Debug("static page harvested",
		zap.String("url", target.URL), zap.Int("candidates", len(candidates)))
	return finalize(candidates, target), nil
}

// rowCandidates pulls candidates out of table rows when the parser found
// nothing. Covers the classic bid-board table: one row per solicitation
// with a link cell and a date cell.
func rowCandidates(body *goquery.Selection) []procure.Candidate {
	if body == nil {
		return nil
	}
	var out []procure.Candidate
	body.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		anchor := row.Find("a").First()
		title := strings.TrimSpace(anchor.Text())
		link, _ := anchor.Attr("href")
		if title == "" {
			title = strings.TrimSpace(row.Find("td").First().Text())
		}
		if !qa.IsValidTitle(title) {
			return
		}
		var deadline string
		row.Find("td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			text := strings.TrimSpace(cell.Text())
			if text == title {
				return true
			}
			if _, ok := qa.NormalizeDate(text); ok {
				deadline = text
				return false
			}
			return true
		})
		out = append(out, procure.Candidate{Title: title, Deadline: deadline, Link: link})
	})
	return out
}

// visit runs a blocking colly fetch under the caller's context.
func visit(ctx context.Context, collector *colly.Collector, rawURL string) error {
	done := make(chan error, 1)
	go func() {
		if err := collector.Visit(rawURL); err != nil {
			done <- fmt.Errorf("visit %s: %w", rawURL, err)
			return
		}
		collector.Wait()
		done <- nil
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// finalize fills in what page text cannot tell the parser: the client an
// opportunity belongs to and absolute links.
func finalize(candidates []procure.Candidate, target Target) []procure.Candidate {
	base, baseErr := url.Parse(target.URL)
	for i := range candidates {
		if strings.TrimSpace(candidates[i].Client) == "" {
			candidates[i].Client = target.Agency.Name
		}
		if candidates[i].Link == "" {
			candidates[i].Link = target.URL
			continue
		}
		if baseErr != nil {
			continue
		}
		if ref, err := url.Parse(candidates[i].Link); err == nil {
			candidates[i].Link = base.ResolveReference(ref).String()
		}
	}
	return candidates
}
