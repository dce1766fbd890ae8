// Package browser drives headless Chrome for portals that render their
// procurement listings with JavaScript or sit behind bot checks. Each
// navigation arrives the way a person would: referrer set, mouse moving,
// page scrolled in uneven steps.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls the shared browser and per-navigation behavior.
type Config struct {
	UserAgent         string
	Headless          bool
	NavTimeout        time.Duration
	ScrollCeiling     time.Duration
	ChallengeWait     time.Duration
	ChallengePoll     time.Duration
	ScreenshotOnError bool
}

func (c *Config) applyDefaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.ScrollCeiling <= 0 {
		c.ScrollCeiling = 12 * time.Second
	}
	if c.ChallengeWait <= 0 {
		c.ChallengeWait = 2 * time.Minute
	}
	if c.ChallengePoll <= 0 {
		c.ChallengePoll = 2 * time.Second
	}
}

// Browser owns one Chrome allocator shared by all sessions.
type Browser struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New starts the allocator. Close must be called to reap the Chrome
// process tree.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Browser{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context.
func (b *Browser) Close() {
	b.allocCancel()
}

// NewSession opens a fresh tab. The returned cleanup closes it.
func (b *Browser) NewSession() (*Session, func()) {
	tabCtx, tabCancel := chromedp.NewContext(b.allocator)
	s := &Session{
		ctx:    tabCtx,
		cfg:    b.cfg,
		logger: b.logger,
		meta:   &docMeta{},
	}
	chromedp.ListenTarget(tabCtx, s.meta.captureEvent)
	return s, tabCancel
}

// Session is one browser tab. Sessions are not safe for concurrent use;
// each job drives its own.
type Session struct {
	ctx    context.Context
	cfg    Config
	logger *zap.Logger
	meta   *docMeta
	cursor point // where the last drift left the mouse
}

// PageInfo describes the document a navigation landed on.
type PageInfo struct {
	URL    string
	Status int
}

// Arrive navigates to rawURL as a human would: the referrer header is set
// first, the page is loaded, any bot challenge is waited out, and the page
// is wandered with mouse movement and uneven scrolling.
func (s *Session) Arrive(ctx context.Context, rawURL, referrer string) (PageInfo, error) {
	info, err := s.Navigate(ctx, rawURL, referrer)
	if err != nil {
		return info, err
	}
	if err := s.awaitChallenge(ctx); err != nil {
		if errors.Is(err, ErrChallengeUnresolved) {
			s.dumpScreenshot(ctx, rawURL)
		}
		return info, err
	}
	if err := s.wander(ctx); err != nil {
		// Behavioral noise failing is not worth aborting the visit.
		s.logger.Debug("human behavior simulation failed", zap.Error(err))
	}
	return s.pageInfo(ctx, rawURL)
}

// Navigate loads rawURL with an optional referrer and waits for the DOM.
func (s *Session) Navigate(ctx context.Context, rawURL, referrer string) (PageInfo, error) {
	runCtx, cancel := s.boundedCtx(ctx, s.cfg.NavTimeout)
	defer cancel()

	actions := []chromedp.Action{
		s.setupAction(referrer),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return PageInfo{}, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	return s.pageInfo(ctx, rawURL)
}

func (s *Session) setupAction(referrer string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if referrer != "" {
			headers := network.Headers{"Referer": referrer}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set referrer: %w", err)
			}
		}
		return nil
	})
}

func (s *Session) pageInfo(ctx context.Context, requestURL string) (PageInfo, error) {
	var location string
	runCtx, cancel := s.boundedCtx(ctx, 5*time.Second)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Location(&location)); err != nil {
		return PageInfo{}, fmt.Errorf("reading location: %w", err)
	}
	status := s.meta.status()
	if status == 0 {
		status = 200
	}
	if location == "" {
		location = requestURL
	}
	return PageInfo{URL: location, Status: status}, nil
}

// BodyText returns document.body.innerText of the current page.
func (s *Session) BodyText(ctx context.Context) (string, error) {
	var text string
	runCtx, cancel := s.boundedCtx(ctx, s.cfg.NavTimeout)
	defer cancel()
	err := chromedp.Run(runCtx,
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	if err != nil {
		return "", fmt.Errorf("reading body text: %w", err)
	}
	return text, nil
}

const extractContentJS = `(() => {
	if (!document.body) return "";
	const clone = document.body.cloneNode(true);
	clone.querySelectorAll('script, style, nav, header, footer, noscript, iframe')
		.forEach(el => el.remove());
	return clone.innerText.replace(/\n{3,}/g, '\n\n').trim();
})()`

// ExtractContent returns the page's readable text with chrome (navigation,
// scripts, boilerplate) stripped out.
func (s *Session) ExtractContent(ctx context.Context) (string, error) {
	var text string
	runCtx, cancel := s.boundedCtx(ctx, s.cfg.NavTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Evaluate(extractContentJS, &text)); err != nil {
		return "", fmt.Errorf("extracting content: %w", err)
	}
	return text, nil
}

// Screenshot captures the visible viewport as a PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	runCtx, cancel := s.boundedCtx(ctx, 10*time.Second)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return buf, nil
}

// dumpScreenshot saves the blocked page for later inspection. Best effort;
// failures only log.
func (s *Session) dumpScreenshot(ctx context.Context, rawURL string) {
	if !s.cfg.ScreenshotOnError {
		return
	}
	shot, err := s.Screenshot(ctx)
	if err != nil {
		s.logger.Debug("screenshot failed", zap.Error(err))
		return
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("rfp-blocked-%d.png", time.Now().UnixMilli()))
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		s.logger.Debug("screenshot write failed", zap.Error(err))
		return
	}
	s.logger.Info("saved screenshot of blocked page",
		zap.String("url", rawURL), zap.String("path", path))
}

// FindLinkByKeywords scans every anchor on the page for the keyword that
// best suggests a procurement listing and returns its absolute href. False
// means no anchor matched, which most pages won't.
func (s *Session) FindLinkByKeywords(ctx context.Context, keywords []string) (string, bool, error) {
	script := buildLinkFinderJS(keywords)
	var href string
	runCtx, cancel := s.boundedCtx(ctx, 10*time.Second)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &href)); err != nil {
		return "", false, fmt.Errorf("scanning links: %w", err)
	}
	return href, href != "", nil
}

func buildLinkFinderJS(keywords []string) string {
	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		quoted = append(quoted, fmt.Sprintf("%q", kw))
	}
	return fmt.Sprintf(`(() => {
	const keywords = [%s];
	const anchors = Array.from(document.querySelectorAll('a'));
	const matches = (a, kw) => {
		const text = (a.innerText || '').toLowerCase();
		const href = (a.getAttribute('href') || '').toLowerCase();
		return text.includes(kw) || href.includes(kw);
	};
	// Same-host links first; an off-site hit is a last resort.
	for (const sameHost of [true, false]) {
		for (const kw of keywords) {
			for (const a of anchors) {
				if (!a.href) continue;
				if ((a.host === location.host) !== sameHost) continue;
				if (matches(a, kw)) return a.href;
			}
		}
	}
	return "";
})()`, strings.Join(quoted, ", "))
}

func (s *Session) boundedCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	merged, cancelMerge := mergeDone(s.ctx, ctx)
	runCtx, cancelTimeout := context.WithTimeout(merged, timeout)
	return runCtx, func() {
		cancelTimeout()
		cancelMerge()
	}
}

// mergeDone makes the tab context cancelable by the caller's context while
// keeping chromedp's target association.
func mergeDone(tab, caller context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(caller, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

// docMeta captures the status of the top-level document response.
type docMeta struct {
	mu         sync.Mutex
	statusCode int
}

func (m *docMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.statusCode = int(resp.Response.Status)
	m.mu.Unlock()
}

func (m *docMeta) status() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCode
}
