// Package compliance gates every outbound fetch: robots.txt directives and
// randomized per-host pacing that keeps request timing human-shaped.
package compliance

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Gate answers two questions per URL: may we fetch it at all, and how long
// must we wait before doing so. One Gate is shared by every fetcher in the
// process so pacing holds across concurrent jobs.
type Gate struct {
	client    *http.Client
	userAgent string
	respect   bool
	minDelay  time.Duration
	maxDelay  time.Duration
	logger    *zap.Logger

	robotsCache sync.Map // host -> *robotstxt.RobotsData

	mu      sync.Mutex
	limiter map[string]*rate.Limiter
}

// Config carries the knobs for a Gate.
type Config struct {
	UserAgent     string
	RespectRobots bool
	MinDelay      time.Duration
	MaxDelay      time.Duration
}

// NewGate builds a Gate. Delays default to the 2-5 second band.
func NewGate(cfg Config, logger *zap.Logger) *Gate {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 2 * time.Second
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay + 3*time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: cfg.UserAgent,
		respect:   cfg.RespectRobots,
		minDelay:  cfg.MinDelay,
		maxDelay:  cfg.MaxDelay,
		logger:    logger,
		limiter:   make(map[string]*rate.Limiter),
	}
}

// Allowed reports whether robots.txt permits fetching rawURL. Unreachable
// or malformed robots files allow the fetch; an unparseable URL does not.
func (g *Gate) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	if !g.respect {
		return true
	}
	data, err := g.loadRobots(ctx, parsed)
	if err != nil {
		g.logger.Warn("robots fetch failed, allowing access",
			zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(g.userAgent)
	if group == nil {
		return true
	}
	return group.Test(parsed.Path)
}

// Wait blocks until the per-host pacing window has passed, honoring ctx
// cancellation. The first request to a host goes through immediately;
// subsequent requests are spaced by a randomized delay in the configured
// band.
func (g *Gate) Wait(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("pacing unparseable url %q", rawURL)
	}
	return g.hostLimiter(parsed.Host).Wait(ctx)
}

// Check is Allowed and Wait in one call, the usual shape at call sites.
func (g *Gate) Check(ctx context.Context, rawURL string) (bool, error) {
	if !g.Allowed(ctx, rawURL) {
		return false, nil
	}
	if err := g.Wait(ctx, rawURL); err != nil {
		return false, err
	}
	return true, nil
}

func (g *Gate) hostLimiter(host string) *rate.Limiter {
	key := strings.ToLower(host)
	g.mu.Lock()
	defer g.mu.Unlock()
	if lim, ok := g.limiter[key]; ok {
		return lim
	}
	// Randomize the steady-state interval per host so fleets of requests
	// to different hosts do not share a rhythm.
	span := g.maxDelay - g.minDelay
	interval := g.minDelay
	if span > 0 {
		interval += time.Duration(rand.Int64N(int64(span)))
	}
	lim := rate.NewLimiter(rate.Every(interval), 1)
	g.limiter[key] = lim
	return lim
}

func (g *Gate) loadRobots(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(parsed.Host)
	if cached, ok := g.robotsCache.Load(hostKey); ok {
		data, castOK := cached.(*robotstxt.RobotsData)
		if !castOK {
			return nil, fmt.Errorf("robots cache type mismatch: %T", cached)
		}
		return data, nil
	}

	robotsURL := *parsed
	robotsURL.Path = path.Join("/", "robots.txt")
	robotsURL.RawQuery = ""
	robotsURL.Fragment = ""
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	g.robotsCache.Store(hostKey, data)
	return data, nil
}
