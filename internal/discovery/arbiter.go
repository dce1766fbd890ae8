package discovery

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// LivenessProber reports whether a URL still answers with a 2xx.
type LivenessProber interface {
	Reachable(ctx context.Context, rawURL string) bool
}

// Arbiter decides whether a newly discovered URL should replace a stored
// one. Liveness probes are cached for the process lifetime: a registry sync
// compares many rows against the same handful of stored URLs.
type Arbiter struct {
	prober LivenessProber
	logger *zap.Logger

	mu    sync.Mutex
	alive map[string]bool
}

// NewArbiter builds an Arbiter on top of a liveness prober.
func NewArbiter(prober LivenessProber, logger *zap.Logger) *Arbiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Arbiter{
		prober: prober,
		logger: logger,
		alive:  make(map[string]bool),
	}
}

// Paths that count as "just the homepage" for root-domain checks.
var defaultIndexPaths = map[string]struct{}{
	"":            {},
	"/":           {},
	"/index.html": {},
	"/index.htm":  {},
	"/index.php":  {},
	"/home":       {},
	"/en":         {},
}

// IsRootDomain reports whether a URL points at a bare domain rather than a
// specific page.
func IsRootDomain(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	path := strings.TrimSuffix(strings.ToLower(u.Path), "/")
	if path == "" {
		return true
	}
	_, ok := defaultIndexPaths[path]
	return ok
}

// IsBetterURL applies the replacement rules in order:
//  1. no new URL never upgrades;
//  2. no existing URL always upgrades;
//  3. specificity guard: a live deep link (or live URL on another domain)
//     is never overwritten by a bare root domain, but a dead link always
//     loses;
//  4. a .gov domain replaces a non-.gov one.
func (a *Arbiter) IsBetterURL(ctx context.Context, newURL, oldURL string) bool {
	newURL = strings.TrimSpace(newURL)
	oldURL = strings.TrimSpace(oldURL)

	if newURL == "" {
		return false
	}
	if oldURL == "" {
		return true
	}

	if IsRootDomain(newURL) && (!IsRootDomain(oldURL) || hostOf(oldURL) != hostOf(newURL)) {
		if a.isAlive(ctx, oldURL) {
			a.logger.Debug("specificity guard kept existing url",
				zap.String("existing", oldURL), zap.String("candidate", newURL))
			return false
		}
		return true
	}

	if isGovHost(newURL) && !isGovHost(oldURL) {
		return true
	}
	return false
}

func (a *Arbiter) isAlive(ctx context.Context, rawURL string) bool {
	a.mu.Lock()
	cached, ok := a.alive[rawURL]
	a.mu.Unlock()
	if ok {
		return cached
	}

	live := a.prober != nil && a.prober.Reachable(ctx, rawURL)
	a.mu.Lock()
	a.alive[rawURL] = live
	a.mu.Unlock()
	return live
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func isGovHost(rawURL string) bool {
	host := hostOf(rawURL)
	return host == "gov" || strings.HasSuffix(host, ".gov")
}
