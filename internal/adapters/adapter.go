// Package adapters collects opportunity candidates from the different
// shapes of procurement portal: plain HTML listings, JavaScript-rendered
// pages, and hosted bid platforms. The registry maps portal names to
// adapters explicitly; there is no runtime discovery.
package adapters

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
)

// Target is one page an adapter should harvest.
type Target struct {
	Agency procure.Agency
	URL    string
}

// Adapter harvests candidates from a target. An empty slice with a nil
// error means the page simply listed nothing.
type Adapter interface {
	Name() string
	Collect(ctx context.Context, target Target) ([]procure.Candidate, error)
}

// CandidateParser turns page text into structured candidates.
type CandidateParser interface {
	ParseOpportunities(ctx context.Context, pageText string) []procure.Candidate
}

// Registry resolves which adapter handles a host. Hosts not in the portal
// map get the fallback adapter.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	portals  map[string]string // host -> adapter name
	fallback string
}

// NewRegistry builds an empty registry. portals maps hostnames to adapter
// names; fallback names the adapter for everything else.
func NewRegistry(portals map[string]string, fallback string) *Registry {
	normalized := make(map[string]string, len(portals))
	for host, name := range portals {
		normalized[normalizeHost(host)] = name
	}
	return &Registry{
		adapters: make(map[string]Adapter),
		portals:  normalized,
		fallback: fallback,
	}
}

// Register adds an adapter under its name. Registering the same name twice
// is a wiring bug and fails loudly.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := a.Name()
	if name == "" {
		return fmt.Errorf("adapter has no name")
	}
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter %q registered twice", name)
	}
	r.adapters[name] = a
	return nil
}

// ForURL picks the adapter for a target URL.
func (r *Registry) ForURL(rawURL string) (Adapter, error) {
	host := normalizeHost(hostPart(rawURL))
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.portals[host]
	if !ok {
		name = r.fallback
	}
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("no adapter registered as %q for %s", name, rawURL)
	}
	return a, nil
}

// Names lists registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}

func hostPart(rawURL string) string {
	rest := rawURL
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	if idx := strings.IndexAny(rest, "/?#"); idx >= 0 {
		rest = rest[:idx]
	}
	if idx := strings.Index(rest, ":"); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}
