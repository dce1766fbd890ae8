// Package procure defines core types shared across subsystems.
package procure

import "time"

// JurisdictionKind classifies a political subdivision.
type JurisdictionKind string

// Jurisdiction kinds stored in the jurisdictions table.
const (
	KindState  JurisdictionKind = "state"
	KindCounty JurisdictionKind = "county"
	KindCity   JurisdictionKind = "city"
	KindTown   JurisdictionKind = "town"
)

// Jurisdiction is a named political subdivision owned by a state. Rows are
// unique on (State, Name, Kind); inserts for an existing triple are no-ops.
type Jurisdiction struct {
	ID    int64            `json:"id"`
	State string           `json:"state"`
	Name  string           `json:"name"`
	Kind  JurisdictionKind `json:"kind"`
}

// Agency is an organization whose procurement page is sought. URL is empty
// until discovery finds one; Verified is set only by the registry reconciler.
type Agency struct {
	ID             int64     `json:"id"`
	State          string    `json:"state"`
	Name           string    `json:"name"`
	URL            string    `json:"url,omitempty"`
	Verified       bool      `json:"verified"`
	Category       string    `json:"category"`
	JurisdictionID *int64    `json:"jurisdiction_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Opportunity is a single construction solicitation. Fingerprint is the
// primary key: a deterministic hash of the normalized (title, client,
// source URL) triple, so re-scraping the same solicitation upserts.
type Opportunity struct {
	Fingerprint string    `json:"fingerprint"`
	Client      string    `json:"client"`
	Title       string    `json:"title"`
	Deadline    time.Time `json:"deadline"`
	SourceURL   string    `json:"source_url"`
	State       string    `json:"state"`
	Description string    `json:"description,omitempty"`
	TradeTags   []string  `json:"trade_tags,omitempty"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// Candidate is the raw shape returned by site adapters and the generative
// extractor before the QA pipeline has touched it.
type Candidate struct {
	Title       string `json:"title"`
	Client      string `json:"clientName"`
	Deadline    string `json:"deadline"`
	Link        string `json:"link"`
	Description string `json:"description"`
}

// DiscoveryTask is an ephemeral unit of discovery work. Tasks are generated
// fresh per job run and never persisted.
type DiscoveryTask struct {
	State          string
	JurisdictionID *int64
	Name           string
	Kind           JurisdictionKind
	Category       string
	Phase          string
}

// SearchResult is one entry returned by the search collaborator.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
