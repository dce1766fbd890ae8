// Package store persists jurisdictions, agencies, and opportunities.
package store

import (
	"context"
	"errors"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
)

// ErrNotFound marks lookups for rows that do not exist.
var ErrNotFound = errors.New("not found")

// Store is the full persistence surface. Consumers should depend on the
// narrow slices they need; this is what the wiring layer hands out.
type Store interface {
	Jurisdictions(ctx context.Context, state string) ([]procure.Jurisdiction, error)
	InsertJurisdiction(ctx context.Context, j procure.Jurisdiction) (int64, error)

	AgenciesByState(ctx context.Context, state string) ([]procure.Agency, error)
	AgencyByName(ctx context.Context, state, name string) (procure.Agency, error)
	InsertAgency(ctx context.Context, a procure.Agency) (int64, error)
	UpdateAgencyURL(ctx context.Context, id int64, url string, verified bool) error
	DeleteAgency(ctx context.Context, id int64) error

	UpsertOpportunity(ctx context.Context, o procure.Opportunity) (bool, error)
	ListOpportunities(ctx context.Context, state string) ([]procure.Opportunity, error)
	UpdateOpportunity(ctx context.Context, o procure.Opportunity) error
	DeleteOpportunity(ctx context.Context, fingerprint string) error

	Close()
}
