package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
)

// PostgresConfig controls the connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the pool surface the store uses; pgxmock satisfies it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres implements Store on a pgx pool.
type Postgres struct {
	pool querier
}

// NewPostgres connects a pool from config.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgresWithPool constructs a store from an existing pool, primarily
// for testing.
func NewPostgresWithPool(pool querier) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Jurisdictions lists the crawl targets for a state.
func (s *Postgres) Jurisdictions(ctx context.Context, state string) ([]procure.Jurisdiction, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, state, name, kind
FROM jurisdictions
WHERE state = $1
ORDER BY name`, state)
	if err != nil {
		return nil, fmt.Errorf("query jurisdictions: %w", err)
	}
	defer rows.Close()

	var out []procure.Jurisdiction
	for rows.Next() {
		var j procure.Jurisdiction
		var kind string
		if err := rows.Scan(&j.ID, &j.State, &j.Name, &kind); err != nil {
			return nil, fmt.Errorf("scan jurisdiction: %w", err)
		}
		j.Kind = procure.JurisdictionKind(kind)
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jurisdictions: %w", err)
	}
	return out, nil
}

// InsertJurisdiction adds a crawl target and returns its id. Inserting the
// same (state, name, kind) again returns the existing row's id; the no-op
// update is what lets RETURNING see the surviving row.
func (s *Postgres) InsertJurisdiction(ctx context.Context, j procure.Jurisdiction) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO jurisdictions (state, name, kind)
VALUES ($1, $2, $3)
ON CONFLICT (state, name, kind) DO UPDATE SET name = EXCLUDED.name
RETURNING id`, j.State, j.Name, string(j.Kind)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert jurisdiction: %w", err)
	}
	return id, nil
}

const agencyColumns = `id, state, name, url, verified, category, jurisdiction_id, created_at, updated_at`

// AgenciesByState lists every agency for a state.
func (s *Postgres) AgenciesByState(ctx context.Context, state string) ([]procure.Agency, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+agencyColumns+`
FROM agencies
WHERE state = $1
ORDER BY name`, state)
	if err != nil {
		return nil, fmt.Errorf("query agencies: %w", err)
	}
	defer rows.Close()

	var out []procure.Agency
	for rows.Next() {
		a, err := scanAgency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agencies: %w", err)
	}
	return out, nil
}

// AgencyByName finds an agency by case-insensitive name within a state.
func (s *Postgres) AgencyByName(ctx context.Context, state, name string) (procure.Agency, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+agencyColumns+`
FROM agencies
WHERE state = $1 AND lower(name) = lower($2)`, state, name)
	a, err := scanAgency(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return procure.Agency{}, ErrNotFound
	}
	return a, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgency(row rowScanner) (procure.Agency, error) {
	var a procure.Agency
	err := row.Scan(&a.ID, &a.State, &a.Name, &a.URL, &a.Verified,
		&a.Category, &a.JurisdictionID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return procure.Agency{}, err
		}
		return procure.Agency{}, fmt.Errorf("scan agency: %w", err)
	}
	return a, nil
}

// InsertAgency adds an agency and returns its id.
func (s *Postgres) InsertAgency(ctx context.Context, a procure.Agency) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO agencies (state, name, url, verified, category, jurisdiction_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now(), now())
RETURNING id`, a.State, a.Name, a.URL, a.Verified, a.Category, a.JurisdictionID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert agency: %w", err)
	}
	return id, nil
}

// UpdateAgencyURL replaces an agency's URL and verification flag.
func (s *Postgres) UpdateAgencyURL(ctx context.Context, id int64, url string, verified bool) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE agencies
SET url = $2, verified = $3, updated_at = now()
WHERE id = $1`, id, url, verified)
	if err != nil {
		return fmt.Errorf("update agency url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAgency removes an agency.
func (s *Postgres) DeleteAgency(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agencies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agency: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertOpportunity inserts or refreshes an opportunity keyed by its
// fingerprint. The bool reports whether a new row was created. Reruns of
// the same crawl touch last_seen, the deadline, and the trade tags only;
// everything else stays as first written.
func (s *Postgres) UpsertOpportunity(ctx context.Context, o procure.Opportunity) (bool, error) {
	var created bool
	err := s.pool.QueryRow(ctx, `
INSERT INTO opportunities
	(fingerprint, client, title, deadline, source_url, state, description, trade_tags, first_seen, last_seen)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
ON CONFLICT (fingerprint) DO UPDATE SET
	deadline = EXCLUDED.deadline,
	trade_tags = EXCLUDED.trade_tags,
	last_seen = now()
RETURNING (xmax = 0)`,
		o.Fingerprint, o.Client, o.Title, nullableTime(o.Deadline), o.SourceURL,
		o.State, o.Description, o.TradeTags).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert opportunity: %w", err)
	}
	return created, nil
}

// ListOpportunities returns a state's stored opportunities.
func (s *Postgres) ListOpportunities(ctx context.Context, state string) ([]procure.Opportunity, error) {
	rows, err := s.pool.Query(ctx, `
SELECT fingerprint, client, title, deadline, source_url, state, description, trade_tags, first_seen, last_seen
FROM opportunities
WHERE state = $1
ORDER BY deadline NULLS LAST`, state)
	if err != nil {
		return nil, fmt.Errorf("query opportunities: %w", err)
	}
	defer rows.Close()

	var out []procure.Opportunity
	for rows.Next() {
		var o procure.Opportunity
		var deadline *time.Time
		err := rows.Scan(&o.Fingerprint, &o.Client, &o.Title, &deadline, &o.SourceURL,
			&o.State, &o.Description, &o.TradeTags, &o.FirstSeen, &o.LastSeen)
		if err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		if deadline != nil {
			o.Deadline = *deadline
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate opportunities: %w", err)
	}
	return out, nil
}

// UpdateOpportunity rewrites an opportunity's mutable fields.
func (s *Postgres) UpdateOpportunity(ctx context.Context, o procure.Opportunity) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE opportunities
SET client = $2, title = $3, deadline = $4, description = $5, trade_tags = $6, last_seen = now()
WHERE fingerprint = $1`,
		o.Fingerprint, o.Client, o.Title, nullableTime(o.Deadline), o.Description, o.TradeTags)
	if err != nil {
		return fmt.Errorf("update opportunity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOpportunity removes an opportunity by fingerprint.
func (s *Postgres) DeleteOpportunity(ctx context.Context, fingerprint string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE fingerprint = $1`, fingerprint)
	if err != nil {
		return fmt.Errorf("delete opportunity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
