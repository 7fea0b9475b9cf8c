// Package postgres implements vacancy.ResultStore on Postgres via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/vacancy-crawler/internal/store"
	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

const schema = `
CREATE TABLE IF NOT EXISTS sites (
	id          BIGINT PRIMARY KEY,
	name        TEXT NOT NULL,
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	website     TEXT NOT NULL DEFAULT '',
	vacancy_url TEXT NOT NULL DEFAULT '',
	enabled     BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE TABLE IF NOT EXISTS vacancies (
	id            BIGSERIAL PRIMARY KEY,
	site_id       BIGINT NOT NULL,
	title         TEXT NOT NULL,
	url           TEXT NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL,
	UNIQUE (site_id, url)
);
CREATE TABLE IF NOT EXISTS outcomes (
	id            BIGSERIAL PRIMARY KEY,
	run_id        TEXT NOT NULL,
	site_id       BIGINT NOT NULL,
	success       BOOLEAN NOT NULL,
	error_kind    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	links_found   INTEGER NOT NULL DEFAULT 0,
	fetched_url   TEXT NOT NULL DEFAULT '',
	occurred_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS outcomes_site_idx ON outcomes (site_id, occurred_at);
CREATE TABLE IF NOT EXISTS site_stats (
	site_id             BIGINT PRIMARY KEY,
	total_outcomes      INTEGER NOT NULL,
	successful_outcomes INTEGER NOT NULL,
	success_rate        DOUBLE PRECISION NOT NULL,
	last_success_at     TIMESTAMPTZ,
	last_scraped_at     TIMESTAMPTZ
);`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store needs; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

type rowQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements vacancy.ResultStore on Postgres.
type Store struct {
	pool pool
}

// Open connects to Postgres and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: p}
	if err := s.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &Store{pool: p}, nil
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

// SyncSites upserts the registry rows in one transaction.
func (s *Store) SyncSites(ctx context.Context, sites []vacancy.Site) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin sync sites: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	const query = `
INSERT INTO sites (id, name, latitude, longitude, website, vacancy_url, enabled)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	website = EXCLUDED.website,
	vacancy_url = EXCLUDED.vacancy_url,
	enabled = EXCLUDED.enabled`
	for _, site := range sites {
		if _, err := tx.Exec(ctx, query,
			site.ID, site.Name, site.Latitude, site.Longitude, site.HomeURL, site.VacancyURL, site.Enabled,
		); err != nil {
			return fmt.Errorf("upsert site %d: %w", site.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit sync sites: %w", err)
	}
	return nil
}

// ListSites returns every site ordered by ID with its materialized stats.
func (s *Store) ListSites(ctx context.Context) ([]vacancy.SiteWithStats, error) {
	rows, err := s.pool.Query(ctx, `
SELECT s.id, s.name, s.latitude, s.longitude, s.website, s.vacancy_url, s.enabled,
       COALESCE(st.total_outcomes, 0), COALESCE(st.successful_outcomes, 0),
       COALESCE(st.success_rate, 0), st.last_success_at, st.last_scraped_at
FROM sites s
LEFT JOIN site_stats st ON st.site_id = s.id
ORDER BY s.id`)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()

	var out []vacancy.SiteWithStats
	for rows.Next() {
		var site vacancy.SiteWithStats
		if err := rows.Scan(&site.ID, &site.Name, &site.Latitude, &site.Longitude, &site.HomeURL,
			&site.VacancyURL, &site.Enabled, &site.Stats.TotalOutcomes, &site.Stats.SuccessfulOutcomes,
			&site.Stats.SuccessRate, &site.Stats.LastSuccessAt, &site.Stats.LastScrapedAt); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		site.Stats.SiteID = site.ID
		site.Stats.LastSuccessAt = utcPtr(site.Stats.LastSuccessAt)
		site.Stats.LastScrapedAt = utcPtr(site.Stats.LastScrapedAt)
		out = append(out, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return out, nil
}

// UpsertVacancy inserts rec unless (site_id, url) already exists.
func (s *Store) UpsertVacancy(ctx context.Context, rec vacancy.Record) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO vacancies (site_id, title, url, first_seen_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (site_id, url) DO NOTHING`,
		rec.SiteID, rec.Title, rec.URL, rec.FirstSeenAt.UTC())
	if err != nil {
		return false, fmt.Errorf("upsert vacancy: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordOutcome appends outcome and rewrites the site's stats row in the same
// transaction.
func (s *Store) RecordOutcome(ctx context.Context, outcome vacancy.Outcome) (vacancy.Outcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return vacancy.Outcome{}, fmt.Errorf("begin record outcome: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	outcome.OccurredAt = outcome.OccurredAt.UTC()
	if err := tx.QueryRow(ctx, `
INSERT INTO outcomes (run_id, site_id, success, error_kind, error_message, links_found, fetched_url, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`,
		outcome.RunID, outcome.SiteID, outcome.Success, string(outcome.ErrorKind),
		outcome.ErrorMessage, outcome.LinksFound, outcome.FetchedURL, outcome.OccurredAt,
	).Scan(&outcome.ID); err != nil {
		return vacancy.Outcome{}, fmt.Errorf("insert outcome: %w", err)
	}

	stats, err := computeStats(ctx, tx, outcome.SiteID)
	if err != nil {
		return vacancy.Outcome{}, err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO site_stats (site_id, total_outcomes, successful_outcomes, success_rate, last_success_at, last_scraped_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (site_id) DO UPDATE SET
	total_outcomes = EXCLUDED.total_outcomes,
	successful_outcomes = EXCLUDED.successful_outcomes,
	success_rate = EXCLUDED.success_rate,
	last_success_at = EXCLUDED.last_success_at,
	last_scraped_at = EXCLUDED.last_scraped_at`,
		stats.SiteID, stats.TotalOutcomes, stats.SuccessfulOutcomes, stats.SuccessRate,
		stats.LastSuccessAt, stats.LastScrapedAt,
	); err != nil {
		return vacancy.Outcome{}, fmt.Errorf("write site stats: %w", err)
	}

	if err := tx.QueryRow(ctx,
		`SELECT COALESCE((SELECT name FROM sites WHERE id = $1), '')`, outcome.SiteID,
	).Scan(&outcome.SiteName); err != nil {
		return vacancy.Outcome{}, fmt.Errorf("lookup site name: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return vacancy.Outcome{}, fmt.Errorf("commit record outcome: %w", err)
	}
	return outcome, nil
}

// ListOutcomes returns up to limit outcomes, newest first.
func (s *Store) ListOutcomes(ctx context.Context, limit int) ([]vacancy.Outcome, error) {
	rows, err := s.pool.Query(ctx, `
SELECT o.id, o.run_id, o.site_id, COALESCE(s.name, ''), o.success, o.error_kind,
       o.error_message, o.links_found, o.fetched_url, o.occurred_at
FROM outcomes o
LEFT JOIN sites s ON s.id = o.site_id
ORDER BY o.occurred_at DESC, o.id DESC
LIMIT $1`, store.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []vacancy.Outcome
	for rows.Next() {
		var (
			o    vacancy.Outcome
			kind string
		)
		if err := rows.Scan(&o.ID, &o.RunID, &o.SiteID, &o.SiteName, &o.Success, &kind,
			&o.ErrorMessage, &o.LinksFound, &o.FetchedURL, &o.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.ErrorKind = vacancy.ErrorKind(kind)
		o.OccurredAt = o.OccurredAt.UTC()
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}

// ListVacancies returns every vacancy joined with its site name, newest first.
func (s *Store) ListVacancies(ctx context.Context) ([]vacancy.Record, error) {
	rows, err := s.pool.Query(ctx, `
SELECT v.id, v.site_id, COALESCE(s.name, ''), v.title, v.url, v.first_seen_at
FROM vacancies v
LEFT JOIN sites s ON s.id = v.site_id
ORDER BY v.first_seen_at DESC, v.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query vacancies: %w", err)
	}
	defer rows.Close()

	var out []vacancy.Record
	for rows.Next() {
		var rec vacancy.Record
		if err := rows.Scan(&rec.ID, &rec.SiteID, &rec.SiteName, &rec.Title, &rec.URL, &rec.FirstSeenAt); err != nil {
			return nil, fmt.Errorf("scan vacancy: %w", err)
		}
		rec.FirstSeenAt = rec.FirstSeenAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vacancies: %w", err)
	}
	return out, nil
}

// SiteStats recomputes the stats for siteID from the outcome log.
func (s *Store) SiteStats(ctx context.Context, siteID int64) (vacancy.SiteStats, error) {
	stats, err := computeStats(ctx, s.pool, siteID)
	if err != nil {
		return vacancy.SiteStats{}, err
	}
	if stats.TotalOutcomes > 0 {
		return stats, nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sites WHERE id = $1)`, siteID).Scan(&exists); err != nil {
		return vacancy.SiteStats{}, fmt.Errorf("lookup site %d: %w", siteID, err)
	}
	if !exists {
		return vacancy.SiteStats{}, vacancy.ErrNotFound
	}
	return stats, nil
}

// AggregateStats summarizes the store; the success rate covers outcomes at or
// after since.
func (s *Store) AggregateStats(ctx context.Context, since time.Time) (vacancy.AggregateStats, error) {
	var (
		agg        vacancy.AggregateStats
		total      int
		successful int
	)
	if err := s.pool.QueryRow(ctx, `
SELECT
	(SELECT COUNT(*) FROM sites),
	(SELECT COUNT(*) FROM sites WHERE enabled),
	(SELECT COUNT(*) FROM vacancies),
	(SELECT MAX(occurred_at) FROM outcomes),
	(SELECT COUNT(*) FROM outcomes WHERE occurred_at >= $1),
	(SELECT COUNT(*) FROM outcomes WHERE occurred_at >= $1 AND success)`,
		since.UTC(),
	).Scan(&agg.TotalSites, &agg.EnabledSites, &agg.TotalVacancies, &agg.LastRunAt, &total, &successful); err != nil {
		return vacancy.AggregateStats{}, fmt.Errorf("query aggregate stats: %w", err)
	}
	agg.LastRunAt = utcPtr(agg.LastRunAt)
	agg.SuccessRate = vacancy.SuccessRate(successful, total)
	return agg, nil
}

// Close releases the pool. It always returns nil.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func computeStats(ctx context.Context, q rowQueryer, siteID int64) (vacancy.SiteStats, error) {
	stats := vacancy.SiteStats{SiteID: siteID}
	if err := q.QueryRow(ctx, `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE success),
       MAX(occurred_at) FILTER (WHERE success),
       MAX(occurred_at)
FROM outcomes WHERE site_id = $1`, siteID,
	).Scan(&stats.TotalOutcomes, &stats.SuccessfulOutcomes, &stats.LastSuccessAt, &stats.LastScrapedAt); err != nil {
		return vacancy.SiteStats{}, fmt.Errorf("compute site %d stats: %w", siteID, err)
	}
	stats.SuccessRate = vacancy.SuccessRate(stats.SuccessfulOutcomes, stats.TotalOutcomes)
	stats.LastSuccessAt = utcPtr(stats.LastSuccessAt)
	stats.LastScrapedAt = utcPtr(stats.LastScrapedAt)
	return stats, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
