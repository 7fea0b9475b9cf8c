// Package sqlite implements vacancy.ResultStore on an embedded SQLite file
// using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/vacancy-crawler/internal/store"
	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

const schema = `
CREATE TABLE IF NOT EXISTS sites (
	id          INTEGER PRIMARY KEY,
	name        TEXT    NOT NULL,
	latitude    REAL,
	longitude   REAL,
	website     TEXT    NOT NULL DEFAULT '',
	vacancy_url TEXT    NOT NULL DEFAULT '',
	enabled     INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS vacancies (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id       INTEGER NOT NULL,
	title         TEXT    NOT NULL,
	url           TEXT    NOT NULL,
	first_seen_at INTEGER NOT NULL,
	UNIQUE (site_id, url)
);
CREATE TABLE IF NOT EXISTS outcomes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT    NOT NULL,
	site_id       INTEGER NOT NULL,
	success       INTEGER NOT NULL,
	error_kind    TEXT    NOT NULL DEFAULT '',
	error_message TEXT    NOT NULL DEFAULT '',
	links_found   INTEGER NOT NULL DEFAULT 0,
	fetched_url   TEXT    NOT NULL DEFAULT '',
	occurred_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS outcomes_site_idx ON outcomes (site_id, occurred_at);
CREATE INDEX IF NOT EXISTS outcomes_time_idx ON outcomes (occurred_at);
CREATE TABLE IF NOT EXISTS site_stats (
	site_id             INTEGER PRIMARY KEY,
	total_outcomes      INTEGER NOT NULL,
	successful_outcomes INTEGER NOT NULL,
	success_rate        REAL    NOT NULL,
	last_success_at     INTEGER,
	last_scraped_at     INTEGER
);`

// Store implements vacancy.ResultStore on SQLite. Timestamps are stored as
// unix nanoseconds in UTC.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection serializes upserts.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SyncSites upserts the registry rows.
func (s *Store) SyncSites(ctx context.Context, sites []vacancy.Site) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync sites: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	const query = `
INSERT INTO sites (id, name, latitude, longitude, website, vacancy_url, enabled)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	name = excluded.name,
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	website = excluded.website,
	vacancy_url = excluded.vacancy_url,
	enabled = excluded.enabled`
	for _, site := range sites {
		if _, err := tx.ExecContext(ctx, query,
			site.ID, site.Name, nullFloat(site.Latitude), nullFloat(site.Longitude),
			site.HomeURL, site.VacancyURL, site.Enabled,
		); err != nil {
			return fmt.Errorf("upsert site %d: %w", site.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync sites: %w", err)
	}
	return nil
}

// ListSites returns every site ordered by ID with its materialized stats.
func (s *Store) ListSites(ctx context.Context) ([]vacancy.SiteWithStats, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var (
			site                     vacancy.SiteWithStats
			lat, lon                 sql.NullFloat64
			lastSuccess, lastScraped sql.NullInt64
		)
		if err := rows.Scan(&site.ID, &site.Name, &lat, &lon, &site.HomeURL, &site.VacancyURL, &site.Enabled,
			&site.Stats.TotalOutcomes, &site.Stats.SuccessfulOutcomes, &site.Stats.SuccessRate,
			&lastSuccess, &lastScraped); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		site.Latitude = floatPtr(lat)
		site.Longitude = floatPtr(lon)
		site.Stats.SiteID = site.ID
		site.Stats.LastSuccessAt = nanosPtr(lastSuccess)
		site.Stats.LastScrapedAt = nanosPtr(lastScraped)
		out = append(out, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return out, nil
}

// UpsertVacancy inserts rec unless (site_id, url) already exists.
func (s *Store) UpsertVacancy(ctx context.Context, rec vacancy.Record) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO vacancies (site_id, title, url, first_seen_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (site_id, url) DO NOTHING`,
		rec.SiteID, rec.Title, rec.URL, toNanos(rec.FirstSeenAt))
	if err != nil {
		return false, fmt.Errorf("upsert vacancy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert vacancy rows affected: %w", err)
	}
	return n > 0, nil
}

// RecordOutcome appends outcome and rewrites the site's stats row in the same
// transaction.
func (s *Store) RecordOutcome(ctx context.Context, outcome vacancy.Outcome) (vacancy.Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vacancy.Outcome{}, fmt.Errorf("begin record outcome: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	outcome.OccurredAt = outcome.OccurredAt.UTC()
	res, err := tx.ExecContext(ctx, `
INSERT INTO outcomes (run_id, site_id, success, error_kind, error_message, links_found, fetched_url, occurred_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.RunID, outcome.SiteID, outcome.Success, string(outcome.ErrorKind),
		outcome.ErrorMessage, outcome.LinksFound, outcome.FetchedURL, toNanos(outcome.OccurredAt))
	if err != nil {
		return vacancy.Outcome{}, fmt.Errorf("insert outcome: %w", err)
	}
	if outcome.ID, err = res.LastInsertId(); err != nil {
		return vacancy.Outcome{}, fmt.Errorf("outcome id: %w", err)
	}

	stats, err := computeStats(ctx, tx, outcome.SiteID)
	if err != nil {
		return vacancy.Outcome{}, err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO site_stats (site_id, total_outcomes, successful_outcomes, success_rate, last_success_at, last_scraped_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (site_id) DO UPDATE SET
	total_outcomes = excluded.total_outcomes,
	successful_outcomes = excluded.successful_outcomes,
	success_rate = excluded.success_rate,
	last_success_at = excluded.last_success_at,
	last_scraped_at = excluded.last_scraped_at`,
		stats.SiteID, stats.TotalOutcomes, stats.SuccessfulOutcomes, stats.SuccessRate,
		nullNanos(stats.LastSuccessAt), nullNanos(stats.LastScrapedAt),
	); err != nil {
		return vacancy.Outcome{}, fmt.Errorf("write site stats: %w", err)
	}

	var name sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT name FROM sites WHERE id = ?`, outcome.SiteID).Scan(&name); err != nil &&
		!errors.Is(err, sql.ErrNoRows) {
		return vacancy.Outcome{}, fmt.Errorf("lookup site name: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return vacancy.Outcome{}, fmt.Errorf("commit record outcome: %w", err)
	}
	outcome.SiteName = name.String
	return outcome, nil
}

// ListOutcomes returns up to limit outcomes, newest first.
func (s *Store) ListOutcomes(ctx context.Context, limit int) ([]vacancy.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT o.id, o.run_id, o.site_id, COALESCE(s.name, ''), o.success, o.error_kind,
       o.error_message, o.links_found, o.fetched_url, o.occurred_at
FROM outcomes o
LEFT JOIN sites s ON s.id = o.site_id
ORDER BY o.occurred_at DESC, o.id DESC
LIMIT ?`, store.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []vacancy.Outcome
	for rows.Next() {
		var (
			o    vacancy.Outcome
			kind string
			at   int64
		)
		if err := rows.Scan(&o.ID, &o.RunID, &o.SiteID, &o.SiteName, &o.Success, &kind,
			&o.ErrorMessage, &o.LinksFound, &o.FetchedURL, &at); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.ErrorKind = vacancy.ErrorKind(kind)
		o.OccurredAt = fromNanos(at)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}

// ListVacancies returns every vacancy joined with its site name, newest first.
func (s *Store) ListVacancies(ctx context.Context) ([]vacancy.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT v.id, v.site_id, COALESCE(s.name, ''), v.title, v.url, v.first_seen_at
FROM vacancies v
LEFT JOIN sites s ON s.id = v.site_id
ORDER BY v.first_seen_at DESC, v.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query vacancies: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []vacancy.Record
	for rows.Next() {
		var (
			rec vacancy.Record
			at  int64
		)
		if err := rows.Scan(&rec.ID, &rec.SiteID, &rec.SiteName, &rec.Title, &rec.URL, &at); err != nil {
			return nil, fmt.Errorf("scan vacancy: %w", err)
		}
		rec.FirstSeenAt = fromNanos(at)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vacancies: %w", err)
	}
	return out, nil
}

// SiteStats recomputes the stats for siteID from the outcome log.
func (s *Store) SiteStats(ctx context.Context, siteID int64) (vacancy.SiteStats, error) {
	stats, err := computeStats(ctx, s.db, siteID)
	if err != nil {
		return vacancy.SiteStats{}, err
	}
	if stats.TotalOutcomes > 0 {
		return stats, nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM sites WHERE id = ?`, siteID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return vacancy.SiteStats{}, vacancy.ErrNotFound
	}
	if err != nil {
		return vacancy.SiteStats{}, fmt.Errorf("lookup site %d: %w", siteID, err)
	}
	return stats, nil
}

// AggregateStats summarizes the store; the success rate covers outcomes at or
// after since.
func (s *Store) AggregateStats(ctx context.Context, since time.Time) (vacancy.AggregateStats, error) {
	var (
		agg        vacancy.AggregateStats
		lastRun    sql.NullInt64
		total      int
		successful int
	)
	if err := s.db.QueryRowContext(ctx, `
SELECT
	(SELECT COUNT(*) FROM sites),
	(SELECT COUNT(*) FROM sites WHERE enabled = 1),
	(SELECT COUNT(*) FROM vacancies),
	(SELECT MAX(occurred_at) FROM outcomes),
	(SELECT COUNT(*) FROM outcomes WHERE occurred_at >= ?),
	(SELECT COALESCE(SUM(success), 0) FROM outcomes WHERE occurred_at >= ?)`,
		toNanos(since), toNanos(since),
	).Scan(&agg.TotalSites, &agg.EnabledSites, &agg.TotalVacancies, &lastRun, &total, &successful); err != nil {
		return vacancy.AggregateStats{}, fmt.Errorf("query aggregate stats: %w", err)
	}
	agg.LastRunAt = nanosPtr(lastRun)
	agg.SuccessRate = vacancy.SuccessRate(successful, total)
	return agg, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func computeStats(ctx context.Context, q queryer, siteID int64) (vacancy.SiteStats, error) {
	stats := vacancy.SiteStats{SiteID: siteID}
	var lastSuccess, lastScraped sql.NullInt64
	if err := q.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(success), 0),
       MAX(CASE WHEN success = 1 THEN occurred_at END),
       MAX(occurred_at)
FROM outcomes WHERE site_id = ?`, siteID,
	).Scan(&stats.TotalOutcomes, &stats.SuccessfulOutcomes, &lastSuccess, &lastScraped); err != nil {
		return vacancy.SiteStats{}, fmt.Errorf("compute site %d stats: %w", siteID, err)
	}
	stats.SuccessRate = vacancy.SuccessRate(stats.SuccessfulOutcomes, stats.TotalOutcomes)
	stats.LastSuccessAt = nanosPtr(lastSuccess)
	stats.LastScrapedAt = nanosPtr(lastScraped)
	return stats, nil
}

// toNanos maps the zero time to the smallest representable instant.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return math.MinInt64
	}
	return t.UTC().UnixNano()
}

// fromNanos is the inverse of toNanos.
func fromNanos(n int64) time.Time {
	if n == math.MinInt64 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nanosPtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
