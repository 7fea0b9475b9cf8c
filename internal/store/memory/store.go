// Package memory provides an in-memory result store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/vacancy-crawler/internal/store"
	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

type vacancyKey struct {
	siteID int64
	url    string
}

// Store implements vacancy.ResultStore in memory.
type Store struct {
	mu        sync.RWMutex
	sites     map[int64]vacancy.Site
	vacancies []vacancy.Record
	index     map[vacancyKey]int
	outcomes  []vacancy.Outcome
	stats     map[int64]vacancy.SiteStats
	nextID    int64
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		sites: make(map[int64]vacancy.Site),
		index: make(map[vacancyKey]int),
		stats: make(map[int64]vacancy.SiteStats),
	}
}

// SyncSites upserts the registry rows; sites are never removed.
func (s *Store) SyncSites(_ context.Context, sites []vacancy.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, site := range sites {
		s.sites[site.ID] = site
	}
	return nil
}

// ListSites returns every site ordered by ID with its materialized stats.
func (s *Store) ListSites(_ context.Context) ([]vacancy.SiteWithStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]vacancy.SiteWithStats, 0, len(s.sites))
	for id, site := range s.sites {
		stats, ok := s.stats[id]
		if !ok {
			stats = vacancy.SiteStats{SiteID: id}
		}
		out = append(out, vacancy.SiteWithStats{Site: site, Stats: stats})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertVacancy inserts rec unless (site_id, url) already exists.
func (s *Store) UpsertVacancy(_ context.Context, rec vacancy.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := vacancyKey{siteID: rec.SiteID, url: rec.URL}
	if _, ok := s.index[key]; ok {
		return false, nil
	}
	s.nextID++
	rec.ID = s.nextID
	rec.FirstSeenAt = rec.FirstSeenAt.UTC()
	rec.SiteName = ""
	s.index[key] = len(s.vacancies)
	s.vacancies = append(s.vacancies, rec)
	return true, nil
}

// RecordOutcome appends outcome and refreshes the site's materialized stats.
func (s *Store) RecordOutcome(_ context.Context, outcome vacancy.Outcome) (vacancy.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	outcome.ID = s.nextID
	outcome.OccurredAt = outcome.OccurredAt.UTC()
	s.outcomes = append(s.outcomes, outcome)
	s.stats[outcome.SiteID] = vacancy.ComputeSiteStats(outcome.SiteID, s.outcomesFor(outcome.SiteID))
	return s.withSiteName(outcome), nil
}

// ListOutcomes returns up to limit outcomes, newest first.
func (s *Store) ListOutcomes(_ context.Context, limit int) ([]vacancy.Outcome, error) {
	limit = store.NormalizeLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]vacancy.Outcome, 0, min(limit, len(s.outcomes)))
	for _, o := range s.outcomes {
		out = append(out, s.withSiteName(o))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListVacancies returns every vacancy joined with its site name, newest first.
func (s *Store) ListVacancies(_ context.Context) ([]vacancy.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]vacancy.Record, 0, len(s.vacancies))
	for _, rec := range s.vacancies {
		rec.SiteName = s.sites[rec.SiteID].Name
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].FirstSeenAt.Equal(out[j].FirstSeenAt) {
			return out[i].FirstSeenAt.After(out[j].FirstSeenAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// SiteStats recomputes the stats for siteID from the outcome log.
func (s *Store) SiteStats(_ context.Context, siteID int64) (vacancy.SiteStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	outcomes := s.outcomesFor(siteID)
	if _, known := s.sites[siteID]; !known && len(outcomes) == 0 {
		return vacancy.SiteStats{}, vacancy.ErrNotFound
	}
	return vacancy.ComputeSiteStats(siteID, outcomes), nil
}

// MaterializedStats returns the stats persisted by the last RecordOutcome.
func (s *Store) MaterializedStats(siteID int64) (vacancy.SiteStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.stats[siteID]
	return stats, ok
}

// AggregateStats summarizes the store; the success rate covers outcomes at or
// after since.
func (s *Store) AggregateStats(_ context.Context, since time.Time) (vacancy.AggregateStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg := vacancy.AggregateStats{
		TotalSites:     len(s.sites),
		TotalVacancies: len(s.vacancies),
	}
	for _, site := range s.sites {
		if site.Enabled {
			agg.EnabledSites++
		}
	}
	var total, successful int
	for _, o := range s.outcomes {
		if agg.LastRunAt == nil || o.OccurredAt.After(*agg.LastRunAt) {
			at := o.OccurredAt
			agg.LastRunAt = &at
		}
		if o.OccurredAt.Before(since) {
			continue
		}
		total++
		if o.Success {
			successful++
		}
	}
	agg.SuccessRate = vacancy.SuccessRate(successful, total)
	return agg, nil
}

// Close implements vacancy.ResultStore.
func (s *Store) Close() error {
	return nil
}

func (s *Store) outcomesFor(siteID int64) []vacancy.Outcome {
	var out []vacancy.Outcome
	for _, o := range s.outcomes {
		if o.SiteID == siteID {
			out = append(out, o)
		}
	}
	return out
}

func (s *Store) withSiteName(o vacancy.Outcome) vacancy.Outcome {
	if site, ok := s.sites[o.SiteID]; ok {
		o.SiteName = site.Name
	}
	return o
}
