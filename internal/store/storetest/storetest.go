// Package storetest holds the behavioural contract every vacancy.ResultStore
// backend must satisfy.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/vacancy-crawler/internal/store"
	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) vacancy.ResultStore

var base = time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)

var testSites = []vacancy.Site{
	{ID: 1, Name: "Aa en Hunze", HomeURL: "https://www.aaenhunze.nl", Enabled: true},
	{ID: 2, Name: "Aalsmeer", VacancyURL: "https://www.werkenbijaalsmeer.nl/", Enabled: true},
	{ID: 3, Name: "Aalten", HomeURL: "https://www.aalten.nl", Enabled: false},
}

// Run executes the contract against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Helper()

	cases := map[string]func(*testing.T, vacancy.ResultStore){
		"UpsertVacancyIsIdempotent":       testUpsertIdempotent,
		"UpsertVacancyKeyIncludesSite":    testUpsertKeyIncludesSite,
		"RecordOutcomeRecomputesStats":    testRecordOutcomeStats,
		"ListOutcomesNewestFirst":         testListOutcomes,
		"ListVacanciesJoinsSiteName":      testListVacancies,
		"SiteStatsUnknownSite":            testSiteStatsUnknown,
		"AggregateStatsWindow":            testAggregateStats,
		"SyncSitesUpdatesRows":            testSyncSitesUpdates,
		"ConcurrentUpsertsKeepOneRow":     testConcurrentUpserts,
		"ListOutcomesDefaultLimitCapped":  testListOutcomesDefaultLimit,
		"ListSitesMatchesRecomputedStats": testListSitesStats,
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { require.NoError(t, s.Close()) })
			require.NoError(t, s.SyncSites(context.Background(), testSites))
			fn(t, s)
		})
	}
}

func testUpsertIdempotent(t *testing.T, s vacancy.ResultStore) {
	ctx := context.Background()
	rec := vacancy.Record{SiteID: 1, Title: "Beleidsmedewerker", URL: "https://a.nl/vacatures/123", FirstSeenAt: base}

	created, err := s.UpsertVacancy(ctx, rec)
	require.NoError(t, err)
	require.True(t, created)

	again := rec
	again.Title = "Beleidsmedewerker (herplaatst)"
	again.FirstSeenAt = base.Add(24 * time.Hour)
	created, err = s.UpsertVacancy(ctx, again)
	require.NoError(t, err)
	require.False(t, created)

	list, err := s.ListVacancies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Beleidsmedewerker", list[0].Title)
	require.True(t, base.Equal(list[0].FirstSeenAt), "first_seen_at changed to %v", list[0].FirstSeenAt)
}

func testUpsertKeyIncludesSite(t *testing.T, s vacancy.ResultStore) {
	ctx := context.Background()
	shared := "https://www.werkenbijdrechtsteden.nl/vacature/9"
	for _, siteID := range []int64{1, 2} {
		created, err := s.UpsertVacancy(ctx, vacancy.Record{SiteID: siteID, Title: "Jurist", URL: shared, FirstSeenAt: base})
		require.NoError(t, err)
		require.True(t, created)
	}
	list, err := s.ListVacancies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func testRecordOutcomeStats(t *testing.T, s vacancy.ResultStore) {
	ctx := context.Background()
	outcomes := []vacancy.Outcome{
		{RunID: "r1", SiteID: 1, Success: true, LinksFound: 3, FetchedURL: "https://a.nl/", OccurredAt: base},
		{RunID: "r2", SiteID: 1, Success: false, ErrorKind: vacancy.KindFetch, ErrorMessage: "timeout", OccurredAt: base.Add(time.Hour)},
		{RunID: "r3", SiteID: 1, Success: true, LinksFound: 1, OccurredAt: base.Add(2 * time.Hour)},
		{RunID: "r3", SiteID: 2, Success: false, ErrorKind: vacancy.KindConfiguration, OccurredAt: base.Add(2 * time.Hour)},
	}
	var lastID int64
	for _, o := range outcomes {
		stored, err := s.RecordOutcome(ctx, o)
		require.NoError(t, err)
		require.Greater(t, stored.ID, lastID)
		lastID = stored.ID
		require.Equal(t, o.RunID, stored.RunID)
		require.Equal(t, o.ErrorKind, stored.ErrorKind)
	}

	stats, err := s.SiteStats(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.SiteID)
	require.Equal(t, 3, stats.TotalOutcomes)
	require.Equal(t, 2, stats.SuccessfulOutcomes)
	require.InDelta(t, 2.0/3.0, stats.SuccessRate, 1e-9)
	require.NotNil(t, stats.LastSuccessAt)
	require.True(t, base.Add(2*time.Hour).Equal(*stats.LastSuccessAt))
	require.NotNil(t, stats.LastScrapedAt)
	require.True(t, base.Add(2*time.Hour).Equal(*stats.LastScrapedAt))

	stats, err = s.SiteStats(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalOutcomes)
	require.Zero(t, stats.SuccessRate)
	require.Nil(t, stats.LastSuccessAt)
}

func testListSitesStats(t *testing.T, s vacancy.ResultStore) {
	ctx := context.Background()
	pattern := []struct {
		siteID  int64
		success bool
	}{
		{1, true}, {2, false}, {1, false}, {1, true}, {2, true}, {1, false}, {2, false}, {2, false},
	}
	for i, p := range pattern {
		_, err := s.RecordOutcome(ctx, vacancy.Outcome{
			RunID:      fmt.Sprintf("r%d", i),
			SiteID:     p.siteID,
			Success:    p.success,
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	sites, err := s.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, len(testSites))
	for i, site := range sites {
		require.Equal(t, testSites[i].ID, site.ID)
		require.Equal(t, testSites[i].Name, site.Name)
		require.Equal(t, testSites[i].Enabled, site.Enabled)

		want, err := s.SiteStats(ctx, site.ID)
		require.NoError(t, err)
		got := site.Stats
		require.Equal(t, want.SiteID, got.SiteID)
		require.Equal(t, want.TotalOutcomes, got.TotalOutcomes)
		require.Equal(t, want.SuccessfulOutcomes, got.SuccessfulOutcomes)
		require.InDelta(t, want.SuccessRate, got.SuccessRate, 1e-9, "site %d", site.ID)
		requireSameInstant(t, want.LastSuccessAt, got.LastSuccessAt)
		requireSameInstant(t, want.LastScrapedAt, got.LastScrapedAt)
	}

	require.InDelta(t, 0.5, sites[0].Stats.SuccessRate, 1e-9)
	require.InDelta(t, 0.25, sites[1].Stats.SuccessRate, 1e-9)
	require.Zero(t, sites[2].Stats.TotalOutcomes)
	require.Nil(t, sites[2].Stats.LastScrapedAt)
}

func requireSameInstant(t *testing.T, want, got *time.Time) {
	t.Helper()
	if want == nil {
		require.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	require.True(t, want.Equal(*got), "want %v, got %v", *want, *got)
}

func testListOutcomes(t *testing.T, s vacancy.ResultStore) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.RecordOutcome(ctx, vacancy.Outcome{
			RunID:      "run",
			SiteID:     int64(i%2 + 1),
			Success:    i%2 == 0,
			LinksFound: i,
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	list, err := s.ListOutcomes(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.True(t, base.Add(4*time.Minute).Equal(list[0].OccurredAt))
	require.True(t, base.Add(2*time.Minute).Equal(list[2].OccurredAt))
	require.Equal(t, "Aa en Hunze", list[0].SiteName)
	require.Equal(t, "Aalsmeer", list[1].SiteName)
	require.Equal(t, 4, list[0].LinksFound)
}

func testListOutcomesDefaultLimit(t *testing.T, s vacancy.ResultStore) {
	ctx := context.Background()
	for i := 0; i < store.DefaultListLimit+5; i++ {
		_, err := s.RecordOutcome(ctx, vacancy.Outcome{RunID: "run", SiteID: 1, Success: true, OccurredAt: base.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}
	list, err := s.ListOutcomes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, store.DefaultListLimit)
}

func testListVacancies(t *testing.T, s vacancy.ResultStore) {
	ctx := context.Background()
	_, err := s.UpsertVacancy(ctx, vacancy.Record{SiteID: 1, Title: "Old", URL: "https://a.nl/jobs/1", FirstSeenAt: base})
	require.NoError(t, err)
	_, err = s.UpsertVacancy(ctx, vacancy.Record{SiteID: 2, Title: "New", URL: "https://b.nl/jobs/2", FirstSeenAt: base.Add(time.Hour)})
	require.NoError(t, err)

	list, err := s.ListVacancies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "New", list[0].Title)
	require.Equal(t, "Aalsmeer", list[0].SiteName)
	require.Equal(t, "Old", list[1].Title)
	require.Equal(t, "Aa en Hunze", list[1].SiteName)
	require.NotZero(t, list[0].ID)
}

func testSiteStatsUnknown(t *testing.T, s vacancy.ResultStore) {
	ctx := context.Background()
	_, err := s.SiteStats(ctx, 999)
	require.True(t, errors.Is(err, vacancy.ErrNotFound), "got %v", err)

	stats, err := s.SiteStats(ctx, 3)
	require.NoError(t, err)
	require.Zero(t, stats.TotalOutcomes)
	require.Zero(t, stats.SuccessRate)
	require.Nil(t, stats.LastScrapedAt)
}

func testAggregateStats(t *testing.T, s vacancy.ResultStore) {
	ctx := context.Background()
	_, err := s.UpsertVacancy(ctx, vacancy.Record{SiteID: 1, Title: "A", URL: "https://a.nl/jobs/1", FirstSeenAt: base})
	require.NoError(t, err)

	empty, err := s.AggregateStats(ctx, base)
	require.NoError(t, err)
	require.Equal(t, 3, empty.TotalSites)
	require.Equal(t, 2, empty.EnabledSites)
	require.Equal(t, 1, empty.TotalVacancies)
	require.Nil(t, empty.LastRunAt)
	require.Zero(t, empty.SuccessRate)

	for i, success := range []bool{false, false, true, true, false} {
		_, err := s.RecordOutcome(ctx, vacancy.Outcome{
			RunID:      "run",
			SiteID:     1,
			Success:    success,
			OccurredAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	agg, err := s.AggregateStats(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.InDelta(t, 2.0/3.0, agg.SuccessRate, 1e-9)
	require.NotNil(t, agg.LastRunAt)
	require.True(t, base.Add(4*time.Hour).Equal(*agg.LastRunAt))

	all, err := s.AggregateStats(ctx, time.Time{})
	require.NoError(t, err)
	require.InDelta(t, 0.4, all.SuccessRate, 1e-9)
}

func testSyncSitesUpdates(t *testing.T, s vacancy.ResultStore) {
	ctx := context.Background()
	renamed := testSites[0]
	renamed.Name = "Gemeente Aa en Hunze"
	renamed.Enabled = false
	require.NoError(t, s.SyncSites(ctx, []vacancy.Site{renamed}))

	_, err := s.UpsertVacancy(ctx, vacancy.Record{SiteID: 1, Title: "A", URL: "https://a.nl/jobs/1", FirstSeenAt: base})
	require.NoError(t, err)
	list, err := s.ListVacancies(ctx)
	require.NoError(t, err)
	require.Equal(t, "Gemeente Aa en Hunze", list[0].SiteName)

	agg, err := s.AggregateStats(ctx, base)
	require.NoError(t, err)
	require.Equal(t, 3, agg.TotalSites)
	require.Equal(t, 1, agg.EnabledSites)
}

func testConcurrentUpserts(t *testing.T, s vacancy.ResultStore) {
	ctx := context.Background()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.UpsertVacancy(ctx, vacancy.Record{
				SiteID:      2,
				Title:       fmt.Sprintf("Adviseur %d", i),
				URL:         "https://b.nl/vacature/1",
				FirstSeenAt: base,
			})
			if err != nil {
				t.Errorf("upsert %d: %v", i, err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, created)
	list, err := s.ListVacancies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
