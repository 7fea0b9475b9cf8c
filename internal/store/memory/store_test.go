package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/vacancy-crawler/internal/store/storetest"
	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

func TestStoreContract(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(*testing.T) vacancy.ResultStore { return New() })
}

func TestRecordOutcomeMaterializesStats(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	now := time.Now()
	_, err := s.RecordOutcome(ctx, vacancy.Outcome{SiteID: 4, Success: true, OccurredAt: now})
	require.NoError(t, err)
	_, err = s.RecordOutcome(ctx, vacancy.Outcome{SiteID: 4, Success: false, OccurredAt: now.Add(time.Second)})
	require.NoError(t, err)

	stats, ok := s.MaterializedStats(4)
	require.True(t, ok)
	require.Equal(t, 2, stats.TotalOutcomes)
	require.InDelta(t, 0.5, stats.SuccessRate, 1e-9)

	recomputed, err := s.SiteStats(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, stats, recomputed)
}
