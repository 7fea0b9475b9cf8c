package progress

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

func TestTrackerLifecycle(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	require.Equal(t, vacancy.RunIdle, tr.Snapshot().Status)

	start := time.Date(2026, 10, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, tr.Begin("run-1", start))
	snap := tr.Snapshot()
	require.Equal(t, vacancy.RunStarting, snap.Status)
	require.Equal(t, "run-1", snap.RunID)
	require.Equal(t, start, *snap.StartedAt)

	require.NoError(t, tr.Running(12))
	var seen []int
	for _, n := range []int{5, 5, 2} {
		require.NoError(t, tr.Advance(n))
		seen = append(seen, tr.Snapshot().Completed)
	}
	require.Equal(t, []int{5, 10, 12}, seen)

	summary := vacancy.RunSummary{Successful: 10, Failed: 2, Total: 12, TotalVacancies: 31}
	require.NoError(t, tr.Complete(summary, start.Add(time.Minute)))
	snap = tr.Snapshot()
	require.Equal(t, vacancy.RunCompleted, snap.Status)
	require.Equal(t, summary, *snap.Summary)
	require.Equal(t, start.Add(time.Minute), *snap.FinishedAt)
}

func TestTrackerAdvanceCapsAtTotal(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	require.NoError(t, tr.Begin("run", time.Now()))
	require.NoError(t, tr.Running(3))
	require.NoError(t, tr.Advance(5))
	require.Equal(t, 3, tr.Snapshot().Completed)
	require.ErrorIs(t, tr.Advance(-1), ErrInvalidTransition)
}

func TestTrackerRejectsDoubleBegin(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	require.NoError(t, tr.Begin("run-1", time.Now()))
	require.ErrorIs(t, tr.Begin("run-2", time.Now()), vacancy.ErrRunInProgress)

	require.NoError(t, tr.Running(1))
	require.ErrorIs(t, tr.Begin("run-2", time.Now()), vacancy.ErrRunInProgress)
	require.Equal(t, "run-1", tr.Snapshot().RunID)

	require.NoError(t, tr.Fail(errors.New("boom"), time.Now()))
	require.NoError(t, tr.Begin("run-2", time.Now()))
	snap := tr.Snapshot()
	require.Equal(t, "run-2", snap.RunID)
	require.Empty(t, snap.Error)
	require.Nil(t, snap.FinishedAt)
	require.Zero(t, snap.Completed)
}

func TestTrackerInvalidTransitions(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	require.ErrorIs(t, tr.Running(1), ErrInvalidTransition)
	require.ErrorIs(t, tr.Advance(1), ErrInvalidTransition)
	require.ErrorIs(t, tr.Complete(vacancy.RunSummary{}, time.Now()), ErrInvalidTransition)
	require.ErrorIs(t, tr.Fail(nil, time.Now()), ErrInvalidTransition)

	require.NoError(t, tr.Begin("run", time.Now()))
	require.ErrorIs(t, tr.Complete(vacancy.RunSummary{}, time.Now()), ErrInvalidTransition)
	require.ErrorIs(t, tr.Running(-1), ErrInvalidTransition)
}

func TestTrackerFailKeepsCompleted(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	require.NoError(t, tr.Begin("run", time.Now()))
	require.NoError(t, tr.Running(10))
	require.NoError(t, tr.Advance(5))
	require.NoError(t, tr.Fail(errors.New("run interrupted"), time.Now()))

	snap := tr.Snapshot()
	require.Equal(t, vacancy.RunFailed, snap.Status)
	require.Equal(t, 5, snap.Completed)
	require.Equal(t, "run interrupted", snap.Error)
	require.Nil(t, snap.Summary)
}

func TestTrackerSnapshotIsCopy(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	require.NoError(t, tr.Begin("run", time.Unix(100, 0).UTC()))
	snap := tr.Snapshot()
	*snap.StartedAt = time.Unix(0, 0)
	require.Equal(t, time.Unix(100, 0).UTC(), *tr.Snapshot().StartedAt)
}

func TestTrackerConcurrentReaders(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	require.NoError(t, tr.Begin("run", time.Now()))
	require.NoError(t, tr.Running(100))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for j := 0; j < 200; j++ {
				snap := tr.Snapshot()
				if snap.Completed < last || snap.Completed > snap.Total {
					t.Errorf("completed went from %d to %d (total %d)", last, snap.Completed, snap.Total)
					return
				}
				last = snap.Completed
			}
		}()
	}
	for i := 0; i < 100; i++ {
		require.NoError(t, tr.Advance(1))
	}
	wg.Wait()
	require.Equal(t, 100, tr.Snapshot().Completed)
}
