package progress

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

// ErrInvalidTransition is returned when a Tracker method is called from a
// state that does not allow it.
var ErrInvalidTransition = errors.New("invalid run state transition")

// Tracker owns the RunProgress of the current or most recent run. Writes come
// from the scheduler only; Snapshot is safe from any goroutine.
type Tracker struct {
	mu    sync.RWMutex
	state vacancy.RunProgress
}

// NewTracker returns an idle Tracker.
func NewTracker() *Tracker {
	return &Tracker{state: vacancy.RunProgress{Status: vacancy.RunIdle}}
}

// Begin moves an idle or finished tracker to starting and clears the previous
// run. It returns vacancy.ErrRunInProgress while a run is starting or running.
func (t *Tracker) Begin(runID string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state.Status {
	case vacancy.RunStarting, vacancy.RunRunning:
		return vacancy.ErrRunInProgress
	}
	started := at
	t.state = vacancy.RunProgress{
		RunID:     runID,
		Status:    vacancy.RunStarting,
		StartedAt: &started,
	}
	return nil
}

// Running records the number of sites the run will process.
func (t *Tracker) Running(total int) error {
	if total < 0 {
		return fmt.Errorf("%w: negative total %d", ErrInvalidTransition, total)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.expect(vacancy.RunStarting); err != nil {
		return err
	}
	t.state.Status = vacancy.RunRunning
	t.state.Total = total
	t.state.Completed = 0
	return nil
}

// Advance adds n finished sites, capped at the total.
func (t *Tracker) Advance(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: negative advance %d", ErrInvalidTransition, n)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.expect(vacancy.RunRunning); err != nil {
		return err
	}
	t.state.Completed = min(t.state.Completed+n, t.state.Total)
	return nil
}

// Complete finishes a running run with its summary.
func (t *Tracker) Complete(summary vacancy.RunSummary, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.expect(vacancy.RunRunning); err != nil {
		return err
	}
	finished := at
	t.state.Status = vacancy.RunCompleted
	t.state.FinishedAt = &finished
	t.state.Summary = &summary
	return nil
}

// Fail ends a starting or running run. Completed keeps its last value.
func (t *Tracker) Fail(cause error, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.expect(vacancy.RunStarting, vacancy.RunRunning); err != nil {
		return err
	}
	finished := at
	t.state.Status = vacancy.RunFailed
	t.state.FinishedAt = &finished
	if cause != nil {
		t.state.Error = cause.Error()
	}
	return nil
}

// Snapshot returns a deep copy of the current progress.
func (t *Tracker) Snapshot() vacancy.RunProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := t.state
	if t.state.StartedAt != nil {
		started := *t.state.StartedAt
		snap.StartedAt = &started
	}
	if t.state.FinishedAt != nil {
		finished := *t.state.FinishedAt
		snap.FinishedAt = &finished
	}
	if t.state.Summary != nil {
		summary := *t.state.Summary
		snap.Summary = &summary
	}
	return snap
}

func (t *Tracker) expect(allowed ...vacancy.RunStatus) error {
	for _, status := range allowed {
		if t.state.Status == status {
			return nil
		}
	}
	return fmt.Errorf("%w: run is %s", ErrInvalidTransition, t.state.Status)
}
