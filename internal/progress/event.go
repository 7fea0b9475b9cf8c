package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart  Stage = "run_start"
	StageSiteDone  Stage = "site_done"
	StageBatchDone Stage = "batch_done"
	StageRunDone   Stage = "run_done"
	StageRunFailed Stage = "run_failed"
)

// boundary reports whether the stage closes a batch or a run.
func (s Stage) boundary() bool {
	return s == StageBatchDone || s == StageRunDone || s == StageRunFailed
}

// Event captures a single run milestone.
type Event struct {
	RunID string
	TS    time.Time
	Stage Stage

	// Site fields are set on site_done.
	SiteID    int64
	Site      string
	URL       string
	Success   bool
	ErrorKind string
	Links     int

	// Completed and Total describe run progress on batch and run events.
	Completed int
	Total     int

	Dur  time.Duration
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunFailed:
	case StageSiteDone:
		if e.SiteID <= 0 {
			return errors.New("site done requires site id")
		}
		if e.Links < 0 {
			return errors.New("links must be >= 0")
		}
	case StageBatchDone:
		if e.Completed < 0 || e.Completed > e.Total {
			return fmt.Errorf("batch done completed %d outside [0, %d]", e.Completed, e.Total)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Result labels an event outcome for metrics.
func (e Event) Result() string {
	switch e.Stage {
	case StageRunFailed:
		return "failed"
	case StageSiteDone:
		if e.Success {
			return "success"
		}
		return "failure"
	default:
		return "success"
	}
}
