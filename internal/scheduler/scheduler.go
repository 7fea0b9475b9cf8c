// Package scheduler drives scrape runs: it loads the site registry and runs
// site tasks in fixed-size concurrent batches separated by a pause.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/vacancy-crawler/internal/progress"
	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

// DefaultBatchSize applies when Config.BatchSize is zero. A zero BatchPause
// disables the pause; services normally use DefaultBatchPause.
const (
	DefaultBatchSize  = 5
	DefaultBatchPause = time.Second

	notifyTimeout = 10 * time.Second
)

// SiteRunner scrapes one site and always returns an Outcome.
type SiteRunner interface {
	Run(ctx context.Context, runID string, site vacancy.Site) vacancy.Outcome
}

// Config wires the scheduler's collaborators. Notifier and Emitter are optional.
type Config struct {
	Registry   vacancy.Registry
	Store      vacancy.ResultStore
	Runner     SiteRunner
	Tracker    *progress.Tracker
	Clock      vacancy.Clock
	IDs        vacancy.IDGenerator
	Notifier   vacancy.Notifier
	Emitter    progress.Emitter
	Logger     *zap.Logger
	BatchSize  int
	BatchPause time.Duration
	// BaseContext bounds runs launched with Start. Defaults to context.Background().
	BaseContext context.Context
}

// Scheduler coordinates runs. At most one run is active at a time.
type Scheduler struct {
	cfg    Config
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New validates cfg and builds a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("scheduler requires a registry")
	case cfg.Store == nil:
		return nil, errors.New("scheduler requires a result store")
	case cfg.Runner == nil:
		return nil, errors.New("scheduler requires a site runner")
	case cfg.Tracker == nil:
		return nil, errors.New("scheduler requires a progress tracker")
	case cfg.Clock == nil:
		return nil, errors.New("scheduler requires a clock")
	case cfg.IDs == nil:
		return nil, errors.New("scheduler requires an id generator")
	case cfg.BatchSize < 0:
		return nil, fmt.Errorf("batch size must be >= 0, got %d", cfg.BatchSize)
	case cfg.BatchPause < 0:
		return nil, fmt.Errorf("batch pause must be >= 0, got %s", cfg.BatchPause)
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Emitter == nil {
		cfg.Emitter = progress.NopEmitter{}
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, logger: logger.Named("scheduler")}, nil
}

// Start launches a run in the background and returns its ID. It returns
// vacancy.ErrRunInProgress while another run is starting or running.
func (s *Scheduler) Start() (string, error) {
	runID, err := s.begin()
	if err != nil {
		return "", err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.execute(s.cfg.BaseContext, runID) //nolint:errcheck // recorded in the tracker
	}()
	return runID, nil
}

// Run executes a run synchronously and returns its final progress. The error
// is the cause of a failed run.
func (s *Scheduler) Run(ctx context.Context) (vacancy.RunProgress, error) {
	runID, err := s.begin()
	if err != nil {
		return s.cfg.Tracker.Snapshot(), err
	}
	err = s.execute(ctx, runID)
	return s.cfg.Tracker.Snapshot(), err
}

// Progress returns a snapshot of the current or last run.
func (s *Scheduler) Progress() vacancy.RunProgress {
	return s.cfg.Tracker.Snapshot()
}

// Wait blocks until every run launched with Start has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) begin() (string, error) {
	runID, err := s.cfg.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	if err := s.cfg.Tracker.Begin(runID, s.cfg.Clock.Now()); err != nil {
		return "", err
	}
	return runID, nil
}

func (s *Scheduler) execute(ctx context.Context, runID string) error {
	logger := s.logger.With(zap.String("run_id", runID))
	start := time.Now()
	s.cfg.Emitter.Emit(progress.Event{RunID: runID, TS: s.cfg.Clock.Now(), Stage: progress.StageRunStart})

	sites, err := s.cfg.Registry.Sites(ctx)
	if err != nil {
		return s.fail(ctx, runID, fmt.Errorf("load sites: %w", err), logger)
	}
	if err := s.cfg.Store.SyncSites(ctx, sites); err != nil {
		return s.fail(ctx, runID, fmt.Errorf("sync sites: %w", err), logger)
	}
	enabled := make([]vacancy.Site, 0, len(sites))
	for _, site := range sites {
		if site.Enabled {
			enabled = append(enabled, site)
		}
	}
	if err := s.cfg.Tracker.Running(len(enabled)); err != nil {
		return s.fail(ctx, runID, err, logger)
	}
	logger.Info("run started", zap.Int("sites", len(enabled)), zap.Int("disabled", len(sites)-len(enabled)))

	outcomes := make([]vacancy.Outcome, len(enabled))
	for lo := 0; lo < len(enabled); lo += s.cfg.BatchSize {
		hi := min(lo+s.cfg.BatchSize, len(enabled))
		s.runBatch(ctx, runID, enabled[lo:hi], outcomes[lo:hi])

		if err := s.cfg.Tracker.Advance(hi - lo); err != nil {
			return s.fail(ctx, runID, err, logger)
		}
		snap := s.cfg.Tracker.Snapshot()
		s.cfg.Emitter.Emit(progress.Event{
			RunID:     runID,
			TS:        s.cfg.Clock.Now(),
			Stage:     progress.StageBatchDone,
			Completed: snap.Completed,
			Total:     snap.Total,
		})
		logger.Debug("batch finished", zap.Int("completed", snap.Completed), zap.Int("total", snap.Total))

		if hi == len(enabled) {
			break
		}
		err := s.cfg.Clock.Sleep(ctx, s.cfg.BatchPause)
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			return s.fail(ctx, runID, fmt.Errorf("run interrupted: %w", err), logger)
		}
	}

	summary := vacancy.Summarize(outcomes)
	if err := s.cfg.Tracker.Complete(summary, s.cfg.Clock.Now()); err != nil {
		return s.fail(ctx, runID, err, logger)
	}
	s.cfg.Emitter.Emit(progress.Event{
		RunID:     runID,
		TS:        s.cfg.Clock.Now(),
		Stage:     progress.StageRunDone,
		Completed: summary.Total,
		Total:     summary.Total,
		Dur:       time.Since(start),
		Note:      fmt.Sprintf("%d vacancies", summary.TotalVacancies),
	})
	logger.Info("run completed",
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.Int("vacancies", summary.TotalVacancies),
		zap.Duration("duration", time.Since(start)),
	)
	s.notify(ctx, logger)
	return nil
}

// runBatch runs every site of the batch concurrently and waits for all of
// them. Each goroutine writes only its own slot of out.
func (s *Scheduler) runBatch(ctx context.Context, runID string, batch []vacancy.Site, out []vacancy.Outcome) {
	var g errgroup.Group
	for i := range batch {
		g.Go(func() error {
			out[i] = s.cfg.Runner.Run(ctx, runID, batch[i])
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // site runners never return errors
}

func (s *Scheduler) fail(ctx context.Context, runID string, cause error, logger *zap.Logger) error {
	if err := s.cfg.Tracker.Fail(cause, s.cfg.Clock.Now()); err != nil {
		logger.Error("mark run failed", zap.Error(err))
	}
	s.cfg.Emitter.Emit(progress.Event{
		RunID: runID,
		TS:    s.cfg.Clock.Now(),
		Stage: progress.StageRunFailed,
		Note:  cause.Error(),
	})
	logger.Error("run failed", zap.Error(cause))
	s.notify(ctx, logger)
	return cause
}

func (s *Scheduler) notify(ctx context.Context, logger *zap.Logger) {
	if s.cfg.Notifier == nil {
		return
	}
	snap := s.cfg.Tracker.Snapshot()
	report := vacancy.RunReport{
		RunID:  snap.RunID,
		Status: snap.Status,
		Error:  snap.Error,
	}
	if snap.StartedAt != nil {
		report.StartedAt = *snap.StartedAt
	}
	if snap.FinishedAt != nil {
		report.FinishedAt = *snap.FinishedAt
	}
	if snap.Summary != nil {
		report.Summary = *snap.Summary
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	id, err := s.cfg.Notifier.Publish(pubCtx, report)
	if err != nil {
		logger.Warn("publish run report", zap.Error(err))
		return
	}
	logger.Debug("published run report", zap.String("message_id", id))
}
