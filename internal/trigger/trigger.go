// Package trigger starts scrape runs on a cron schedule and, optionally, once
// at startup.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

// Starter launches a background run.
type Starter interface {
	Start() (string, error)
}

// Config controls when runs fire. An empty Schedule disables periodic runs.
type Config struct {
	Schedule     string
	RunOnStartup bool
	Starter      Starter
	Logger       *zap.Logger
}

// Trigger owns the cron loop.
type Trigger struct {
	cfg    Config
	cron   *cron.Cron
	logger *zap.Logger
}

// parser accepts standard 5-field expressions plus descriptors such as
// @daily and @every 6h.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates the schedule and builds a Trigger.
func New(cfg Config) (*Trigger, error) {
	if cfg.Starter == nil {
		return nil, errors.New("trigger requires a starter")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Trigger{cfg: cfg, logger: logger.Named("trigger")}

	t.cron = cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if spec := strings.TrimSpace(cfg.Schedule); spec != "" {
		if _, err := t.cron.AddFunc(spec, func() { t.fire("cron") }); err != nil {
			return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
		}
	}
	return t, nil
}

// Start fires the startup run when configured and starts the cron loop.
func (t *Trigger) Start() {
	if t.cfg.RunOnStartup {
		t.fire("startup")
	}
	t.cron.Start()
	if len(t.cron.Entries()) > 0 {
		t.logger.Info("periodic runs scheduled",
			zap.String("schedule", t.cfg.Schedule),
			zap.Time("next", t.cron.Entries()[0].Next))
	}
}

// Stop halts the cron loop and waits for an in-flight trigger call, or ctx.
// Runs already launched keep going.
func (t *Trigger) Stop(ctx context.Context) error {
	done := t.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop trigger: %w", ctx.Err())
	}
}

// fire starts a run unless one is already active and reports whether it did.
func (t *Trigger) fire(source string) bool {
	runID, err := t.cfg.Starter.Start()
	switch {
	case errors.Is(err, vacancy.ErrRunInProgress):
		t.logger.Info("run already in progress, skipping", zap.String("source", source))
		return false
	case err != nil:
		t.logger.Error("start run", zap.String("source", source), zap.Error(err))
		return false
	}
	t.logger.Info("run triggered", zap.String("source", source), zap.String("run_id", runID))
	return true
}
