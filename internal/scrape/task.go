// Package scrape runs the fetch-extract-persist pipeline for a single site.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/vacancy-crawler/internal/progress"
	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

// Attempt labels, in the order they are tried.
const (
	LabelVacancyURL = "vacancy_url"
	LabelHomeURL    = "website"
)

// Config holds the collaborators of a Task. Archive, Hasher and Emitter are
// optional.
type Config struct {
	Fetcher        vacancy.Fetcher
	Extractor      vacancy.Extractor
	Store          vacancy.ResultStore
	Clock          vacancy.Clock
	Archive        vacancy.BlobStore
	Hasher         vacancy.Hasher
	Emitter        progress.Emitter
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

// Task scrapes one site per Run call. It is safe for concurrent use.
type Task struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and builds a Task.
func New(cfg Config) (*Task, error) {
	switch {
	case cfg.Fetcher == nil:
		return nil, errors.New("scrape task requires a fetcher")
	case cfg.Extractor == nil:
		return nil, errors.New("scrape task requires an extractor")
	case cfg.Store == nil:
		return nil, errors.New("scrape task requires a result store")
	case cfg.Clock == nil:
		return nil, errors.New("scrape task requires a clock")
	case cfg.Archive != nil && cfg.Hasher == nil:
		return nil, errors.New("scrape task archive requires a hasher")
	}
	if cfg.Emitter == nil {
		cfg.Emitter = progress.NopEmitter{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Task{cfg: cfg, logger: logger.Named("scrape")}, nil
}

// Run scrapes site and always returns the recorded Outcome. Failures, panics
// included, are folded into the Outcome instead of being returned.
func (t *Task) Run(ctx context.Context, runID string, site vacancy.Site) (outcome vacancy.Outcome) {
	start := time.Now()
	logger := t.logger.With(zap.String("run_id", runID), zap.Int64("site_id", site.ID), zap.String("site", site.Name))

	var (
		links   int
		fetched string
		err     error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("site scrape panicked", zap.Any("panic", r), zap.Stack("stack"))
				err = &vacancy.UnexpectedError{Value: r}
			}
		}()
		links, fetched, err = t.scrape(ctx, runID, site, logger)
	}()

	outcome = t.record(ctx, runID, site, links, fetched, err, logger)
	t.cfg.Emitter.Emit(progress.Event{
		RunID:     runID,
		TS:        outcome.OccurredAt,
		Stage:     progress.StageSiteDone,
		SiteID:    site.ID,
		Site:      site.Name,
		URL:       fetched,
		Success:   outcome.Success,
		ErrorKind: string(outcome.ErrorKind),
		Links:     outcome.LinksFound,
		Dur:       time.Since(start),
	})
	return outcome
}

func (t *Task) scrape(ctx context.Context, runID string, site vacancy.Site, logger *zap.Logger) (int, string, error) {
	page, err := t.fetchWithFallback(ctx, site, logger)
	if err != nil {
		return 0, "", err
	}
	base := page.FinalURL
	if base == "" {
		base = page.RequestedURL
	}

	links, err := t.cfg.Extractor.Extract(page.Body, base, site.Name)
	if err != nil {
		logger.Warn("extraction failed, treating as no links", zap.String("url", base), zap.Error(err))
		links = nil
	}

	if err := t.persist(ctx, site, links); err != nil {
		return len(links), base, err
	}
	t.archive(ctx, runID, site, page, logger)
	return len(links), base, nil
}

// fetchWithFallback tries the vacancy URL first and the home URL second,
// stopping at the first success.
func (t *Task) fetchWithFallback(ctx context.Context, site vacancy.Site, logger *zap.Logger) (vacancy.Page, error) {
	candidates := make([]vacancy.Attempt, 0, 2)
	if site.VacancyURL != "" {
		candidates = append(candidates, vacancy.Attempt{Label: LabelVacancyURL, URL: site.VacancyURL})
	}
	if site.HomeURL != "" {
		candidates = append(candidates, vacancy.Attempt{Label: LabelHomeURL, URL: site.HomeURL})
	}
	if len(candidates) == 0 {
		return vacancy.Page{}, &vacancy.ConfigurationError{SiteID: site.ID, SiteName: site.Name}
	}

	tried := make([]vacancy.Attempt, 0, len(candidates))
	for _, candidate := range candidates {
		if len(tried) > 0 && ctx.Err() != nil {
			break
		}
		page, err := t.cfg.Fetcher.Fetch(ctx, vacancy.FetchRequest{URL: candidate.URL, Timeout: t.cfg.RequestTimeout})
		if err == nil {
			if len(tried) > 0 {
				logger.Info("fell back to home page", zap.String("url", candidate.URL))
			}
			return page, nil
		}
		logger.Debug("fetch attempt failed", zap.String("attempt", candidate.Label), zap.String("url", candidate.URL), zap.Error(err))
		candidate.Err = err
		tried = append(tried, candidate)
	}
	return vacancy.Page{}, &vacancy.AttemptsError{SiteName: site.Name, Attempts: tried}
}

// persist upserts every link; the first storage error fails the site after all
// links were attempted.
func (t *Task) persist(ctx context.Context, site vacancy.Site, links []vacancy.ExtractedLink) error {
	var (
		firstErr error
		failures int
	)
	now := t.cfg.Clock.Now()
	for _, link := range links {
		_, err := t.cfg.Store.UpsertVacancy(ctx, vacancy.Record{
			SiteID:      site.ID,
			Title:       link.Title,
			URL:         link.URL,
			FirstSeenAt: now,
		})
		if err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("store %d of %d vacancies failed: %w", failures, len(links), firstErr)
	}
	return nil
}

func (t *Task) archive(ctx context.Context, runID string, site vacancy.Site, page vacancy.Page, logger *zap.Logger) {
	if t.cfg.Archive == nil {
		return
	}
	digest, err := t.cfg.Hasher.Hash(page.Body)
	if err != nil {
		logger.Warn("hash page for archive", zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%d/%s.html", runID, site.ID, digest)
	contentType := page.ContentType
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	uri, err := t.cfg.Archive.PutObject(ctx, path, contentType, page.Body)
	if err != nil {
		logger.Warn("archive page", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Debug("archived page", zap.String("uri", uri))
}

func (t *Task) record(
	ctx context.Context,
	runID string,
	site vacancy.Site,
	links int,
	fetched string,
	cause error,
	logger *zap.Logger,
) vacancy.Outcome {
	outcome := vacancy.Outcome{
		RunID:      runID,
		SiteID:     site.ID,
		SiteName:   site.Name,
		Success:    cause == nil,
		FetchedURL: fetched,
		OccurredAt: t.cfg.Clock.Now(),
	}
	if cause == nil {
		outcome.LinksFound = links
	} else {
		outcome.ErrorKind = vacancy.KindOf(cause)
		outcome.ErrorMessage = cause.Error()
		logger.Warn("site scrape failed", zap.String("error_kind", string(outcome.ErrorKind)), zap.Error(cause))
	}

	stored, err := t.safeRecord(context.WithoutCancel(ctx), outcome)
	if err != nil {
		logger.Error("record outcome", zap.Error(err))
		if outcome.ErrorMessage != "" {
			outcome.ErrorMessage += "; "
		}
		outcome.ErrorMessage += "record outcome: " + err.Error()
		return outcome
	}
	return stored
}

func (t *Task) safeRecord(ctx context.Context, outcome vacancy.Outcome) (stored vacancy.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &vacancy.UnexpectedError{Value: r}
		}
	}()
	return t.cfg.Store.RecordOutcome(ctx, outcome)
}
