package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/vacancy-crawler/internal/store"
	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

// startScrape handles POST /api/scrape. It returns 202 {"run_id": ...} once
// the run is accepted and 409 while another run is starting or running.
func (s *Server) startScrape(w http.ResponseWriter, _ *http.Request) {
	runID, err := s.cfg.Runs.Start()
	if err != nil {
		if errors.Is(err, vacancy.ErrRunInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("start run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) progress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Runs.Progress())
}

// listLogs handles GET /api/logs?limit=N and returns outcomes newest first.
func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	outcomes, err := s.cfg.Results.ListOutcomes(ctx, limit)
	if err != nil {
		s.logger.Error("list outcomes failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}
	if outcomes == nil {
		outcomes = []vacancy.Outcome{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": outcomes})
}

func (s *Server) listVacancies(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	records, err := s.cfg.Results.ListVacancies(ctx)
	if err != nil {
		s.logger.Error("list vacancies failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list vacancies")
		return
	}
	if records == nil {
		records = []vacancy.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"vacancies": records})
}

// listSites handles GET /api/sites: every registry site with its cached
// success rate and scrape timestamps.
func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	sites, err := s.cfg.Results.ListSites(ctx)
	if err != nil {
		s.logger.Error("list sites failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sites")
		return
	}
	if sites == nil {
		sites = []vacancy.SiteWithStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

// aggregateStats handles GET /api/stats. The success rate covers outcomes
// within the configured window ending now.
func (s *Server) aggregateStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	since := s.cfg.Clock.Now().Add(-s.cfg.StatsWindow)
	stats, err := s.cfg.Results.AggregateStats(ctx, since)
	if err != nil {
		s.logger.Error("aggregate stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	stats.Window = s.cfg.StatsWindow
	writeJSON(w, http.StatusOK, toStatsDTO(stats))
}

// siteStats handles GET /api/sites/{site_id}/stats. It returns 400 for a
// malformed id and 404 for an unknown site.
func (s *Server) siteStats(w http.ResponseWriter, r *http.Request) {
	siteID, err := strconv.ParseInt(chi.URLParam(r, "site_id"), 10, 64)
	if err != nil || siteID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid site_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	stats, err := s.cfg.Results.SiteStats(ctx, siteID)
	if err != nil {
		if errors.Is(err, vacancy.ErrNotFound) {
			writeError(w, http.StatusNotFound, "site not found")
			return
		}
		s.logger.Error("site stats failed", zap.Int64("site_id", siteID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load site stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return store.DefaultListLimit, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	return store.NormalizeLimit(val), nil
}

type statsDTO struct {
	TotalSites     int        `json:"total_sites"`
	EnabledSites   int        `json:"enabled_sites"`
	TotalVacancies int        `json:"total_vacancies"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	SuccessRate    float64    `json:"success_rate"`
	Window         string     `json:"window"`
}

func toStatsDTO(in vacancy.AggregateStats) statsDTO {
	return statsDTO{
		TotalSites:     in.TotalSites,
		EnabledSites:   in.EnabledSites,
		TotalVacancies: in.TotalVacancies,
		LastRunAt:      in.LastRunAt,
		SuccessRate:    in.SuccessRate,
		Window:         in.Window.String(),
	}
}
