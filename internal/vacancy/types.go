// Package vacancy defines the domain types and contracts shared by the scrape
// pipeline: sites, extracted links, persisted vacancies, outcomes and the run
// progress model.
package vacancy

import "time"

// Site is one municipality entry from the registry. It is immutable for the
// duration of a run.
type Site struct {
	ID         int64    `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Latitude   *float64 `json:"latitude,omitempty" yaml:"latitude"`
	Longitude  *float64 `json:"longitude,omitempty" yaml:"longitude"`
	HomeURL    string   `json:"website,omitempty" yaml:"website"`
	VacancyURL string   `json:"vacancy_url,omitempty" yaml:"vacancy_url"`
	Enabled    bool     `json:"enabled" yaml:"enabled"`
}

// ExtractedLink is a candidate vacancy link produced by the extractor.
type ExtractedLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Record is a persisted vacancy. (SiteID, URL) is unique; FirstSeenAt never
// changes once written.
type Record struct {
	ID          int64     `json:"id"`
	SiteID      int64     `json:"site_id"`
	SiteName    string    `json:"site_name,omitempty"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// ErrorKind classifies why a site scrape failed.
type ErrorKind string

// Outcome error kinds.
const (
	KindNone          ErrorKind = ""
	KindConfiguration ErrorKind = "configuration"
	KindFetch         ErrorKind = "fetch"
	KindStorage       ErrorKind = "storage"
	KindUnexpected    ErrorKind = "unexpected"
)

// Outcome is the append-only log entry written once per site scrape attempt.
type Outcome struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	SiteID       int64     `json:"site_id"`
	SiteName     string    `json:"site_name,omitempty"`
	Success      bool      `json:"success"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	LinksFound   int       `json:"links_found"`
	FetchedURL   string    `json:"fetched_url,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// SiteStats is derived from a site's outcome history and never patched
// incrementally.
type SiteStats struct {
	SiteID             int64      `json:"site_id"`
	TotalOutcomes      int        `json:"total_outcomes"`
	SuccessfulOutcomes int        `json:"successful_outcomes"`
	SuccessRate        float64    `json:"success_rate"`
	LastSuccessAt      *time.Time `json:"last_success_at,omitempty"`
	LastScrapedAt      *time.Time `json:"last_scraped_at,omitempty"`
}

// SiteWithStats is a registry site joined with its materialized stats. Sites
// that were never scraped carry zero stats.
type SiteWithStats struct {
	Site
	Stats SiteStats `json:"stats"`
}

// ComputeSiteStats derives SiteStats from a slice of outcomes for one site.
func ComputeSiteStats(siteID int64, outcomes []Outcome) SiteStats {
	stats := SiteStats{SiteID: siteID}
	for _, o := range outcomes {
		stats.TotalOutcomes++
		at := o.OccurredAt
		if stats.LastScrapedAt == nil || at.After(*stats.LastScrapedAt) {
			stats.LastScrapedAt = &at
		}
		if !o.Success {
			continue
		}
		stats.SuccessfulOutcomes++
		if stats.LastSuccessAt == nil || at.After(*stats.LastSuccessAt) {
			stats.LastSuccessAt = &at
		}
	}
	stats.SuccessRate = SuccessRate(stats.SuccessfulOutcomes, stats.TotalOutcomes)
	return stats
}

// SuccessRate returns successful/total, or 0 when total is 0.
func SuccessRate(successful, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(successful) / float64(total)
}

// AggregateStats summarizes the store for reporting.
type AggregateStats struct {
	TotalSites     int           `json:"total_sites"`
	EnabledSites   int           `json:"enabled_sites"`
	TotalVacancies int           `json:"total_vacancies"`
	LastRunAt      *time.Time    `json:"last_run_at,omitempty"`
	SuccessRate    float64       `json:"success_rate"`
	Window         time.Duration `json:"-"`
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunIdle      RunStatus = "idle"
	RunStarting  RunStatus = "starting"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// RunSummary aggregates the outcomes of one run.
type RunSummary struct {
	Successful     int `json:"successful"`
	Failed         int `json:"failed"`
	Total          int `json:"total"`
	TotalVacancies int `json:"total_vacancies"`
}

// Summarize folds outcomes into a RunSummary. TotalVacancies counts links of
// successful outcomes only.
func Summarize(outcomes []Outcome) RunSummary {
	var sum RunSummary
	for _, o := range outcomes {
		sum.Total++
		if o.Success {
			sum.Successful++
			sum.TotalVacancies += o.LinksFound
			continue
		}
		sum.Failed++
	}
	return sum
}

// RunProgress is a point-in-time view of the current or last run.
type RunProgress struct {
	RunID      string      `json:"run_id,omitempty"`
	Status     RunStatus   `json:"status"`
	Total      int         `json:"total"`
	Completed  int         `json:"completed"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Summary    *RunSummary `json:"summary,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// RunReport is published once a run reaches a terminal state.
type RunReport struct {
	RunID      string     `json:"run_id"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Summary    RunSummary `json:"summary"`
	Error      string     `json:"error,omitempty"`
}
