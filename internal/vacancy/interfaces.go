package vacancy

import (
	"context"
	"errors"
	"time"
)

// ErrRunInProgress is returned when a run is requested while another one is
// starting or running.
var ErrRunInProgress = errors.New("scrape run already in progress")

// FetchRequest describes a single page retrieval.
type FetchRequest struct {
	URL     string
	Timeout time.Duration
}

// Page is the result of a successful fetch.
type Page struct {
	RequestedURL string
	FinalURL     string
	StatusCode   int
	ContentType  string
	Body         []byte
	Duration     time.Duration
}

// Fetcher retrieves one page per call.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (Page, error)
}

// Extractor turns page HTML into candidate vacancy links.
type Extractor interface {
	Extract(html []byte, baseURL, siteName string) ([]ExtractedLink, error)
}

// Registry supplies the configured sites.
type Registry interface {
	Sites(ctx context.Context) ([]Site, error)
}

// ResultStore persists vacancies and outcomes and answers reporting queries.
type ResultStore interface {
	SyncSites(ctx context.Context, sites []Site) error
	ListSites(ctx context.Context) ([]SiteWithStats, error)
	UpsertVacancy(ctx context.Context, rec Record) (bool, error)
	RecordOutcome(ctx context.Context, outcome Outcome) (Outcome, error)
	ListOutcomes(ctx context.Context, limit int) ([]Outcome, error)
	ListVacancies(ctx context.Context) ([]Record, error)
	SiteStats(ctx context.Context, siteID int64) (SiteStats, error)
	AggregateStats(ctx context.Context, since time.Time) (AggregateStats, error)
	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Notifier publishes run reports.
type Notifier interface {
	Publish(ctx context.Context, report RunReport) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time and sleeps in a cancellable way.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
