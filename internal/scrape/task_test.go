package scrape

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/vacancy-crawler/internal/extract"
	"github.com/JakeFAU/vacancy-crawler/internal/progress"
	"github.com/JakeFAU/vacancy-crawler/internal/store/memory"
	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

var fixedNow = time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC)

type fakeClock struct{}

func (fakeClock) Now() time.Time                         { return fixedNow }
func (fakeClock) Sleep(context.Context, time.Duration) error { return nil }

type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]vacancy.Page
	errs     map[string]error
	panicFor string
	calls    []vacancy.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req vacancy.FetchRequest) (vacancy.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if req.URL == f.panicFor {
		panic("fetcher exploded")
	}
	if err, ok := f.errs[req.URL]; ok {
		return vacancy.Page{}, err
	}
	if page, ok := f.pages[req.URL]; ok {
		page.RequestedURL = req.URL
		return page, nil
	}
	return vacancy.Page{}, &vacancy.FetchError{Kind: vacancy.FetchHTTPStatus, URL: req.URL, StatusCode: 404}
}

func (f *fakeFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.URL)
	}
	return out
}

type failingExtractor struct{}

func (failingExtractor) Extract([]byte, string, string) ([]vacancy.ExtractedLink, error) {
	return nil, vacancy.ErrExtraction
}

type failingUpsertStore struct {
	*memory.Store
	err error
}

func (s failingUpsertStore) UpsertVacancy(context.Context, vacancy.Record) (bool, error) {
	return false, s.err
}

type failingRecordStore struct {
	*memory.Store
}

func (failingRecordStore) RecordOutcome(context.Context, vacancy.Outcome) (vacancy.Outcome, error) {
	return vacancy.Outcome{}, errors.New("database is locked")
}

type fakeArchive struct {
	mu    sync.Mutex
	paths []string
	types []string
	err   error
}

func (a *fakeArchive) PutObject(_ context.Context, path, contentType string, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.paths = append(a.paths, path)
	a.types = append(a.types, contentType)
	return "mem://" + path, nil
}

type fakeHasher struct{}

func (fakeHasher) Hash([]byte) (string, error) { return "deadbeef", nil }

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

const careersHTML = `<html><body>
<a href="/vacatures/123">Beleidsmedewerker</a>
<a href="/contact">Contact</a>
</body></html>`

func newTask(t *testing.T, cfg Config) *Task {
	t.Helper()
	if cfg.Extractor == nil {
		cfg.Extractor = extract.New(extract.Config{})
	}
	if cfg.Clock == nil {
		cfg.Clock = fakeClock{}
	}
	task, err := New(cfg)
	require.NoError(t, err)
	return task
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	store := memory.New()
	fetcher := &fakeFetcher{}
	ext := extract.New(extract.Config{})

	cases := map[string]Config{
		"missing fetcher":   {Extractor: ext, Store: store, Clock: fakeClock{}},
		"missing extractor": {Fetcher: fetcher, Store: store, Clock: fakeClock{}},
		"missing store":     {Fetcher: fetcher, Extractor: ext, Clock: fakeClock{}},
		"missing clock":     {Fetcher: fetcher, Extractor: ext, Store: store},
		"archive no hasher": {Fetcher: fetcher, Extractor: ext, Store: store, Clock: fakeClock{}, Archive: &fakeArchive{}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := New(cfg)
			require.Error(t, err)
		})
	}
}

func TestRunFallsBackToHomeURL(t *testing.T) {
	t.Parallel()

	store := memory.New()
	site := vacancy.Site{ID: 7, Name: "A", HomeURL: "https://A", VacancyURL: "https://A/werken-bij", Enabled: true}
	require.NoError(t, store.SyncSites(context.Background(), []vacancy.Site{site}))
	fetcher := &fakeFetcher{
		errs:  map[string]error{"https://A/werken-bij": &vacancy.FetchError{Kind: vacancy.FetchTimeout, URL: "https://A/werken-bij"}},
		pages: map[string]vacancy.Page{"https://A": {StatusCode: 200, Body: []byte(careersHTML)}},
	}
	task := newTask(t, Config{Fetcher: fetcher, Store: store, RequestTimeout: 5 * time.Second})

	outcome := task.Run(context.Background(), "run-1", site)

	require.True(t, outcome.Success, outcome.ErrorMessage)
	require.Equal(t, 1, outcome.LinksFound)
	require.Equal(t, "https://A", outcome.FetchedURL)
	require.Equal(t, "A", outcome.SiteName)
	require.NotZero(t, outcome.ID)
	require.Equal(t, []string{"https://A/werken-bij", "https://A"}, fetcher.urls())
	require.Equal(t, 5*time.Second, fetcher.calls[0].Timeout)

	vacancies, err := store.ListVacancies(context.Background())
	require.NoError(t, err)
	require.Len(t, vacancies, 1)
	require.Equal(t, "https://A/vacatures/123", vacancies[0].URL)
	require.Equal(t, "Beleidsmedewerker", vacancies[0].Title)
	require.True(t, fixedNow.Equal(vacancies[0].FirstSeenAt))
}

func TestRunUsesVacancyURLFirst(t *testing.T) {
	t.Parallel()

	store := memory.New()
	site := vacancy.Site{ID: 1, Name: "B", HomeURL: "https://b.nl", VacancyURL: "https://b.nl/vacatures"}
	fetcher := &fakeFetcher{pages: map[string]vacancy.Page{
		"https://b.nl/vacatures": {FinalURL: "https://b.nl/banen/", StatusCode: 200, Body: []byte(careersHTML)},
	}}
	task := newTask(t, Config{Fetcher: fetcher, Store: store})

	outcome := task.Run(context.Background(), "run-1", site)

	require.True(t, outcome.Success)
	require.Equal(t, "https://b.nl/banen/", outcome.FetchedURL)
	require.Equal(t, []string{"https://b.nl/vacatures"}, fetcher.urls())

	vacancies, err := store.ListVacancies(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://b.nl/vacatures/123", vacancies[0].URL)
}

func TestRunWithoutURLsIsConfigurationError(t *testing.T) {
	t.Parallel()

	store := memory.New()
	fetcher := &fakeFetcher{}
	task := newTask(t, Config{Fetcher: fetcher, Store: store})

	outcome := task.Run(context.Background(), "run-1", vacancy.Site{ID: 3, Name: "Leeg"})

	require.False(t, outcome.Success)
	require.Equal(t, vacancy.KindConfiguration, outcome.ErrorKind)
	require.Contains(t, outcome.ErrorMessage, "Leeg")
	require.Empty(t, fetcher.urls())

	logged, err := store.ListOutcomes(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logged, 1)
}

func TestRunAllAttemptsFail(t *testing.T) {
	t.Parallel()

	store := memory.New()
	site := vacancy.Site{ID: 2, Name: "C", HomeURL: "https://c.nl", VacancyURL: "https://c.nl/jobs"}
	fetcher := &fakeFetcher{errs: map[string]error{
		"https://c.nl/jobs": &vacancy.FetchError{Kind: vacancy.FetchNetwork, URL: "https://c.nl/jobs", Err: errors.New("connection refused")},
	}}
	task := newTask(t, Config{Fetcher: fetcher, Store: store})

	outcome := task.Run(context.Background(), "run-1", site)

	require.False(t, outcome.Success)
	require.Equal(t, vacancy.KindFetch, outcome.ErrorKind)
	require.Zero(t, outcome.LinksFound)
	require.Contains(t, outcome.ErrorMessage, "vacancy_url https://c.nl/jobs")
	require.Contains(t, outcome.ErrorMessage, "website https://c.nl")
	require.Contains(t, outcome.ErrorMessage, "http status 404")
}

func TestRunStopsFallbackWhenCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	site := vacancy.Site{ID: 2, Name: "C", HomeURL: "https://c.nl", VacancyURL: "https://c.nl/jobs"}
	fetcher := &fakeFetcher{errs: map[string]error{
		"https://c.nl/jobs": &vacancy.FetchError{Kind: vacancy.FetchOther, Err: context.Canceled},
	}}
	store := memory.New()
	task := newTask(t, Config{Fetcher: fetcher, Store: store})

	outcome := task.Run(ctx, "run-1", site)

	require.False(t, outcome.Success)
	require.Equal(t, []string{"https://c.nl/jobs"}, fetcher.urls())
	require.NotZero(t, outcome.ID, "outcome must be recorded even after cancellation")
}

func TestRunRecoversPanics(t *testing.T) {
	t.Parallel()

	store := memory.New()
	fetcher := &fakeFetcher{panicFor: "https://d.nl"}
	task := newTask(t, Config{Fetcher: fetcher, Store: store})

	outcome := task.Run(context.Background(), "run-1", vacancy.Site{ID: 4, Name: "D", HomeURL: "https://d.nl"})

	require.False(t, outcome.Success)
	require.Equal(t, vacancy.KindUnexpected, outcome.ErrorKind)
	require.Contains(t, outcome.ErrorMessage, "fetcher exploded")
}

func TestRunExtractionFailureCountsZeroLinks(t *testing.T) {
	t.Parallel()

	store := memory.New()
	fetcher := &fakeFetcher{pages: map[string]vacancy.Page{"https://e.nl": {StatusCode: 200, Body: []byte("<html>")}}}
	task := newTask(t, Config{Fetcher: fetcher, Store: store, Extractor: failingExtractor{}})

	outcome := task.Run(context.Background(), "run-1", vacancy.Site{ID: 5, Name: "E", HomeURL: "https://e.nl"})

	require.True(t, outcome.Success)
	require.Zero(t, outcome.LinksFound)
}

func TestRunStorageFailure(t *testing.T) {
	t.Parallel()

	store := failingUpsertStore{Store: memory.New(), err: errors.New("disk full")}
	fetcher := &fakeFetcher{pages: map[string]vacancy.Page{"https://f.nl": {StatusCode: 200, Body: []byte(careersHTML)}}}
	task := newTask(t, Config{Fetcher: fetcher, Store: store})

	outcome := task.Run(context.Background(), "run-1", vacancy.Site{ID: 6, Name: "F", HomeURL: "https://f.nl"})

	require.False(t, outcome.Success)
	require.Equal(t, vacancy.KindStorage, outcome.ErrorKind)
	require.Contains(t, outcome.ErrorMessage, "store 1 of 1 vacancies failed: disk full")
	require.Zero(t, outcome.LinksFound)
}

func TestRunRecordFailureIsReported(t *testing.T) {
	t.Parallel()

	store := failingRecordStore{Store: memory.New()}
	fetcher := &fakeFetcher{pages: map[string]vacancy.Page{"https://g.nl": {StatusCode: 200, Body: []byte(careersHTML)}}}
	task := newTask(t, Config{Fetcher: fetcher, Store: store})

	outcome := task.Run(context.Background(), "run-1", vacancy.Site{ID: 8, Name: "G", HomeURL: "https://g.nl"})

	require.True(t, outcome.Success)
	require.Zero(t, outcome.ID)
	require.True(t, strings.HasPrefix(outcome.ErrorMessage, "record outcome: "), outcome.ErrorMessage)
}

func TestRunArchivesPage(t *testing.T) {
	t.Parallel()

	store := memory.New()
	archive := &fakeArchive{}
	fetcher := &fakeFetcher{pages: map[string]vacancy.Page{"https://h.nl": {StatusCode: 200, Body: []byte(careersHTML)}}}
	task := newTask(t, Config{Fetcher: fetcher, Store: store, Archive: archive, Hasher: fakeHasher{}})

	outcome := task.Run(context.Background(), "run-9", vacancy.Site{ID: 9, Name: "H", HomeURL: "https://h.nl"})

	require.True(t, outcome.Success)
	require.Equal(t, []string{"run-9/9/deadbeef.html"}, archive.paths)
	require.Equal(t, []string{"text/html; charset=utf-8"}, archive.types)
}

func TestRunArchiveFailureDoesNotFailSite(t *testing.T) {
	t.Parallel()

	archive := &fakeArchive{err: errors.New("bucket missing")}
	fetcher := &fakeFetcher{pages: map[string]vacancy.Page{"https://h.nl": {StatusCode: 200, Body: []byte(careersHTML)}}}
	task := newTask(t, Config{Fetcher: fetcher, Store: memory.New(), Archive: archive, Hasher: fakeHasher{}})

	outcome := task.Run(context.Background(), "run-9", vacancy.Site{ID: 9, Name: "H", HomeURL: "https://h.nl"})

	require.True(t, outcome.Success)
}

func TestRunEmitsSiteDone(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	fetcher := &fakeFetcher{pages: map[string]vacancy.Page{"https://i.nl": {StatusCode: 200, Body: []byte(careersHTML)}}}
	task := newTask(t, Config{Fetcher: fetcher, Store: memory.New(), Emitter: emitter})

	task.Run(context.Background(), "run-2", vacancy.Site{ID: 10, Name: "I", HomeURL: "https://i.nl"})

	require.Len(t, emitter.events, 1)
	evt := emitter.events[0]
	require.Equal(t, progress.StageSiteDone, evt.Stage)
	require.Equal(t, "run-2", evt.RunID)
	require.Equal(t, int64(10), evt.SiteID)
	require.Equal(t, 1, evt.Links)
	require.True(t, evt.Success)
	require.NoError(t, evt.Validate())
}
