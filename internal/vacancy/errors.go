package vacancy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExtraction marks HTML that could not be parsed. Callers treat it as zero
// links found.
var ErrExtraction = errors.New("extract vacancy links")

// ErrNotFound signals that a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ConfigurationError is returned when a site has neither a vacancy nor a home URL.
type ConfigurationError struct {
	SiteID   int64
	SiteName string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no vacancy_url or website configured for %s (id %d)", e.SiteName, e.SiteID)
}

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchTimeout    FetchErrorKind = "timeout"
	FetchHTTPStatus FetchErrorKind = "http_status"
	FetchNetwork    FetchErrorKind = "network"
	FetchOther      FetchErrorKind = "other"
)

// FetchError describes a failed page fetch.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == FetchHTTPStatus:
		return fmt.Sprintf("%s: http status %d", e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Attempt records one URL the scrape task tried.
type Attempt struct {
	Label string
	URL   string
	Err   error
}

// AttemptsError is returned when every configured URL of a site failed.
type AttemptsError struct {
	SiteName string
	Attempts []Attempt
}

func (e *AttemptsError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s %s: %v", a.Label, a.URL, a.Err))
	}
	return fmt.Sprintf("scrape %s failed: %s", e.SiteName, strings.Join(parts, "; "))
}

// Unwrap exposes each attempt error to errors.Is/As.
func (e *AttemptsError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// UnexpectedError wraps a panic recovered at the task boundary.
type UnexpectedError struct {
	Value any
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error: %v", e.Value)
}

// KindOf maps an error onto an outcome ErrorKind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var (
		cfgErr   *ConfigurationError
		fetchErr *FetchError
		panicErr *UnexpectedError
	)
	switch {
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &panicErr):
		return KindUnexpected
	case errors.As(err, &fetchErr):
		return KindFetch
	default:
		return KindStorage
	}
}
