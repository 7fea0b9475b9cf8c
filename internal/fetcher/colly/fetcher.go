// Package collyfetcher implements vacancy.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

// DefaultTimeout applies when neither the request nor the config sets one.
const DefaultTimeout = 30 * time.Second

// Waiter delays a request until the target host may be contacted again.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls collector behavior. OnFetch, when set, observes every
// attempt with its HTTP status or failure kind and the body size.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Limiter       Waiter
	OnFetch       func(rawURL, status string, bytes int)
	Logger        *zap.Logger
}

// Fetcher implements vacancy.Fetcher with one fresh collector per call. All
// collectors share a pooled transport.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	var transport http.RoundTripper = newHTTPTransport()
	if cfg.RespectRobots {
		transport = newRobotsTransport(transport, logger)
	}
	return &Fetcher{
		cfg:       cfg,
		transport: transport,
		logger:    logger.Named("fetcher"),
	}
}

// Fetch executes a single HTTP GET and classifies any failure as a
// *vacancy.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, request vacancy.FetchRequest) (vacancy.Page, error) {
	if request.URL == "" {
		return vacancy.Page{}, &vacancy.FetchError{Kind: vacancy.FetchOther, Err: errors.New("empty url")}
	}
	page, err := f.fetch(ctx, request)
	if f.cfg.OnFetch != nil {
		status := strconv.Itoa(page.StatusCode)
		var fe *vacancy.FetchError
		switch {
		case !errors.As(err, &fe):
		case fe.Kind == vacancy.FetchHTTPStatus:
			status = strconv.Itoa(fe.StatusCode)
		default:
			status = string(fe.Kind)
		}
		f.cfg.OnFetch(request.URL, status, len(page.Body))
	}
	return page, err
}

func (f *Fetcher) fetch(ctx context.Context, request vacancy.FetchRequest) (vacancy.Page, error) {
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, request.URL); err != nil {
			return vacancy.Page{}, classify(request.URL, err)
		}
	}

	var (
		page     vacancy.Page
		fetchErr error
	)
	start := time.Now()
	tracker := &trackingTransport{base: f.transport, ctx: ctx}
	collector := f.buildCollector(request, tracker)
	f.configureCollectorHooks(collector, start, &page, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		f.logger.Debug("fetch failed", zap.String("url", request.URL), zap.Error(err))
		return vacancy.Page{}, classify(request.URL, err)
	}

	page.RequestedURL = request.URL
	if final := tracker.lastURL(); final != "" {
		page.FinalURL = final
	}
	if page.StatusCode < 200 || page.StatusCode > 299 {
		return vacancy.Page{}, &vacancy.FetchError{
			Kind:       vacancy.FetchHTTPStatus,
			URL:        request.URL,
			StatusCode: page.StatusCode,
		}
	}
	return page, nil
}

func (f *Fetcher) buildCollector(request vacancy.FetchRequest, transport http.RoundTripper) *colly.Collector {
	collector := colly.NewCollector(colly.Async(false))
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(transport)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	page *vacancy.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "nl-NL,nl;q=0.9,en;q=0.8")
	})

	hooks.OnResponse(func(r *colly.Response) {
		final := ""
		if r.Request != nil && r.Request.URL != nil {
			final = r.Request.URL.String()
		}
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		*page = vacancy.Page{
			FinalURL:    final,
			StatusCode:  r.StatusCode,
			ContentType: contentType,
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

// trackingTransport binds round trips to the caller's context and remembers
// the last URL requested, which is the final URL after redirects.
type trackingTransport struct {
	base http.RoundTripper
	ctx  context.Context

	mu   sync.Mutex
	last string
}

func (t *trackingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("tracking transport received nil request")
	}
	if !isRobotsTxtRequest(req) {
		t.mu.Lock()
		t.last = req.URL.String()
		t.mu.Unlock()
	}
	if t.ctx != nil {
		req = req.WithContext(mergeContext(req.Context(), t.ctx))
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("roundtrip %s: %w", req.URL.Redacted(), err)
	}
	return resp, nil
}

func (t *trackingTransport) lastURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// mergeContext keeps the request's own deadline and also stops when parent
// is done.
func mergeContext(reqCtx, parent context.Context) context.Context {
	if reqCtx == nil || reqCtx == context.Background() {
		return parent
	}
	merged, cancel := context.WithCancelCause(reqCtx)
	stop := context.AfterFunc(parent, func() {
		cancel(context.Cause(parent))
	})
	context.AfterFunc(merged, func() {
		stop()
	})
	return merged
}

func classify(rawURL string, err error) error {
	fe := &vacancy.FetchError{URL: rawURL, Err: err}
	var (
		netErr   net.Error
		opErr    *net.OpError
		dnsErr   *net.DNSError
		urlErr   *url.Error
		certErr  *tls.CertificateVerificationError
		unknown  x509.UnknownAuthorityError
		hostErr  x509.HostnameError
		recErr   tls.RecordHeaderError
		existing *vacancy.FetchError
	)
	switch {
	case errors.As(err, &existing):
		return existing
	case errors.Is(err, context.DeadlineExceeded):
		fe.Kind = vacancy.FetchTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		fe.Kind = vacancy.FetchTimeout
	case errors.Is(err, context.Canceled):
		fe.Kind = vacancy.FetchOther
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.As(err, &certErr),
		errors.As(err, &unknown),
		errors.As(err, &hostErr),
		errors.As(err, &recErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		fe.Kind = vacancy.FetchNetwork
	case errors.As(err, &urlErr):
		fe.Kind = vacancy.FetchNetwork
	default:
		fe.Kind = vacancy.FetchOther
	}
	return fe
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}
