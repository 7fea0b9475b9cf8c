package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const robotsAllowAll = "User-agent: *\nAllow: /"

var robotsRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

type robotsEntry struct {
	status int
	body   []byte
}

// robotsTransport caches robots.txt per host so each fresh collector does not
// refetch it, and falls back to allow-all when the host keeps timing out.
type robotsTransport struct {
	base   http.RoundTripper
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]robotsEntry
}

func newRobotsTransport(base http.RoundTripper, logger *zap.Logger) *robotsTransport {
	return &robotsTransport{
		base:   base,
		logger: logger.Named("robots"),
		cache:  make(map[string]robotsEntry),
	}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport received nil request")
	}
	if !isRobotsTxtRequest(req) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("robots transport base roundtrip: %w", err)
		}
		return resp, nil
	}

	host := strings.ToLower(req.URL.Host)
	if entry, ok := t.lookup(host); ok {
		return syntheticResponse(req, entry.status, entry.body), nil
	}

	resp, err := t.roundTripWithRetry(req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		t.logger.Warn("robots.txt unreachable, allowing all", zap.String("host", host))
		return syntheticResponse(req, http.StatusOK, []byte(robotsAllowAll)), nil
	}
	defer resp.Body.Close() //nolint:errcheck // body fully read below
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	t.store(host, robotsEntry{status: resp.StatusCode, body: body})
	return syntheticResponse(req, resp.StatusCode, body), nil
}

func (t *robotsTransport) lookup(host string) (robotsEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.cache[host]
	return entry, ok
}

func (t *robotsTransport) store(host string, entry robotsEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache[host] = entry
}

// roundTripWithRetry returns a nil response when every attempt hit a
// transient timeout.
func (t *robotsTransport) roundTripWithRetry(req *http.Request) (*http.Response, error) {
	maxAttempts := len(robotsRetryBackoff) + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !isTransientError(err) {
			return nil, fmt.Errorf("robots roundtrip: %w", err)
		}
		if attempt == maxAttempts-1 {
			break
		}
		if err := sleepWithContext(req.Context(), robotsRetryBackoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots roundtrip backoff sleep: %w", err)
		}
	}
	return nil, nil
}

func isRobotsTxtRequest(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	return strings.EqualFold(req.URL.Path, "/robots.txt")
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots backoff sleep context: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func syntheticResponse(req *http.Request, status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Request:       req,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
	}
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
