package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://www.aalten.nl/path", "www.aalten.nl"},
		{"standard https", "https://Werkenbij.Almere.nl/vacatures", "werkenbij.almere.nl"},
		{"no scheme", "aalsmeer.nl/path", "aalsmeer.nl"},
		{"just host", "aalsmeer.nl", "aalsmeer.nl"},
		{"host with port", "aalsmeer.nl:8080", "aalsmeer.nl"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestObserveFetch(t *testing.T) {
	Init()
	Init()

	ObserveFetch("https://www.assen.nl/vacatures", "200", 2048)
	ObserveFetch("https://www.assen.nl/", "timeout", 0)

	require.InDelta(t, 1, testutil.ToFloat64(fetchPagesTotal.WithLabelValues("www.assen.nl", "200")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(fetchPagesTotal.WithLabelValues("www.assen.nl", "timeout")), 0)
	require.InDelta(t, 2048, testutil.ToFloat64(fetchBytesTotal.WithLabelValues("www.assen.nl")), 0)
}

func TestObserveRateLimitDelay(t *testing.T) {
	Init()

	ObserveRateLimitDelay("werkenbijdrechtsteden.nl", 1500*time.Millisecond)
	require.Positive(t, testutil.CollectAndCount(rateLimitDelaysSeconds))
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://www.ede.nl", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
