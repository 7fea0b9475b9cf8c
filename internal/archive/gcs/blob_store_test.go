package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client := newTestClient(t, http.NotFoundHandler())
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestPutObjectUploadsWithPrefix(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		name    string
		body    string
		urlPath string
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		name = r.URL.Query().Get("name")
		body = string(data)
		urlPath = r.URL.Path
		mu.Unlock()
		fmt.Fprintf(w, `{"name":%q,"bucket":"pages-bucket"}`, r.URL.Query().Get("name"))
	}))
	store, err := New(client, Config{Bucket: "pages-bucket", Prefix: "/pages/"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "run-1/7/abc.html", "text/html", []byte("<p>vacature</p>"))
	require.NoError(t, err)
	require.Equal(t, "gs://pages-bucket/pages/run-1/7/abc.html", uri)

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, urlPath, "/upload/storage/v1/b/pages-bucket/o")
	require.Equal(t, "pages/run-1/7/abc.html", name)
	require.True(t, strings.Contains(body, "<p>vacature</p>"))
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	store, err := New(client, Config{Bucket: "pages-bucket"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "run-1/7/abc.html", "text/html", []byte("x"))
	require.Error(t, err)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := New(newTestClient(t, http.NotFoundHandler()), Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "", "text/html", nil)
	require.Error(t, err)
}
