package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectStoresCopy(t *testing.T) {
	t.Parallel()

	store := New()
	data := []byte("<html>vacatures</html>")
	uri, err := store.PutObject(context.Background(), "run/1/abc.html", "text/html", data)
	require.NoError(t, err)
	require.Equal(t, "memory://run/1/abc.html", uri)

	data[0] = 'X'
	got, ok := store.Get("run/1/abc.html")
	require.True(t, ok)
	require.Equal(t, "<html>vacatures</html>", string(got))
	require.Equal(t, []string{"run/1/abc.html"}, store.Paths())
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := New().PutObject(context.Background(), " ", "text/html", nil)
	require.Error(t, err)
}
