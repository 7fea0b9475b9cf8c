package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	memoryarchive "github.com/JakeFAU/vacancy-crawler/internal/archive/memory"
	"github.com/JakeFAU/vacancy-crawler/internal/config"
	memorystore "github.com/JakeFAU/vacancy-crawler/internal/store/memory"
	"github.com/JakeFAU/vacancy-crawler/internal/store/sqlite"
	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

func TestOpenStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st, err := openStore(ctx, config.StoreConfig{Backend: config.StoreMemory})
	require.NoError(t, err)
	require.IsType(t, &memorystore.Store{}, st)

	st, err = openStore(ctx, config.StoreConfig{
		Backend:    config.StoreSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "vacancies.db"),
	})
	require.NoError(t, err)
	require.IsType(t, &sqlite.Store{}, st)
	require.NoError(t, st.SyncSites(ctx, []vacancy.Site{{ID: 1, Name: "Aa en Hunze", Enabled: true}}))
	require.NoError(t, st.Close())

	_, err = openStore(ctx, config.StoreConfig{Backend: "mysql"})
	require.ErrorContains(t, err, `unsupported store backend "mysql"`)
}

func TestOpenArchive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	bs, closeFn, err := openArchive(ctx, config.ArchiveConfig{Backend: config.ArchiveNone})
	require.NoError(t, err)
	require.Nil(t, bs)
	closeFn()

	bs, _, err = openArchive(ctx, config.ArchiveConfig{Backend: config.ArchiveMemory})
	require.NoError(t, err)
	require.IsType(t, &memoryarchive.BlobStore{}, bs)

	bs, _, err = openArchive(ctx, config.ArchiveConfig{
		Backend:  config.ArchiveLocal,
		LocalDir: t.TempDir(),
		Prefix:   "pages",
	})
	require.NoError(t, err)
	uri, err := bs.PutObject(ctx, "run-1/1/abc.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)
	require.Contains(t, uri, "pages/run-1/1/abc.html")

	_, _, err = openArchive(ctx, config.ArchiveConfig{Backend: "s3"})
	require.ErrorContains(t, err, "unsupported archive backend")
}

func TestOpenNotifierDisabled(t *testing.T) {
	t.Parallel()

	n, closeFn, err := openNotifier(context.Background(), config.NotifyConfig{})
	require.NoError(t, err)
	require.Nil(t, n)
	closeFn()
}
