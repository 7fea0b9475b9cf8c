package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"

	gcsarchive "github.com/JakeFAU/vacancy-crawler/internal/archive/gcs"
	localarchive "github.com/JakeFAU/vacancy-crawler/internal/archive/local"
	memoryarchive "github.com/JakeFAU/vacancy-crawler/internal/archive/memory"
	"github.com/JakeFAU/vacancy-crawler/internal/config"
	pubsubnotify "github.com/JakeFAU/vacancy-crawler/internal/notify/pubsub"
	memorystore "github.com/JakeFAU/vacancy-crawler/internal/store/memory"
	"github.com/JakeFAU/vacancy-crawler/internal/store/postgres"
	"github.com/JakeFAU/vacancy-crawler/internal/store/sqlite"
	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

func openStore(ctx context.Context, cfg config.StoreConfig) (vacancy.ResultStore, error) {
	switch cfg.Backend {
	case config.StoreMemory:
		return memorystore.New(), nil
	case config.StoreSQLite:
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case config.StorePostgres:
		st, err := postgres.Open(ctx, postgres.Config{
			DSN:      cfg.PostgresDSN,
			MaxConns: int32(cfg.MaxConns), //nolint:gosec // validated config value
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

// openArchive returns a nil BlobStore when archiving is disabled.
func openArchive(ctx context.Context, cfg config.ArchiveConfig) (vacancy.BlobStore, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.ArchiveNone:
		return nil, noop, nil
	case config.ArchiveMemory:
		return memoryarchive.New(), noop, nil
	case config.ArchiveLocal:
		bs, err := localarchive.New(localarchive.Config{BaseDir: cfg.LocalDir, Prefix: cfg.Prefix})
		if err != nil {
			return nil, noop, fmt.Errorf("open local archive: %w", err)
		}
		return bs, noop, nil
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("create gcs client: %w", err)
		}
		bs, err := gcsarchive.New(client, gcsarchive.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			_ = client.Close() //nolint:errcheck // already failing
			return nil, noop, fmt.Errorf("open gcs archive: %w", err)
		}
		return bs, func() { _ = client.Close() }, nil //nolint:errcheck // shutdown
	default:
		return nil, noop, fmt.Errorf("unsupported archive backend %q", cfg.Backend)
	}
}

// openNotifier returns a nil Notifier when no Pub/Sub topic is configured.
func openNotifier(ctx context.Context, cfg config.NotifyConfig) (vacancy.Notifier, func(), error) {
	if cfg.PubSubProjectID == "" || cfg.PubSubTopic == "" {
		return nil, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
	if err != nil {
		return nil, func() {}, fmt.Errorf("create pubsub client: %w", err)
	}
	notifier := pubsubnotify.New(client.Topic(cfg.PubSubTopic))
	return notifier, func() {
		notifier.Stop()
		_ = client.Close() //nolint:errcheck // shutdown
	}, nil
}
