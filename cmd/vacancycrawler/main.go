// Package main wires together the vacancy crawler service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/vacancy-crawler/internal/api"
	"github.com/JakeFAU/vacancy-crawler/internal/clock/system"
	"github.com/JakeFAU/vacancy-crawler/internal/config"
	"github.com/JakeFAU/vacancy-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/vacancy-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/vacancy-crawler/internal/hash/sha256"
	"github.com/JakeFAU/vacancy-crawler/internal/id/uuid"
	"github.com/JakeFAU/vacancy-crawler/internal/logging"
	"github.com/JakeFAU/vacancy-crawler/internal/metrics"
	"github.com/JakeFAU/vacancy-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/vacancy-crawler/internal/progress"
	"github.com/JakeFAU/vacancy-crawler/internal/progress/sinks"
	"github.com/JakeFAU/vacancy-crawler/internal/registry"
	"github.com/JakeFAU/vacancy-crawler/internal/scheduler"
	"github.com/JakeFAU/vacancy-crawler/internal/scrape"
	"github.com/JakeFAU/vacancy-crawler/internal/trigger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		stop()
		os.Exit(1) //nolint:gocritic // exitAfterDefer
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	metrics.Init()

	sites, err := registry.Open(cfg.Registry.Path)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	results, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := results.Close(); closeErr != nil {
			logger.Warn("close result store failed", zap.Error(closeErr))
		}
	}()
	archive, closeArchive, err := openArchive(ctx, cfg.Archive)
	if err != nil {
		return err
	}
	defer closeArchive()
	notifier, closeNotifier, err := openNotifier(ctx, cfg.Notify)
	if err != nil {
		return err
	}
	defer closeNotifier()

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return fmt.Errorf("register progress metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := hub.Close(closeCtx); closeErr != nil {
			logger.Warn("close progress hub failed", zap.Error(closeErr))
		}
		if dropped := hub.Dropped(); dropped > 0 {
			logger.Warn("progress events dropped", zap.Int64("count", dropped))
		}
	}()

	clock := system.New()
	limiter := ratelimit.New(ratelimit.Config{
		RPS:     cfg.Scraper.PerHostRPS,
		Burst:   cfg.Scraper.PerHostBurst,
		OnDelay: metrics.ObserveRateLimitDelay,
		Logger:  logger,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Scraper.UserAgent,
		RespectRobots: cfg.Scraper.RespectRobots,
		Timeout:       cfg.RequestTimeout(),
		Limiter:       limiter,
		OnFetch:       metrics.ObserveFetch,
		Logger:        logger,
	})
	extractor := extract.New(extract.Config{
		LinkKeywords:   cfg.Extract.LinkKeywords,
		TextKeywords:   cfg.Extract.TextKeywords,
		MaxTitleLength: cfg.Extract.MaxTitleLength,
	})
	task, err := scrape.New(scrape.Config{
		Fetcher:        fetcher,
		Extractor:      extractor,
		Store:          results,
		Clock:          clock,
		Archive:        archive,
		Hasher:         sha256.New(),
		Emitter:        hub,
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout(),
	})
	if err != nil {
		return fmt.Errorf("build scrape task: %w", err)
	}
	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()
	sched, err := scheduler.New(scheduler.Config{
		Registry:    sites,
		Store:       results,
		Runner:      task,
		Tracker:     progress.NewTracker(),
		Clock:       clock,
		IDs:         uuid.New(),
		Notifier:    notifier,
		Emitter:     hub,
		Logger:      logger,
		BatchSize:   cfg.Scraper.BatchSize,
		BatchPause:  cfg.Scraper.BatchPause,
		BaseContext: runCtx,
	})
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}
	defer sched.Wait()

	apiServer, err := api.NewServer(api.Config{
		Runs:        sched,
		Results:     results,
		Clock:       clock,
		StatsWindow: cfg.Stats.Window,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build api server: %w", err)
	}
	cron, err := trigger.New(trigger.Config{
		Schedule:     cfg.Schedule.Cron,
		RunOnStartup: cfg.Schedule.RunOnStartup,
		Starter:      sched,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("build trigger: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	cron.Start()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := cron.Stop(shutdownCtx); err != nil {
		logger.Warn("trigger stop failed", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	cancelRuns()
	logger.Info("shutdown complete")
	return runErr
}
