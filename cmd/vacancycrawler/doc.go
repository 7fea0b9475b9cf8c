// Package main hosts the vacancy crawler service entrypoint.
//
// Architecture overview:
//   - Registry: municipality sites come from the embedded table or a YAML file
//     named by registry.path.
//   - Scheduler: a run loads every site, syncs them to the result store and
//     scrapes the enabled ones in concurrent batches (scraper.batch_size) with
//     a pause (scraper.batch_pause) between batches. One run is active at a time.
//   - Scrape task: each site is fetched through the Colly fetcher (per-host rate
//     limit, optional robots.txt), trying the vacancy page first and the home
//     page second. Candidate links are extracted with goquery and stored
//     insert-or-ignore; one outcome is appended per site.
//   - Persistence: memory, SQLite (modernc) or Postgres (pgx) result stores;
//     raw pages optionally archived to a local directory or GCS; run reports
//     optionally published to Pub/Sub.
//   - Triggers: POST /api/scrape, a cron schedule (schedule.cron) and an
//     optional run at startup.
//   - Observability: zap logs, progress events fanned out to log and Prometheus
//     sinks, request metrics served on /metrics.
//
// Quick checklist:
//   - Configure via file (-config config.yaml) or VACANCY_* env vars, e.g.
//     VACANCY_STORE_BACKEND=postgres VACANCY_STORE_POSTGRES_DSN=....
//   - Run locally: go run ./cmd/vacancycrawler -config config.yaml.
//   - SIGINT/SIGTERM stops the trigger, drains HTTP and interrupts the active
//     run after its current batch.
package main
