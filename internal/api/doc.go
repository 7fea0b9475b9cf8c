// Package api hosts the HTTP server, middleware, and REST handlers for
// operators. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /api/scrape to start a run; 409 while one is active.
//   - GET /api/progress, /api/logs, /api/vacancies, /api/stats and
//     /api/sites/{site_id}/stats for reporting.
package api
