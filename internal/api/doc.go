// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz and /readyz for health checks; /readyz pings the store.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/litigants/{national_id}/process?role= to crawl and persist.
//   - GET /v1/litigants/{national_id}/... , /v1/cases/{case_id},
//     /v1/incidents/{incident_id}/actions and /v1/stats for stored records.
//   - GET /v1/runs and /v1/runs/{run_id} for the run ledger.
package api
