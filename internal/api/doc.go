// Package api hosts the HTTP server, middleware, and REST handlers in front of
// the dispatcher and the state reader. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs to start a crawl; GET /v1/jobs to page the caller's jobs.
//   - GET /v1/jobs/{job_id}, GET /v1/jobs/{job_id}/results and
//     DELETE /v1/jobs/{job_id} for reads and deletion requests.
//
// Callers are identified by the X-Owner-ID header, which an upstream gateway
// is trusted to set.
package api
