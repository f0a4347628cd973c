// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - POST /crawler/product queues one crawl job per submitted domain.
//   - GET /crawler/job-status?jobId= polls a job.
//   - GET /crawler/products?domain= returns the stored product URLs.
//   - GET /ping and /healthz for probes, /metrics for Prometheus scraping.
//
// Crawler routes answer with a {status, code, message, data} envelope.
package api
