// Package api hosts the HTTP server, middleware, and REST handlers of the
// pipeline. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/pages/fetch and /v1/confirmations/analyze[-provided] for extraction.
//   - GET|PATCH /v1/confirmations/{id} for the confirmation store.
//   - /v1/consultations/... and /v1/ledger/... for the spreadsheet ledger.
//   - GET /v1/rates for currency conversion.
package api
