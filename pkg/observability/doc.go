// Package observability provides structured logging, Prometheus metrics,
// health probes and graceful shutdown for the service.
//
// Metrics implements the decision recorder hook used by the guarded store,
// so every allow and deny lands in the stallgate_decisions_total and
// stallgate_denials_total series. Logger wraps slog with JSON output and
// context plumbing for request-scoped fields.
package observability
