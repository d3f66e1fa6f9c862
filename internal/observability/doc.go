// Package observability provides logging and metrics support for the paper
// enrichment service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for batches, searches, extraction, and image jobs
//   - Context helpers for propagating request and batch identifiers
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("query", query).Msg("batch started")
//
// Add batch context to a logger:
//
//	logger = observability.WithBatchContext(logger, batchID, query)
//
// # Metrics
//
// Initialize metrics once at startup:
//
//	metrics := observability.NewMetrics("enrichment")
//
// Record metrics:
//
//	metrics.RecordBatchStarted(len(papers))
//	metrics.RecordSearchCompleted("serper", 10, 0.42)
//	metrics.RecordImageJobOutcome("succeeded", 38.5, 7)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - batch_id: Enrichment batch identifier
//   - paper_index: Item position within its batch
//   - query: User's search query
//   - source: Provider name (serper, scenario)
//   - operation: Retryable operation name
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
