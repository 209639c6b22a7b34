// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp document IDs, stage names, and run
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent document statuses (skipped, failed, needs_review).
//
// Use these helpers when wiring new stage logic so failure handling stays
// uniform across the pipeline.
package services
