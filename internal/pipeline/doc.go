// Package pipeline drives pending documents through extraction, parsing, the
// template gate and reconciliation, and sequences full runs.
//
// Processor owns the per-document status transitions. Every per-document
// problem becomes a stored status and message; only store or listing failures
// are returned to the caller. Runner chains collection, parsing and linking
// under a non-blocking file lock so overlapping scheduled runs exit early.
package pipeline
