// Package preflight provides readiness checks for the paths, binaries and
// stores tally depends on.
//
// The CLI "tally doctor" command runs RunAll and prints one row per check.
// Checks for optional backends are gated by configuration: the blob
// directory is only checked for the local backend, and the Gmail files only
// when at least one source is configured.
package preflight
