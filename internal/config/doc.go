// Package config loads, normalizes, and validates tally configuration.
//
// It reads the TOML file (defaulting to ~/.config/tally/config.toml or
// ./tally.toml), expands paths, applies environment fallbacks for secrets
// such as the ledger DSN and Gmail credentials, and exposes derived helpers
// like DatabasePath and ExtractorTimeout. CreateSample writes the embedded
// sample_config.toml for `tally config init`.
package config
