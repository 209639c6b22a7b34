package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	currencyCodePattern  = regexp.MustCompile(`^[A-Z]{3}$`)
	sqlIdentifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Paths.BlobDir == "" {
			return errors.New("paths.blob_dir must be set for the local storage backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket is required when storage.backend = \"gcs\" (or set TALLY_GCS_BUCKET)")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (want local or gcs)", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateSources() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		if src.Label == "" {
			return fmt.Errorf("sources[%d].label must be set", i)
		}
		if src.Vendor == "" {
			return fmt.Errorf("sources[%d].vendor must be set", i)
		}
		if _, dup := seen[src.Label]; dup {
			return fmt.Errorf("sources[%d]: label %q declared twice", i, src.Label)
		}
		seen[src.Label] = struct{}{}
	}
	return nil
}

func (c *Config) validateReconcile() error {
	if c.Reconcile.ItemsTolerance < 0 {
		return errors.New("reconcile.items_tolerance must be >= 0")
	}
	if c.Reconcile.TotalsTolerance < 0 {
		return errors.New("reconcile.totals_tolerance must be >= 0")
	}
	return nil
}

func (c *Config) validateLedger() error {
	switch c.Ledger.Driver {
	case LedgerSQLite:
	case LedgerPostgres:
		if c.Ledger.DSN == "" {
			return errors.New("ledger.dsn is required when ledger.driver = \"postgres\" (or set TALLY_LEDGER_DSN)")
		}
	default:
		return fmt.Errorf("ledger.driver: unsupported value %q (want sqlite or postgres)", c.Ledger.Driver)
	}
	if len(c.Ledger.KeyPrefix) >= c.Ledger.KeyMaxLength {
		return fmt.Errorf("ledger.key_prefix %q leaves no room under key_max_length %d", c.Ledger.KeyPrefix, c.Ledger.KeyMaxLength)
	}
	if !sqlIdentifierPattern.MatchString(c.Ledger.MatchFunction) {
		return fmt.Errorf("ledger.match_function: %q is not a plain [schema.]function name", c.Ledger.MatchFunction)
	}
	if !sqlIdentifierPattern.MatchString(c.Ledger.Table) {
		return fmt.Errorf("ledger.table: %q is not a plain [schema.]table name", c.Ledger.Table)
	}
	if !currencyCodePattern.MatchString(c.Ledger.Currency) {
		return fmt.Errorf("ledger.currency: %q is not an ISO 4217 code", c.Ledger.Currency)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
