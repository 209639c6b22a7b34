package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	if err := c.normalizeGmail(); err != nil {
		return err
	}
	c.normalizeSources()
	c.normalizeExtractor()
	c.normalizeLedger()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.BlobDir) == "" {
		c.Paths.BlobDir = filepath.Join(c.Paths.DataDir, "documents")
	}
	if c.Paths.BlobDir, err = expandPath(c.Paths.BlobDir); err != nil {
		return fmt.Errorf("paths.blob_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageLocal
	}
	c.Storage.GCSBucket = strings.TrimSpace(c.Storage.GCSBucket)
	if c.Storage.GCSBucket == "" {
		if value, ok := os.LookupEnv("TALLY_GCS_BUCKET"); ok {
			c.Storage.GCSBucket = strings.TrimSpace(value)
		}
	}
	c.Storage.GCSPrefix = strings.Trim(strings.TrimSpace(c.Storage.GCSPrefix), "/")
}

func (c *Config) normalizeGmail() error {
	if value, ok := os.LookupEnv("GMAIL_CREDENTIALS_PATH"); ok && strings.TrimSpace(value) != "" {
		c.Gmail.CredentialsPath = value
	}
	if value, ok := os.LookupEnv("GMAIL_TOKEN_PATH"); ok && strings.TrimSpace(value) != "" {
		c.Gmail.TokenPath = value
	}
	var err error
	if c.Gmail.CredentialsPath, err = expandPath(c.Gmail.CredentialsPath); err != nil {
		return fmt.Errorf("gmail.credentials_path: %w", err)
	}
	if c.Gmail.TokenPath, err = expandPath(c.Gmail.TokenPath); err != nil {
		return fmt.Errorf("gmail.token_path: %w", err)
	}
	c.Gmail.User = strings.TrimSpace(c.Gmail.User)
	if c.Gmail.User == "" {
		c.Gmail.User = defaultGmailUser
	}
	if c.Gmail.PageSize <= 0 {
		c.Gmail.PageSize = defaultGmailPageSize
	}
	if c.Gmail.DownloadConcurrency <= 0 {
		c.Gmail.DownloadConcurrency = defaultGmailConcurrency
	}
	return nil
}

func (c *Config) normalizeSources() {
	for i := range c.Sources {
		src := &c.Sources[i]
		src.Label = strings.TrimSpace(src.Label)
		src.Vendor = strings.ToLower(strings.TrimSpace(src.Vendor))
		types := make([]string, 0, len(src.MediaTypes))
		for _, mt := range src.MediaTypes {
			if trimmed := strings.ToLower(strings.TrimSpace(mt)); trimmed != "" {
				types = append(types, trimmed)
			}
		}
		if len(types) == 0 {
			types = []string{mediaTypePDF, mediaTypeOctetStream}
		}
		src.MediaTypes = types
	}
}

func (c *Config) normalizeExtractor() {
	c.Extractor.PdftotextBinary = strings.TrimSpace(c.Extractor.PdftotextBinary)
	if c.Extractor.PdftotextBinary == "" {
		c.Extractor.PdftotextBinary = defaultPdftotextBinary
	}
	if c.Extractor.TimeoutSeconds <= 0 {
		c.Extractor.TimeoutSeconds = defaultExtractorTimeout
	}
}

func (c *Config) normalizeLedger() {
	c.Ledger.Driver = strings.ToLower(strings.TrimSpace(c.Ledger.Driver))
	if c.Ledger.Driver == "" {
		c.Ledger.Driver = LedgerSQLite
	}
	if c.Ledger.DSN == "" {
		if value, ok := os.LookupEnv("TALLY_LEDGER_DSN"); ok {
			c.Ledger.DSN = strings.TrimSpace(value)
		}
	}
	if c.Ledger.KeyPrefix == "" {
		c.Ledger.KeyPrefix = defaultLedgerKeyPrefix
	}
	if c.Ledger.KeyMaxLength <= 0 {
		c.Ledger.KeyMaxLength = defaultLedgerKeyMaxLength
	}
	c.Ledger.Currency = strings.ToUpper(strings.TrimSpace(c.Ledger.Currency))
	if c.Ledger.Currency == "" {
		c.Ledger.Currency = defaultLedgerCurrency
	}
	c.Ledger.Category = strings.TrimSpace(c.Ledger.Category)
	if c.Ledger.Category == "" {
		c.Ledger.Category = defaultLedgerCategory
	}
	if c.Ledger.MatchWindowDays < 0 {
		c.Ledger.MatchWindowDays = 0
	}
	c.Ledger.MatchFunction = strings.TrimSpace(c.Ledger.MatchFunction)
	if c.Ledger.MatchFunction == "" {
		c.Ledger.MatchFunction = defaultLedgerMatchFunction
	}
	c.Ledger.Table = strings.TrimSpace(c.Ledger.Table)
	if c.Ledger.Table == "" {
		c.Ledger.Table = defaultLedgerTable
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
