package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	BlobDir string `toml:"blob_dir"`
	LogDir  string `toml:"log_dir"`
}

// Storage selects where raw document bytes live.
type Storage struct {
	Backend   string `toml:"backend"`
	GCSBucket string `toml:"gcs_bucket"`
	GCSPrefix string `toml:"gcs_prefix"`
}

// Gmail contains credentials and paging settings for the mailbox source.
type Gmail struct {
	CredentialsPath     string `toml:"credentials_path"`
	TokenPath           string `toml:"token_path"`
	User                string `toml:"user"`
	PageSize            int64  `toml:"page_size"`
	DownloadConcurrency int    `toml:"download_concurrency"`
}

// Source binds a mailbox label to the vendor parser that handles its documents.
type Source struct {
	Label       string   `toml:"label"`
	Vendor      string   `toml:"vendor"`
	MediaTypes  []string `toml:"media_types"`
	IncludeBody bool     `toml:"include_body"`
}

// Extractor configures the PDF text extraction tool.
type Extractor struct {
	PdftotextBinary string `toml:"pdftotext_binary"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Reconcile holds arithmetic tolerances applied before a receipt is accepted.
type Reconcile struct {
	ItemsTolerance  float64 `toml:"items_tolerance"`
	TotalsTolerance float64 `toml:"totals_tolerance"`
}

// Ledger configures the transaction store that receipts are linked against.
type Ledger struct {
	Driver          string `toml:"driver"`
	DSN             string `toml:"dsn"`
	KeyPrefix       string `toml:"key_prefix"`
	KeyMaxLength    int    `toml:"key_max_length"`
	Currency        string `toml:"currency"`
	Category        string `toml:"category"`
	MatchWindowDays int    `toml:"match_window_days"`
	MatchFunction   string `toml:"match_function"`
	Table           string `toml:"table"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for tally.
//
// Configuration sections by subsystem:
//   - Paths: database, document and log directories
//   - Storage: local or GCS backend for raw document bytes
//   - Gmail: mailbox credentials and paging
//   - Sources: label to vendor bindings
//   - Extractor: pdftotext binary and timeout
//   - Reconcile: arithmetic tolerances
//   - Ledger: transaction store and idempotency key shape
//   - Logging: log format, level, and retention
type Config struct {
	Paths     Paths     `toml:"paths"`
	Storage   Storage   `toml:"storage"`
	Gmail     Gmail     `toml:"gmail"`
	Sources   []Source  `toml:"sources"`
	Extractor Extractor `toml:"extractor"`
	Reconcile Reconcile `toml:"reconcile"`
	Ledger    Ledger    `toml:"ledger"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		// A file that declares [[sources]] replaces the default list.
		cfg.Sources = nil
		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
		if len(cfg.Sources) == 0 {
			cfg.Sources = defaultSources()
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tally.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, blob and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Paths.BlobDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file holding documents, templates and links.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "tally.db")
}

// LedgerPath returns the SQLite file used when ledger.driver is "sqlite" and no DSN is set.
func (c *Config) LedgerPath() string {
	if strings.TrimSpace(c.Ledger.DSN) != "" {
		return c.Ledger.DSN
	}
	return filepath.Join(c.Paths.DataDir, "ledger.db")
}

// LockPath returns the lock file taken by full pipeline runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "tally.lock")
}

// ExtractorTimeout returns the hard limit for one extraction subprocess.
func (c *Config) ExtractorTimeout() time.Duration {
	return time.Duration(c.Extractor.TimeoutSeconds) * time.Second
}

// SourceForLabel returns the configured source binding for label.
func (c *Config) SourceForLabel(label string) (Source, bool) {
	for _, src := range c.Sources {
		if src.Label == label {
			return src, true
		}
	}
	return Source{}, false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
