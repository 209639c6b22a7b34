package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tally/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TALLY_LEDGER_DSN", "")
	t.Setenv("TALLY_GCS_BUCKET", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "tally")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "tally.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.LedgerPath() != filepath.Join(wantData, "ledger.db") {
		t.Fatalf("unexpected ledger path: %q", cfg.LedgerPath())
	}
	if cfg.Storage.Backend != config.StorageLocal {
		t.Fatalf("expected local storage by default, got %q", cfg.Storage.Backend)
	}
	if cfg.Ledger.KeyPrefix != "rcpt:" || cfg.Ledger.KeyMaxLength != 36 {
		t.Fatalf("unexpected ledger key shape: %q/%d", cfg.Ledger.KeyPrefix, cfg.Ledger.KeyMaxLength)
	}
	if cfg.Reconcile.ItemsTolerance != 0.10 || cfg.Reconcile.TotalsTolerance != 0.02 {
		t.Fatalf("unexpected tolerances: %+v", cfg.Reconcile)
	}
	if cfg.ExtractorTimeout().Seconds() != 30 {
		t.Fatalf("unexpected extractor timeout: %v", cfg.ExtractorTimeout())
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Vendor != "carrefour_uae" {
		t.Fatalf("unexpected default sources: %+v", cfg.Sources)
	}
}

func TestLoadCustomConfigReplacesSources(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TALLY_LEDGER_DSN", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "tally.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"

[[sources]]
label = "Receipts/Careem"
vendor = "Careem_Quik"
media_types = [" TEXT/HTML "]
include_body = true

[reconcile]
items_tolerance = 0.5

[ledger]
currency = "usd"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %q, got %q exists=%v", path, resolved, exists)
	}
	if len(cfg.Sources) != 1 {
		t.Fatalf("expected file sources to replace defaults, got %+v", cfg.Sources)
	}
	src, ok := cfg.SourceForLabel("Receipts/Careem")
	if !ok {
		t.Fatal("expected careem source")
	}
	if src.Vendor != "careem_quik" || src.MediaTypes[0] != "text/html" || !src.IncludeBody {
		t.Fatalf("unexpected normalized source: %+v", src)
	}
	if cfg.Paths.BlobDir != filepath.Join(dir, "data", "documents") {
		t.Fatalf("expected blob dir under data dir, got %q", cfg.Paths.BlobDir)
	}
	if cfg.Reconcile.ItemsTolerance != 0.5 {
		t.Fatalf("expected items tolerance override, got %v", cfg.Reconcile.ItemsTolerance)
	}
	if cfg.Ledger.Currency != "USD" {
		t.Fatalf("expected upper-cased currency, got %q", cfg.Ledger.Currency)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if _, err := os.Stat(cfg.Paths.BlobDir); err != nil {
		t.Fatalf("expected blob dir created: %v", err)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"gcs without bucket", func(c *config.Config) { c.Storage.Backend = config.StorageGCS }, "storage.gcs_bucket"},
		{"unknown backend", func(c *config.Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"postgres without dsn", func(c *config.Config) { c.Ledger.Driver = config.LedgerPostgres }, "ledger.dsn"},
		{"prefix too long", func(c *config.Config) { c.Ledger.KeyMaxLength = 3 }, "key_prefix"},
		{"negative tolerance", func(c *config.Config) { c.Reconcile.ItemsTolerance = -1 }, "items_tolerance"},
		{"source without vendor", func(c *config.Config) { c.Sources[0].Vendor = "" }, "vendor"},
		{"duplicate label", func(c *config.Config) { c.Sources = append(c.Sources, c.Sources[0]) }, "declared twice"},
		{"bad currency", func(c *config.Config) { c.Ledger.Currency = "DIRHAM" }, "ISO 4217"},
		{"bad match function", func(c *config.Config) { c.Ledger.MatchFunction = "f(); DROP TABLE x" }, "match_function"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.BlobDir = t.TempDir()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TALLY_LEDGER_DSN", "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("expected two sample sources, got %d", len(cfg.Sources))
	}
}
