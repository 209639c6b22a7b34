package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tally/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.BlobDir = filepath.Join(base, "data", "documents")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Gmail.CredentialsPath = filepath.Join(base, "gmail_client_secret.json")
	cfgVal.Gmail.TokenPath = filepath.Join(base, "gmail_token.json")
	cfgVal.Sources = append(cfgVal.Sources, config.Source{
		Label:       "Receipts/Careem",
		Vendor:      "careem_quik",
		MediaTypes:  []string{"text/html"},
		IncludeBody: true,
	})

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTolerances overrides the reconciliation tolerances.
func WithTolerances(items, totals float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Reconcile.ItemsTolerance = items
		b.cfg.Reconcile.TotalsTolerance = totals
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, pdftotext is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"pdftotext"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
