package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tally/internal/config"
	"tally/internal/source"
	"tally/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	source     *testsupport.FakeSource
}

// pdftotextStub answers the version probe and otherwise prints the input file,
// so stored "PDF" bytes can be plain receipt text.
const pdftotextStub = `#!/bin/sh
if [ "$1" = "-v" ]; then
  echo "pdftotext version 24.02.0" >&2
  exit 0
fi
cat "$4"
`

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	binDir := filepath.Join(base, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	stub := filepath.Join(binDir, "pdftotext")
	if err := os.WriteFile(stub, []byte(pdftotextStub), 0o755); err != nil {
		t.Fatalf("write pdftotext stub: %v", err)
	}
	cfg.Extractor.PdftotextBinary = stub
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	configPath := filepath.Join(base, "tally.toml")
	writeTestConfig(t, configPath, cfg)

	src := testsupport.NewFakeSource()
	previous := openSource
	openSource = func(context.Context, *config.Config, *slog.Logger) (source.Source, error) {
		return src, nil
	}
	t.Cleanup(func() { openSource = previous })

	return &cliTestEnv{cfg: cfg, configPath: configPath, source: src}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--log-level", "error"}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
