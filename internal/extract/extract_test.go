package extract_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tally/internal/extract"
	"tally/internal/services"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pdftotext")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestPdftotextReadsStdout(t *testing.T) {
	bin := writeScript(t, `echo "Tax Invoice"; echo "args: $1 $2 $3"`)
	text, err := extract.Pdftotext{Binary: bin, Timeout: 5 * time.Second}.Extract(context.Background(), []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(text, "Tax Invoice") || !strings.Contains(text, "args: -layout -enc UTF-8") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestPdftotextFailures(t *testing.T) {
	tests := []struct {
		name   string
		script string
		marker error
	}{
		{"non-zero exit", `echo "Syntax Error: broken xref" >&2; exit 1`, services.ErrExternalTool},
		{"empty output", `exit 0`, services.ErrCriticalExtraction},
		{"timeout", `sleep 5`, services.ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := extract.Pdftotext{Binary: writeScript(t, tt.script), Timeout: 300 * time.Millisecond}
			_, err := p.Extract(context.Background(), []byte("%PDF-1.4"))
			if !errors.Is(err, tt.marker) {
				t.Fatalf("expected %v, got %v", tt.marker, err)
			}
		})
	}
}

func TestPdftotextMissingBinary(t *testing.T) {
	p := extract.Pdftotext{Binary: filepath.Join(t.TempDir(), "absent")}
	if _, err := p.Extract(context.Background(), []byte("x")); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestSetByMediaType(t *testing.T) {
	set := extract.NewSet(extract.Pdftotext{})
	ex, err := set.ByMediaType("text/html; charset=utf-8")
	if err != nil || ex.Method() != "html_body" {
		t.Fatalf("html extractor = %v, %v", ex, err)
	}
	ex, err = set.ByMediaType("Application/PDF")
	if err != nil || ex.Method() != "pdftotext_layout" {
		t.Fatalf("pdf extractor = %v, %v", ex, err)
	}
	if _, err := set.ByMediaType("image/png"); !errors.Is(err, services.ErrUnsupportedDocument) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestHTMLBody(t *testing.T) {
	text, err := extract.HTMLBody{}.Extract(context.Background(), []byte("<p>Your total bill: AED 13.50</p>"))
	if err != nil || !strings.Contains(text, "13.50") {
		t.Fatalf("Extract = %q, %v", text, err)
	}
	if _, err := (extract.HTMLBody{}).Extract(context.Background(), nil); !errors.Is(err, services.ErrCriticalExtraction) {
		t.Fatalf("expected critical extraction error, got %v", err)
	}
}
