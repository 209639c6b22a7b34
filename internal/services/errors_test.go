package services_test

import (
	"errors"
	"strings"
	"testing"

	"tally/internal/receipts"
	"tally/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "extract", "pdftotext", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"extract", "pdftotext", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestFailureStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want receipts.Status
	}{
		{"unsupported", services.Wrap(services.ErrUnsupportedDocument, "parse", "classify", "tips receipt", nil), receipts.StatusSkipped},
		{"template", services.Wrap(services.ErrUnapprovedTemplate, "drift", "check", "new template", nil), receipts.StatusNeedsReview},
		{"reconcile", services.Wrap(services.ErrReconciliation, "reconcile", "", "items mismatch", nil), receipts.StatusNeedsReview},
		{"critical", services.Wrap(services.ErrCriticalExtraction, "parse", "", "no identifying fields", nil), receipts.StatusFailed},
		{"timeout", services.Wrap(services.ErrTimeout, "extract", "pdftotext", "", nil), receipts.StatusFailed},
		{"plain", errors.New("io"), receipts.StatusFailed},
		{"nil", nil, receipts.StatusFailed},
	}
	for _, tt := range tests {
		if got := services.FailureStatus(tt.err); got != tt.want {
			t.Fatalf("%s: status = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestMessageStripsMarker(t *testing.T) {
	err := services.Wrap(services.ErrReconciliation, "reconcile", "", "line items sum 1.00 differs", nil)
	if got := services.Message(err); got != "reconcile: line items sum 1.00 differs" {
		t.Fatalf("message = %q", got)
	}
	if got := services.Message(errors.New("plain")); got != "plain" {
		t.Fatalf("message = %q", got)
	}
}
