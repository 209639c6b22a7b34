package parser_test

import (
	"errors"
	"strings"
	"testing"

	"tally/internal/parser"
)

func TestDefaultRegistry(t *testing.T) {
	registry := parser.DefaultRegistry()
	if got := strings.Join(registry.Vendors(), ","); got != "careem_quik,carrefour_uae" {
		t.Fatalf("vendors = %s", got)
	}

	p, err := registry.Lookup(" Carrefour_UAE ")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if p.Version() != parser.CarrefourVersion {
		t.Fatalf("version = %s", p.Version())
	}
	if _, ok := p.(parser.MessageDater); ok {
		t.Fatal("carrefour invoices carry their own date")
	}

	careem, err := registry.Lookup(parser.CareemVendor)
	if err != nil {
		t.Fatalf("Lookup careem: %v", err)
	}
	if _, ok := careem.(parser.MessageDater); !ok {
		t.Fatal("careem parser should date receipts from the message")
	}

	if _, err := registry.Lookup("lulu"); !errors.Is(err, parser.ErrUnknownVendor) {
		t.Fatalf("expected ErrUnknownVendor, got %v", err)
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	if _, err := parser.NewRegistry(parser.NewCarrefour(), parser.NewCarrefour()); err == nil {
		t.Fatal("expected duplicate vendor error")
	}
}

func TestReceiptJSONCarriesDates(t *testing.T) {
	receipt := parser.NewCarrefour().Parse("Tax Invoice\nInvoice Date : 05-FEB-2026\n")
	out, err := receipt.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if !strings.Contains(out, `"document_date":"2026-02-05"`) {
		t.Fatalf("unexpected json %s", out)
	}
}
