package parser_test

import (
	"testing"

	"tally/internal/parser"
)

func TestCleanDescription(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Almarai Milk, 1L", "Almarai Milk, 1L"},
		{"  Bananas   Chiquita ,  ", "Bananas Chiquita"},
		{"Shopping Bag (Free)", "Shopping Bag"},
		{"\u202aHummus 200g\u202c \u062d\u0645\u0635", "Hummus 200g"},
		{"Dates\u200b Premium\ufeff", "Dates Premium"},
		{"Water \ufee3\ufe8e\u0621 1.5L", "Water 1.5L"},
	}
	for _, tt := range tests {
		if got := parser.CleanDescription(tt.in); got != tt.want {
			t.Fatalf("CleanDescription(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsForeignOnly(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"حليب المراعي قليل الدسم", true},
		{"موز 1.5", true},
		{"Ecuador, per kg", false},
		{"حليب Milk", false},
		{"   ", false},
	}
	for _, tt := range tests {
		if got := parser.IsForeignOnly(tt.in); got != tt.want {
			t.Fatalf("IsForeignOnly(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
