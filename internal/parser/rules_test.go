package parser_test

import (
	"errors"
	"strings"
	"testing"

	"tally/internal/parser"
)

func TestRuleSetPriorityAndFallback(t *testing.T) {
	var got []string
	setter := func(r *parser.Receipt, groups []string) error {
		got = append(got, groups[len(groups)-1])
		r.DocumentNumber = groups[len(groups)-1]
		return nil
	}
	rules := []parser.Rule{
		{Field: "number", Label: `Ref`, Strategy: parser.ColonLine, Pattern: `(\d{4})`, Window: 50, Priority: 2},
		{Field: "number", Label: `Ref`, Strategy: parser.Inline, Pattern: `(\d{4})`, Priority: 1},
	}
	set, err := parser.NewRuleSet(rules, map[parser.Field]parser.Setter{"number": setter}, "number")
	if err != nil {
		t.Fatalf("NewRuleSet: %v", err)
	}

	r := &parser.Receipt{}
	set.Apply("Ref: 1111\n: 2222\n", r)
	if r.DocumentNumber != "1111" || len(got) != 1 {
		t.Fatalf("inline rule should win, got %q after %v", r.DocumentNumber, got)
	}

	got = nil
	r = &parser.Receipt{}
	set.Apply("Ref\nOther\n: 2222\n", r)
	if r.DocumentNumber != "2222" {
		t.Fatalf("colon-line fallback not used, got %q", r.DocumentNumber)
	}
	if len(r.ParseErrors) != 0 {
		t.Fatalf("unexpected errors %v", r.ParseErrors)
	}
}

func TestRuleSetSetterErrorFallsThrough(t *testing.T) {
	calls := 0
	setter := func(r *parser.Receipt, groups []string) error {
		calls++
		if calls == 1 {
			return errors.New("bad value")
		}
		r.StoreName = groups[1]
		return nil
	}
	rules := []parser.Rule{
		{Field: "store", Label: `Store`, Strategy: parser.Inline, Pattern: `(\S+)`},
		{Field: "store", Label: `Branch`, Strategy: parser.Window, Pattern: `(\w+)`, Window: 20, Priority: 1},
	}
	set := parser.MustRuleSet(rules, map[parser.Field]parser.Setter{"store": setter}, "store")

	r := &parser.Receipt{}
	set.Apply("Store: ???\nBranch Marina\n", r)
	if r.StoreName != "Marina" {
		t.Fatalf("store = %q", r.StoreName)
	}
	if len(r.ParseErrors) != 1 || !strings.Contains(r.ParseErrors[0], "bad value") {
		t.Fatalf("expected one invalid-value error, got %v", r.ParseErrors)
	}
}

func TestRuleSetWindowBounds(t *testing.T) {
	setter := func(r *parser.Receipt, groups []string) error {
		r.PaymentMethod = groups[1]
		return nil
	}
	rules := []parser.Rule{
		{Field: "payment", Label: `Paid by`, Strategy: parser.Window, Pattern: `(Visa|Cash)`, Window: 10},
	}
	set := parser.MustRuleSet(rules, map[parser.Field]parser.Setter{"payment": setter}, "payment")

	r := &parser.Receipt{}
	set.Apply("Paid by .................... Visa", r)
	if r.PaymentMethod != "" {
		t.Fatalf("window ignored, got %q", r.PaymentMethod)
	}
	if len(r.ParseErrors) != 1 || !strings.Contains(r.ParseErrors[0], "payment") {
		t.Fatalf("expected missing field error, got %v", r.ParseErrors)
	}
}

func TestRuleSetWindowKeepsValueCrossingEdge(t *testing.T) {
	setter := func(r *parser.Receipt, groups []string) error {
		r.PaymentMethod = groups[1]
		return nil
	}
	tests := []struct {
		name     string
		strategy parser.Strategy
		pattern  string
		text     string
		want     string
	}{
		{"window", parser.Window, `AED\s*([\d,]+(?:\.\d+)?)`, "Total" + strings.Repeat(" ", 6) + "AED 13.59\n", "13.59"},
		{"window at edge", parser.Window, `(\d+\.\d{2})`, "Total" + strings.Repeat(" ", 10) + "123.45\n", "123.45"},
		{"colon line", parser.ColonLine, `(\d+\.\d{2})`, "Total\n:      123.45\n", "123.45"},
		{"starts past window", parser.Window, `(\d+\.\d{2})`, "Total" + strings.Repeat(" ", 12) + "123.45\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := []parser.Rule{
				{Field: "amount", Label: `Total`, Strategy: tt.strategy, Pattern: tt.pattern, Window: 10},
			}
			set := parser.MustRuleSet(rules, map[parser.Field]parser.Setter{"amount": setter})
			r := &parser.Receipt{}
			set.Apply(tt.text, r)
			if r.PaymentMethod != tt.want {
				t.Fatalf("value = %q, want %q", r.PaymentMethod, tt.want)
			}
		})
	}
}
