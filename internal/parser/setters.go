package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tally/internal/money"
)

var titleCaser = cases.Title(language.English)

func textSetter(get func(*Receipt) *string) Setter {
	return func(r *Receipt, groups []string) error {
		value := strings.Join(strings.Fields(lastGroup(groups)), " ")
		if value == "" {
			return fmt.Errorf("empty value")
		}
		*get(r) = value
		return nil
	}
}

func titleSetter(get func(*Receipt) *string) Setter {
	inner := textSetter(get)
	return func(r *Receipt, groups []string) error {
		if err := inner(r, groups); err != nil {
			return err
		}
		*get(r) = titleCaser.String(*get(r))
		return nil
	}
}

func amountSetter(get func(*Receipt) *decimal.NullDecimal) Setter {
	return func(r *Receipt, groups []string) error {
		value, err := money.Parse(lastGroup(groups))
		if err != nil {
			return err
		}
		*get(r) = decimal.NewNullDecimal(value)
		return nil
	}
}

// feeSetter appends a fee line; credits are stored negative.
func feeSetter(label string, credit bool) Setter {
	return func(r *Receipt, groups []string) error {
		value, err := money.Parse(lastGroup(groups))
		if err != nil {
			return err
		}
		if credit {
			value = value.Neg()
		}
		r.Fees = append(r.Fees, Fee{Label: label, Amount: value})
		return nil
	}
}

func dateSetter(parse func(string) (time.Time, error)) Setter {
	return func(r *Receipt, groups []string) error {
		day, err := parse(lastGroup(groups))
		if err != nil {
			return err
		}
		r.DocumentDate = NewDate(day)
		return nil
	}
}

// parseDayMonthYear reads dates such as "21-Jan-2026" or "21-JAN-2026".
func parseDayMonthYear(raw string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("unexpected date %q", raw)
	}
	parts[1] = titleCaser.String(parts[1])
	day, err := time.Parse("2-Jan-2006", strings.Join(parts, "-"))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return day, nil
}

func lastGroup(groups []string) string {
	if len(groups) == 0 {
		return ""
	}
	return strings.TrimSpace(groups[len(groups)-1])
}
