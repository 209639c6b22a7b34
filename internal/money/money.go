// Package money normalizes printed amounts into exact decimals and renders
// them for storage and display.
package money

import (
	"errors"
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// MaxAmount bounds any single amount printed on a receipt.
var MaxAmount = decimal.NewFromInt(1_000_000)

var (
	// ErrInvalidAmount reports a token that is not a decimal number.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrOutOfRange reports an amount whose magnitude is implausible for a receipt.
	ErrOutOfRange = errors.New("amount out of range")
)

// Parse converts a printed token such as "1,234.50" into a decimal. Thousands
// separators and surrounding whitespace are dropped; magnitudes at or above
// MaxAmount are rejected.
func Parse(token string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(token)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.TrimSuffix(cleaned, ".")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: empty token", ErrInvalidAmount)
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, token)
	}
	if value.Abs().GreaterThanOrEqual(MaxAmount) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrOutOfRange, value.String())
	}
	return value, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(token string) decimal.Decimal {
	value, err := Parse(token)
	if err != nil {
		panic(err)
	}
	return value
}

// Format renders value with at least two decimal digits and never drops
// precision beyond that.
func Format(value decimal.Decimal) string {
	if value.Exponent() < -2 {
		return value.String()
	}
	return value.StringFixed(2)
}

// FormatNull renders an optional amount, returning "" when absent.
func FormatNull(value decimal.NullDecimal) string {
	if !value.Valid {
		return ""
	}
	return Format(value.Decimal)
}

// ParseNull reads a stored amount; an empty string yields an absent value.
func ParseNull(raw string) (decimal.NullDecimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return decimal.NewNullDecimal(value), nil
}

// Within reports whether |a-b| <= tolerance.
func Within(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// Display renders value in currency using the ISO currency table, falling back
// to "CODE 0.00" for codes the table does not know.
func Display(value decimal.Decimal, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	cur := gomoney.GetCurrency(code)
	if cur == nil {
		return strings.TrimSpace(code + " " + Format(value))
	}
	minor := value.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return gomoney.New(minor, code).Display()
}
