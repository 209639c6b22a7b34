// Package reconcile checks the arithmetic self-consistency of parsed receipts
// before they may reach the ledger.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tally/internal/config"
	"tally/internal/money"
	"tally/internal/parser"
)

// Issue codes.
const (
	IssueMissingField   = "missing_field"
	IssueNoLineItems    = "no_line_items"
	IssueItemsMismatch  = "items_mismatch"
	IssueTotalsMismatch = "totals_mismatch"
)

// CheckSubtotalTax names the subtotal plus tax against total check.
const CheckSubtotalTax = "subtotal_plus_tax"

// Issue is one reconciliation finding.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result collects the findings for one receipt. Skipped lists checks that
// could not run because the document does not print their inputs; they do
// not fail the receipt.
type Result struct {
	Issues  []Issue  `json:"issues"`
	Skipped []string `json:"skipped_checks,omitempty"`
}

// OK reports whether the receipt passed every check.
func (r Result) OK() bool {
	return len(r.Issues) == 0
}

// Message joins the findings into a single review note.
func (r Result) Message() string {
	parts := make([]string, len(r.Issues))
	for i, issue := range r.Issues {
		parts[i] = issue.Message
	}
	return strings.Join(parts, "; ")
}

func (r *Result) add(code, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Code: code, Message: fmt.Sprintf(format, args...)})
}

// Validator applies tolerance-bounded arithmetic checks.
type Validator struct {
	itemsTolerance  decimal.Decimal
	totalsTolerance decimal.Decimal
}

// New builds a validator from configured tolerances.
func New(cfg config.Reconcile) *Validator {
	return NewWithTolerances(decimal.NewFromFloat(cfg.ItemsTolerance), decimal.NewFromFloat(cfg.TotalsTolerance))
}

// NewWithTolerances builds a validator with explicit tolerances.
func NewWithTolerances(items, totals decimal.Decimal) *Validator {
	return &Validator{itemsTolerance: items.Abs(), totalsTolerance: totals.Abs()}
}

// Validate checks required posting fields, line items against the total,
// and subtotal plus tax against the total. Absent required inputs are
// reported as missing fields; an absent subtotal only marks its check skipped.
func (v *Validator) Validate(r *parser.Receipt) Result {
	var result Result

	if r.DocumentNumber == "" {
		result.add(IssueMissingField, "missing document number")
	}
	if r.DocumentDate.IsZero() {
		result.add(IssueMissingField, "missing document date")
	}
	if !r.TotalInclTax.Valid {
		result.add(IssueMissingField, "missing total")
	}
	if !r.TaxAmount.Valid {
		result.add(IssueMissingField, "missing tax amount")
	}

	if len(r.Items) == 0 {
		result.add(IssueNoLineItems, "no line items")
	} else if r.TotalInclTax.Valid {
		sum := r.ItemsTotal()
		total := r.TotalInclTax.Decimal
		if !money.Within(sum, total, v.itemsTolerance) {
			result.add(IssueItemsMismatch, "line items sum %s differs from total %s by %s (tolerance %s)",
				money.Format(sum), money.Format(total), money.Format(sum.Sub(total).Abs()), money.Format(v.itemsTolerance))
		}
	}

	switch {
	case !r.TotalInclTax.Valid || !r.TaxAmount.Valid:
		// Reported as missing fields above.
	case !r.TotalExclTax.Valid:
		// Order emails such as Careem's print no subtotal.
		result.Skipped = append(result.Skipped, CheckSubtotalTax)
	default:
		derived := r.TotalExclTax.Decimal.Add(r.TaxAmount.Decimal)
		total := r.TotalInclTax.Decimal
		if !money.Within(derived, total, v.totalsTolerance) {
			result.add(IssueTotalsMismatch, "subtotal %s + tax %s = %s differs from total %s (tolerance %s)",
				money.Format(r.TotalExclTax.Decimal), money.Format(r.TaxAmount.Decimal),
				money.Format(derived), money.Format(total), money.Format(v.totalsTolerance))
		}
	}

	return result
}

// Critical reports whether the receipt lacks every identifying field
// (document number, date, and total). Such a document cannot be corrected by
// review and fails outright.
func Critical(r *parser.Receipt) bool {
	return r.DocumentNumber == "" && r.DocumentDate.IsZero() && !r.TotalInclTax.Valid
}
