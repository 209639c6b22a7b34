package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"tally/internal/money"
)

const itemNumber = `(\d[\d,]*(?:\.\d+)?)`

var (
	// A description followed by exactly nine numbers: ordered qty, delivered
	// qty, unit price incl tax, unit price excl tax, line subtotal, tax rate,
	// tax amount, discount, line total.
	itemLinePattern = regexp.MustCompile(`^\s*(.+?)` + strings.Repeat(`\s+`+itemNumber, 9) + `\s*$`)
	barcodePattern  = regexp.MustCompile(`^\s*(?:Barcode:\s*)?(\d{8,14})\s*$`)
	voucherPattern  = regexp.MustCompile(`(?i)Voucher Discount:\s*([\d,]+(?:\.\d+)?)\s*AED`)
	numericLine     = regexp.MustCompile(`^[\d\s.,]+$`)
)

// ItemLayout describes the noise a fixed-arity item table is embedded in.
type ItemLayout struct {
	// SkipMarkers drop any line containing one of them.
	SkipMarkers []string
	// NotContinuation drops candidate description lines with these prefixes.
	NotContinuation []string
}

type itemBuilder struct {
	item   LineItem
	extra  []string
	closed bool
}

func (b *itemBuilder) finish() LineItem {
	raw := b.item.Description
	if len(b.extra) > 0 {
		raw = raw + " " + strings.Join(b.extra, " ")
	}
	b.item.Description = strings.Join(strings.Fields(raw), " ")
	b.item.DescriptionClean = CleanDescription(raw)
	return b.item
}

// ParseLineItems scans text line by line for fixed-arity item records.
// Description lines that follow a record accumulate until a barcode line
// closes the item.
func ParseLineItems(text string, layout ItemLayout, r *Receipt) []LineItem {
	items := []LineItem{}
	var current *itemBuilder
	flush := func() {
		if current != nil {
			items = append(items, current.finish())
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if containsAny(line, layout.SkipMarkers) {
			continue
		}
		if m := itemLinePattern.FindStringSubmatch(line); m != nil {
			flush()
			item, err := itemFromFields(m[1], m[2:])
			if err != nil {
				r.AddError("line item %q: %v", strings.TrimSpace(m[1]), err)
				continue
			}
			current = &itemBuilder{item: item}
			continue
		}
		if current == nil || current.closed {
			continue
		}
		if m := barcodePattern.FindStringSubmatch(line); m != nil {
			current.item.Barcode = m[1]
			current.closed = true
			continue
		}
		if m := voucherPattern.FindStringSubmatch(line); m != nil {
			if value, err := money.Parse(m[1]); err == nil {
				current.item.VoucherDiscount = decimal.NewNullDecimal(value)
			} else {
				r.AddError("voucher discount %q: %v", m[1], err)
			}
			continue
		}
		if isContinuation(line, layout.NotContinuation) {
			current.extra = append(current.extra, strings.TrimSpace(line))
		}
	}
	flush()
	return items
}

func itemFromFields(description string, fields []string) (LineItem, error) {
	values := make([]decimal.Decimal, len(fields))
	for i, field := range fields {
		value, err := money.Parse(field)
		if err != nil {
			return LineItem{}, err
		}
		values[i] = value
	}
	item := LineItem{
		Description:   strings.TrimSpace(description),
		QtyOrdered:    values[0],
		QtyDelivered:  values[1],
		UnitPriceIncl: values[2],
		UnitPriceExcl: values[3],
		Subtotal:      values[4],
		TaxRate:       values[5],
		TaxAmount:     values[6],
		Discount:      values[7],
		Total:         values[8],
	}
	item.IsFree = item.Total.IsZero()
	return item, nil
}

func isContinuation(line string, excluded []string) bool {
	trimmed := strings.TrimSpace(line)
	if len([]rune(trimmed)) <= 3 || IsForeignOnly(trimmed) || numericLine.MatchString(trimmed) {
		return false
	}
	for _, prefix := range excluded {
		if strings.HasPrefix(trimmed, prefix) {
			return false
		}
	}
	return true
}

func containsAny(line string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}
