package parser

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Document types recognized by the vendor classifiers.
const (
	DocTaxInvoice   = "tax_invoice"
	DocOrderReceipt = "order_receipt"
	DocTipsReceipt  = "tips_receipt"
	DocRefundNote   = "refund_note"
	DocUnknown      = "unknown"
)

// Date is a calendar day that serializes as YYYY-MM-DD, or null when unset.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate truncates t to its calendar day.
func NewDate(t time.Time) Date {
	return Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// String renders the day or "" when unset.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		d.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", raw, err)
	}
	d.Time = parsed
	return nil
}

// LineItem is one purchase line in the order printed on the document.
type LineItem struct {
	Description      string              `json:"description"`
	DescriptionClean string              `json:"description_clean"`
	Barcode          string              `json:"barcode,omitempty"`
	QtyOrdered       decimal.Decimal     `json:"qty_ordered"`
	QtyDelivered     decimal.Decimal     `json:"qty_delivered"`
	UnitPriceIncl    decimal.Decimal     `json:"unit_price_incl_tax"`
	UnitPriceExcl    decimal.Decimal     `json:"unit_price_excl_tax"`
	Subtotal         decimal.Decimal     `json:"total_excl_tax"`
	TaxRate          decimal.Decimal     `json:"tax_rate"`
	TaxAmount        decimal.Decimal     `json:"tax_amount"`
	Discount         decimal.Decimal     `json:"discount"`
	Total            decimal.Decimal     `json:"total_incl_tax"`
	IsFree           bool                `json:"is_free,omitempty"`
	VoucherDiscount  decimal.NullDecimal `json:"voucher_discount"`
}

// Fee is a signed charge or credit printed outside the item list, such as a
// delivery fee (positive) or a free-delivery credit (negative).
type Fee struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// Savings is the discount breakdown a vendor advertises.
type Savings struct {
	Promo      decimal.NullDecimal `json:"promo"`
	Products   decimal.NullDecimal `json:"products"`
	Discount   decimal.NullDecimal `json:"discount"`
	Membership decimal.NullDecimal `json:"membership"`
	Advertised decimal.NullDecimal `json:"advertised"`
	Total      decimal.NullDecimal `json:"total"`
}

// Receipt is the structured result of one parse attempt. Optional header
// fields stay invalid or empty when the document does not print them, and
// every expected-but-absent field is listed in ParseErrors.
type Receipt struct {
	Vendor         string              `json:"vendor"`
	ParseVersion   string              `json:"parse_version"`
	DocType        string              `json:"doc_type"`
	SkipReason     string              `json:"skip_reason,omitempty"`
	DocumentNumber string              `json:"document_number,omitempty"`
	OrderNumber    string              `json:"order_number,omitempty"`
	DocumentDate   Date                `json:"document_date"`
	StoreName      string              `json:"store_name,omitempty"`
	Currency       string              `json:"currency,omitempty"`
	PaymentMethod  string              `json:"payment_method,omitempty"`
	BasketTotal    decimal.NullDecimal `json:"basket_total"`
	TotalExclTax   decimal.NullDecimal `json:"total_excl_tax"`
	TaxRate        decimal.NullDecimal `json:"tax_rate"`
	TaxAmount      decimal.NullDecimal `json:"tax_amount"`
	TotalInclTax   decimal.NullDecimal `json:"total_incl_tax"`
	Items          []LineItem          `json:"line_items"`
	Fees           []Fee               `json:"fees,omitempty"`
	Savings        Savings             `json:"savings"`
	TemplateHash   string              `json:"template_hash"`
	Anchors        []string            `json:"anchors"`
	ParseErrors    []string            `json:"parse_errors"`
}

func newReceipt(vendor, version string) *Receipt {
	return &Receipt{
		Vendor:       vendor,
		ParseVersion: version,
		DocType:      DocUnknown,
		Items:        []LineItem{},
		ParseErrors:  []string{},
	}
}

// AddError records a non-fatal extraction problem.
func (r *Receipt) AddError(format string, args ...any) {
	r.ParseErrors = append(r.ParseErrors, fmt.Sprintf(format, args...))
}

// Skipped reports whether the document type is not one the parser handles.
func (r *Receipt) Skipped() bool {
	return r.SkipReason != ""
}

// ItemsTotal sums line totals and signed fees. For a consistent receipt it
// equals TotalInclTax.
func (r *Receipt) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range r.Items {
		sum = sum.Add(item.Total)
	}
	for _, fee := range r.Fees {
		sum = sum.Add(fee.Amount)
	}
	return sum
}

// JSON renders the receipt for the audit trail.
func (r *Receipt) JSON() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal receipt: %w", err)
	}
	return string(data), nil
}
