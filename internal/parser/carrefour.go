package parser

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tally/internal/money"
)

// Carrefour vendor identity.
const (
	CarrefourVendor  = "carrefour_uae"
	CarrefourVersion = "carrefour_v1"
)

const (
	fieldDocumentNumber Field = "document_number"
	fieldOrderNumber    Field = "order_number"
	fieldDocumentDate   Field = "document_date"
	fieldStoreName      Field = "store_name"
	fieldTotalInclTax   Field = "total_incl_tax"
	fieldTaxSummary     Field = "tax_summary"
	fieldPaymentMethod  Field = "payment_method"
	fieldPromoSavings   Field = "promo_savings"
	fieldProductSavings Field = "product_savings"
	fieldTotalSavings   Field = "total_savings"
)

const (
	carrefourAmount = `([\d,]+(?:\.\d+)?)`
	carrefourDate   = `(\d{1,2}-[A-Za-z]{3}-\d{4})`
	labelWindow     = 400
)

var carrefourDocTypes = []DocTypeRule{
	{DocType: DocTaxInvoice, Keywords: []string{"tax invoice"}},
	{DocType: DocTipsReceipt, Keywords: []string{"tips receipt", "driver tip"}},
	{DocType: DocRefundNote, Keywords: []string{"refund note", "credit note"}},
}

var carrefourAnchors = []Anchor{
	NewAnchor("tax_invoice", `(?i)tax invoice`),
	NewAnchor("order_no", `Order No`),
	NewAnchor("invoice_no", `Invoice No`),
	NewAnchor("invoice_date", `Invoice Date`),
	NewAnchor("customer_information", `(?i)customer information`),
	NewAnchor("store_information", `(?i)store information`),
	NewAnchor("item_header", `Description`),
	NewAnchor("barcode", `Barcode`),
	NewAnchor("total_incl_vat", `(?i)Total Amount Incl\.?\s*VAT`),
	NewAnchor("vat_summary", `VAT %`),
	NewAnchor("payment_type", `Payment Type`),
	NewAnchor("total_savings", `(?i)Total savings`),
}

var carrefourRules = []Rule{
	{Field: fieldDocumentNumber, Label: `Invoice No\.?`, Strategy: Inline, Pattern: `(\d{8,})`},
	{Field: fieldDocumentNumber, Label: `Invoice No\.?`, Strategy: ColonLine, Pattern: `(\d{8})`, Window: labelWindow, Priority: 1},
	{Field: fieldOrderNumber, Label: `Order No\.?`, Strategy: Inline, Pattern: `(\d{12,})`},
	{Field: fieldOrderNumber, Label: `Order No\.?`, Strategy: ColonLine, Pattern: `(\d{12,})`, Window: labelWindow, Priority: 1},
	{Field: fieldDocumentDate, Label: `Invoice Date`, Strategy: Inline, Pattern: carrefourDate},
	{Field: fieldDocumentDate, Label: `Invoice Date`, Strategy: ColonLine, Pattern: carrefourDate + `.*`, Window: labelWindow, Priority: 1},
	{Field: fieldTotalInclTax, Label: `(?i:Total Amount Incl\.?\s*VAT)`, Strategy: Inline, Pattern: `(?:AED)?[ \t]*` + carrefourAmount},
	{Field: fieldTotalInclTax, Label: `(?i:Total Amount Incl\.?\s*VAT)`, Strategy: Window, Pattern: `([\d,]+\.\d{2})`, Window: 200, Priority: 1},
	{Field: fieldTaxSummary, Label: `VAT %`, Strategy: Window, Pattern: taxSummaryLine, Window: 600},
	{Field: fieldTaxSummary, Strategy: Window, Pattern: taxSummaryLine, Priority: 1},
	{Field: fieldStoreName, Strategy: Window, Pattern: `(?i)(Marina Silverene|Ibn Batuta Mall|Khurais Road|City Cent(?:er|re) Deira|Mall of the Emirates)`},
	{Field: fieldStoreName, Label: `CARREFOUR`, Strategy: Inline, Pattern: `([A-Za-z][A-Za-z ]*?)[ \t]*(?:Po Box|TRN|$)`, Priority: 1},
	{Field: fieldPaymentMethod, Label: `Payment Type`, Strategy: Inline, Pattern: `([A-Za-z][A-Za-z ]*?)[ \t]*(?:Amount|$)`},
	{Field: fieldPromoSavings, Label: `(?i:Promo savings)`, Strategy: Window, Pattern: carrefourAmount, Window: 80},
	{Field: fieldProductSavings, Label: `(?i:Products? savings)`, Strategy: Window, Pattern: carrefourAmount, Window: 80},
	{Field: fieldTotalSavings, Label: `(?i:Total savings)`, Strategy: Window, Pattern: carrefourAmount, Window: 80},
}

const taxSummaryLine = `^[ \t]*(\d{1,2}(?:\.\d+)?)[ \t]*%?[ \t]+([\d,]+\.\d{2})[ \t]+([\d,]+\.\d{2})[ \t]*$`

var carrefourSetters = map[Field]Setter{
	fieldDocumentNumber: textSetter(func(r *Receipt) *string { return &r.DocumentNumber }),
	fieldOrderNumber:    textSetter(func(r *Receipt) *string { return &r.OrderNumber }),
	fieldDocumentDate:   dateSetter(parseDayMonthYear),
	fieldTotalInclTax:   amountSetter(func(r *Receipt) *decimal.NullDecimal { return &r.TotalInclTax }),
	fieldTaxSummary:     setTaxSummary,
	fieldStoreName:      titleSetter(func(r *Receipt) *string { return &r.StoreName }),
	fieldPaymentMethod:  textSetter(func(r *Receipt) *string { return &r.PaymentMethod }),
	fieldPromoSavings:   amountSetter(func(r *Receipt) *decimal.NullDecimal { return &r.Savings.Promo }),
	fieldProductSavings: amountSetter(func(r *Receipt) *decimal.NullDecimal { return &r.Savings.Products }),
	fieldTotalSavings:   amountSetter(func(r *Receipt) *decimal.NullDecimal { return &r.Savings.Total }),
}

// setTaxSummary reads a "rate excl tax" summary row such as "5 153.33 7.67".
func setTaxSummary(r *Receipt, groups []string) error {
	if len(groups) != 4 {
		return fmt.Errorf("expected 3 values, got %d", len(groups)-1)
	}
	values := make([]decimal.Decimal, 3)
	for i := range values {
		value, err := money.Parse(groups[i+1])
		if err != nil {
			return err
		}
		values[i] = value
	}
	r.TaxRate = decimal.NewNullDecimal(values[0])
	r.TotalExclTax = decimal.NewNullDecimal(values[1])
	r.TaxAmount = decimal.NewNullDecimal(values[2])
	return nil
}

var carrefourItems = ItemLayout{
	SkipMarkers: []string{
		"Majid Al Futtaim", "Tax Invoice", "Order No", "Invoice No",
		"CUSTOMER INFORMATION", "STORE INFORMATION", "Description",
		"Thank you for shopping", "Total Amount", "VAT %",
		"Payment Type", "Promo savings", "Products savings",
		"Total savings", "Your Savings", "Refund Note",
		"This sale was accepted", "Page ", "TRN ", "City Center",
		"Ordered", "Delivered", "Unit Price", "Substitution",
	},
	NotContinuation: []string{"Po Box", "Dubai", "UAE", "http", "Customer Care"},
}

// Carrefour parses layout-preserved text of Carrefour UAE PDF tax invoices.
type Carrefour struct {
	rules *RuleSet
}

// NewCarrefour builds the Carrefour parser.
func NewCarrefour() *Carrefour {
	return &Carrefour{
		rules: MustRuleSet(carrefourRules, carrefourSetters,
			fieldDocumentNumber, fieldDocumentDate, fieldTotalInclTax, fieldTaxSummary),
	}
}

func (*Carrefour) Vendor() string  { return CarrefourVendor }
func (*Carrefour) Version() string { return CarrefourVersion }

// Parse extracts a receipt. Tip receipts and refund notes come back with a
// skip reason and no items.
func (p *Carrefour) Parse(text string) *Receipt {
	r := newReceipt(CarrefourVendor, CarrefourVersion)
	r.DocType = Classify(text, carrefourDocTypes)
	r.TemplateHash, r.Anchors = Fingerprint(text, carrefourAnchors)
	if r.DocType != DocTaxInvoice {
		r.SkipReason = fmt.Sprintf("document type %q is not parsed", r.DocType)
		return r
	}

	p.rules.Apply(text, r)
	r.Currency = "AED"
	r.Items = ParseLineItems(text, carrefourItems, r)
	if len(r.Items) == 0 {
		r.AddError("no line items found")
	}
	return r
}
