package parser

import (
	"errors"
	"fmt"
	"html"
	"io"
	"mime/quotedprintable"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/money"
)

// Careem Quik vendor identity.
const (
	CareemVendor  = "careem_quik"
	CareemVersion = "careem_v1"
)

const (
	fieldBasketTotal    Field = "basket_total"
	fieldTaxAmount      Field = "tax_amount"
	fieldDiscount       Field = "discount"
	fieldMembership     Field = "membership_discount"
	fieldAdvertised     Field = "advertised_savings"
	fieldDeliveryFee    Field = "delivery_fee"
	fieldDeliveryCharge Field = "delivery_charge"
	fieldSmallOrderFee  Field = "small_order_fee"
	fieldServiceFee     Field = "service_fee"
	fieldCaptainReward  Field = "captain_reward"
	fieldFreeDelivery   Field = "free_delivery"
)

const (
	careemAmount    = `AED\s*([\d,]+(?:\.\d+)?)`
	careemCredit    = `-\s*AED\s*([\d,]+(?:\.\d+)?)`
	careemWindow    = 3000
	careemItemRange = 1500
	// basketTolerance bounds item prices against the printed basket total.
	basketTolerance = 1.0
)

var careemDocTypes = []DocTypeRule{
	{DocType: DocOrderReceipt, Keywords: []string{"your total bill"}},
	{DocType: DocRefundNote, Keywords: []string{"your refund", "has been refunded"}},
}

var careemAnchors = []Anchor{
	NewAnchor("item_badge", `(?i)color:\s*#18AB33`),
	NewAnchor("order_id", `Order ID`),
	NewAnchor("basket_total", `(?i)Basket total`),
	NewAnchor("vat", `(?i)\d+%\s*VAT`),
	NewAnchor("total_bill", `(?i)Your total bill`),
}

var careemRules = []Rule{
	{Field: fieldDocumentNumber, Label: `Order ID`, Strategy: Inline, Pattern: `#?(\d+)`},
	{Field: fieldDocumentNumber, Label: `Order ID`, Strategy: Window, Pattern: `>\s*#?(\d{5,})\s*<`, Window: 500, Priority: 1},
	{Field: fieldTotalInclTax, Label: `(?i:Your total bill)`, Strategy: Inline, Pattern: careemAmount},
	{Field: fieldTotalInclTax, Label: `(?i:Your total bill)`, Strategy: Window, Pattern: careemAmount, Window: careemWindow, Priority: 1},
	{Field: fieldBasketTotal, Label: `(?i:Basket total)`, Strategy: Window, Pattern: careemAmount, Window: careemWindow},
	{Field: fieldBasketTotal, Label: `(?i:Subtotal after discount)`, Strategy: Window, Pattern: careemAmount, Window: careemWindow, Priority: 1},
	{Field: fieldTaxAmount, Label: `(?i:5%\s*VAT)`, Strategy: Window, Pattern: careemAmount, Window: careemWindow},
	{Field: fieldDiscount, Label: `(?:>|\n)\s*Discount\b`, Strategy: Window, Pattern: careemCredit, Window: careemItemRange},
	{Field: fieldMembership, Label: `(?i:Careem Plus Discount)`, Strategy: Window, Pattern: careemCredit, Window: careemWindow},
	{Field: fieldMembership, Label: `(?i:Promo)`, Strategy: Window, Pattern: careemCredit, Window: careemWindow, Priority: 1},
	{Field: fieldAdvertised, Label: `(?i:You have saved)`, Strategy: Window, Pattern: careemAmount, Window: 500},
	{Field: fieldDeliveryCharge, Label: `(?i:Delivery charge)`, Strategy: Window, Pattern: careemAmount, Window: careemWindow},
	{Field: fieldDeliveryFee, Label: `(?i:Delivery fee)`, Strategy: Window, Pattern: careemAmount, Window: careemWindow},
	{Field: fieldSmallOrderFee, Label: `(?i:Small order fee)`, Strategy: Window, Pattern: careemAmount, Window: careemWindow},
	{Field: fieldServiceFee, Label: `(?i:Service fee)`, Strategy: Window, Pattern: careemAmount, Window: careemWindow},
	{Field: fieldCaptainReward, Label: `(?i:Captain reward)`, Strategy: Window, Pattern: careemAmount, Window: careemWindow},
	{Field: fieldFreeDelivery, Label: `(?i:Free delivery)`, Strategy: Window, Pattern: careemCredit, Window: careemWindow},
}

var careemSetters = map[Field]Setter{
	fieldDocumentNumber: textSetter(func(r *Receipt) *string { return &r.DocumentNumber }),
	fieldTotalInclTax:   amountSetter(func(r *Receipt) *decimal.NullDecimal { return &r.TotalInclTax }),
	fieldBasketTotal:    amountSetter(func(r *Receipt) *decimal.NullDecimal { return &r.BasketTotal }),
	fieldTaxAmount: func(r *Receipt, groups []string) error {
		value, err := money.Parse(lastGroup(groups))
		if err != nil {
			return err
		}
		r.TaxAmount = decimal.NewNullDecimal(value)
		r.TaxRate = decimal.NewNullDecimal(decimal.NewFromInt(5))
		return nil
	},
	fieldDiscount:       amountSetter(func(r *Receipt) *decimal.NullDecimal { return &r.Savings.Discount }),
	fieldMembership:     membershipSetter,
	fieldAdvertised:     amountSetter(func(r *Receipt) *decimal.NullDecimal { return &r.Savings.Advertised }),
	fieldDeliveryCharge: feeSetter("Delivery charge", false),
	fieldDeliveryFee:    feeSetter("Delivery fee", false),
	fieldSmallOrderFee:  feeSetter("Small order fee", false),
	fieldServiceFee:     feeSetter("Service fee", false),
	fieldCaptainReward:  feeSetter("Captain reward", false),
	fieldFreeDelivery:   feeSetter("Free delivery", true),
}

// membershipSetter records an order-level credit both as a saving and as a
// negative fee line, so items plus fees still reach the bill.
func membershipSetter(r *Receipt, groups []string) error {
	value, err := money.Parse(lastGroup(groups))
	if err != nil {
		return err
	}
	r.Savings.Membership = decimal.NewNullDecimal(value)
	r.Fees = append(r.Fees, Fee{Label: "Membership discount", Amount: value.Neg()})
	return nil
}

var (
	careemItemPattern  = regexp.MustCompile(`(?is)<span[^>]*color:\s*#18AB33[^>]*>(\d+)\s*(?:×|&times;|x)\s*</span>\s*([^<]+)`)
	struckPricePattern = regexp.MustCompile(`(?i)<s>\s*AED\s*([\d,]+(?:\.\d+)?)\s*</s>`)
	pricePattern       = regexp.MustCompile(`AED\s*([\d,]+(?:\.\d+)?)`)
	softBreakPattern   = regexp.MustCompile(`=\r?\n`)
	paymentMethods     = []string{"Apple Pay", "Google Pay", "Visa", "Mastercard", "Cash", "Card"}
	gulfTime           = time.FixedZone("GST", 4*60*60)

	errPriceMissing = errors.New("price not found")
)

// Careem parses Careem Quik order confirmation emails (HTML bodies).
// Delivery and service charges become signed fee lines so that items plus
// fees add up to the bill total.
type Careem struct {
	rules *RuleSet
}

// NewCareem builds the Careem parser.
func NewCareem() *Careem {
	return &Careem{
		rules: MustRuleSet(careemRules, careemSetters, fieldDocumentNumber, fieldTotalInclTax),
	}
}

func (*Careem) Vendor() string  { return CareemVendor }
func (*Careem) Version() string { return CareemVersion }

// Parse extracts an order receipt from the HTML body.
func (p *Careem) Parse(text string) *Receipt {
	r := newReceipt(CareemVendor, CareemVersion)
	body := decodeQuotedPrintable(text)
	r.DocType = Classify(body, careemDocTypes)
	r.TemplateHash, r.Anchors = Fingerprint(body, careemAnchors)
	if r.DocType != DocOrderReceipt {
		r.SkipReason = fmt.Sprintf("document type %q is not parsed", r.DocType)
		return r
	}

	p.rules.Apply(body, r)
	r.Currency = "AED"
	r.PaymentMethod = firstPaymentMethod(body)
	r.Items = careemItems(body, r)
	r.Savings.Total = sumNull(r.Savings.Discount, r.Savings.Membership)

	if len(r.Items) == 0 {
		r.AddError("no line items found")
	} else if r.BasketTotal.Valid {
		itemsSum := decimal.Zero
		for _, item := range r.Items {
			itemsSum = itemsSum.Add(item.Total)
		}
		if !money.Within(itemsSum, r.BasketTotal.Decimal, decimal.NewFromFloat(basketTolerance)) {
			r.AddError("line items sum %s does not match basket total %s",
				money.Format(itemsSum), money.Format(r.BasketTotal.Decimal))
		}
	}
	return r
}

// ApplyMessageDate dates the order by the email's arrival, in Gulf time,
// because the body does not print an order date.
func (*Careem) ApplyMessageDate(r *Receipt, received time.Time) {
	if r == nil || !r.DocumentDate.IsZero() || received.IsZero() {
		return
	}
	r.DocumentDate = NewDate(received.In(gulfTime))
}

func decodeQuotedPrintable(text string) string {
	if !strings.Contains(text, "=3D") && !softBreakPattern.MatchString(text) {
		return text
	}
	decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(text)))
	if err != nil {
		return strings.ReplaceAll(softBreakPattern.ReplaceAllString(text, ""), "=3D", "=")
	}
	return string(decoded)
}

func careemItems(body string, r *Receipt) []LineItem {
	matches := careemItemPattern.FindAllStringSubmatchIndex(body, -1)
	items := make([]LineItem, 0, len(matches))
	for i, m := range matches {
		qtyRaw := body[m[2]:m[3]]
		name := strings.Join(strings.Fields(html.UnescapeString(body[m[4]:m[5]])), " ")
		qty, err := strconv.Atoi(qtyRaw)
		if err != nil || qty <= 0 {
			r.AddError("item %q: invalid quantity %q", name, qtyRaw)
			continue
		}

		end := m[1] + careemItemRange
		if i+1 < len(matches) && matches[i+1][0] < end {
			end = matches[i+1][0]
		}
		if end > len(body) {
			end = len(body)
		}
		region := body[m[1]:end]

		item, err := careemPrice(region, qty)
		if err != nil {
			r.AddError("item %q: %v", name, err)
			continue
		}
		item.Description = name
		item.DescriptionClean = CleanDescription(name)
		items = append(items, item)
	}
	return items
}

func careemPrice(region string, qty int) (LineItem, error) {
	var (
		price    decimal.Decimal
		original decimal.NullDecimal
		err      error
	)
	if struck := struckPricePattern.FindStringSubmatchIndex(region); struck != nil {
		value, perr := money.Parse(region[struck[2]:struck[3]])
		if perr != nil {
			return LineItem{}, perr
		}
		original = decimal.NewNullDecimal(value)
		sale := pricePattern.FindStringSubmatch(region[struck[1]:])
		if sale == nil {
			return LineItem{}, errPriceMissing
		}
		price, err = money.Parse(sale[1])
	} else {
		m := pricePattern.FindStringSubmatch(region)
		if m == nil {
			return LineItem{}, errPriceMissing
		}
		price, err = money.Parse(m[1])
	}
	if err != nil {
		return LineItem{}, err
	}

	quantity := decimal.NewFromInt(int64(qty))
	item := LineItem{
		QtyOrdered:    quantity,
		QtyDelivered:  quantity,
		UnitPriceIncl: price.Div(quantity).Round(2),
		Total:         price,
		IsFree:        price.IsZero(),
	}
	if original.Valid && !original.Decimal.Equal(price) {
		item.Discount = original.Decimal.Sub(price)
	}
	return item, nil
}

func firstPaymentMethod(body string) string {
	for _, method := range paymentMethods {
		if strings.Contains(body, method) {
			return method
		}
	}
	return ""
}

func sumNull(values ...decimal.NullDecimal) decimal.NullDecimal {
	var (
		sum   decimal.Decimal
		valid bool
	)
	for _, v := range values {
		if v.Valid {
			sum = sum.Add(v.Decimal)
			valid = true
		}
	}
	if !valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(sum)
}
