package testsupport

import "fmt"

// CarrefourInvoice renders layout-preserved text of a balanced Carrefour tax
// invoice totalling AED 12.54 with three items, one of them free.
func CarrefourInvoice(invoiceNo string) string {
	return fmt.Sprintf(`                              Tax Invoice
Majid Al Futtaim Hypermarkets LLC                 TRN 100000000000003
CARREFOUR MARINA SILVERENE
Po Box 2000 Dubai UAE
Order No.
Invoice No.
: 784030013456096
: %s
Invoice Date : 21-Jan-2026
CUSTOMER INFORMATION                      STORE INFORMATION
Description                 Ordered Delivered Unit Price  Unit Price  Total   VAT  VAT    Disc  Total
Almarai Low Fat Fresh Milk, 1L   1.0   1.0   5.19   4.94   4.94   5   0.25   0.00   5.19
حليب المراعي قليل الدسم
Barcode: 6281007040419
Bananas Chiquita                 1.0   1.0   7.35   7.00   7.00   5   0.35   0.00   7.35
Ecuador, per kg
موز شيكيتا
Voucher Discount: 1.00 AED
6294001819017
Shopping Bag (Free)              1.0   1.0   0.00   0.00   0.00   5   0.00   0.00   0.00
Barcode: 6294015600012
Total Amount Incl. VAT AED 12.54
VAT %%        Amount excl VAT        VAT Amount
5             11.94                  0.60
Payment Type : Apple Pay
Promo savings AED 1.00
Products savings AED 0.54
Total savings AED 1.54
Thank you for shopping with us
`, invoiceNo)
}

// CarrefourTipsReceipt renders a driver tip receipt, which is never parsed.
func CarrefourTipsReceipt() string {
	return `Tips Receipt
Thank you for tipping your driver
Order No. 784030013456096
Amount AED 5.00
`
}

// CareemOrder renders a Careem Quik order email body totalling AED 13.50.
// Items sum to the basket total and the signed fees bridge to the bill.
func CareemOrder(orderID string) string {
	return fmt.Sprintf(`<html><body>
<table>
<tr><td><span style="color: #18AB33; font-weight: bold">2 ×</span> Al Ain Water 1.5L</td><td><s>AED 6.00</s> AED 5.00</td></tr>
<tr><td><span style="color:#18AB33">1 &times;</span> Lay&#39;s Salted Chips</td><td>AED 7.50</td></tr>
</table>
<p>Original basket</p><p>AED 13.50</p>
<p>Discount</p><p>-AED 1.00</p>
<p>Basket total</p><p>AED 12.50</p>
<p>Delivery fee</p><p>AED 6.50</p>
<p>Free delivery</p><p>-AED 6.50</p>
<p>Service fee</p><p>AED 1.00</p>
<p>5%% VAT</p><p>AED 0.65</p>
<p>Your total bill: AED 13.50</p>
<p>Order ID: %s</p>
<p>Paid with Apple Pay</p>
<p>You have saved AED 7.50</p>
</body></html>
`, orderID)
}
