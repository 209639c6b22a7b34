package receipts

import (
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/money"
)

const dateLayout = "2006-01-02"

const documentColumns = "id, content_digest, storage_path, filename, media_type, size_bytes, page_count, message_id, thread_id, source_label, email_from, email_subject, received_at, vendor, status, error_message, doc_type, document_number, order_number, document_date, store_name, currency, subtotal, tax_rate, tax_amount, total, payment_method, template_hash, parse_version, parsed_json, parsed_at, created_at, updated_at"

const lineItemColumns = "line_number, barcode, description, description_clean, qty_ordered, qty_delivered, unit_price_incl, unit_price_excl, subtotal, tax_rate, tax_amount, discount, total, is_free, voucher_discount"

const templateColumns = "t.id, t.vendor, t.template_hash, t.status, t.parse_version, t.sample_document_id, t.notes, t.first_seen_at, t.reviewed_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanDocument(scanner rowScanner) (*Document, error) {
	var (
		doc            Document
		filename       sql.NullString
		messageID      sql.NullString
		threadID       sql.NullString
		sourceLabel    sql.NullString
		emailFrom      sql.NullString
		emailSubject   sql.NullString
		receivedRaw    sql.NullString
		statusStr      string
		errorMessage   sql.NullString
		docType        sql.NullString
		documentNumber sql.NullString
		orderNumber    sql.NullString
		documentDate   sql.NullString
		storeName      sql.NullString
		currency       sql.NullString
		subtotal       sql.NullString
		taxRate        sql.NullString
		taxAmount      sql.NullString
		total          sql.NullString
		paymentMethod  sql.NullString
		templateHash   sql.NullString
		parseVersion   sql.NullString
		parsedJSON     sql.NullString
		parsedRaw      sql.NullString
		createdRaw     string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&doc.ID,
		&doc.ContentDigest,
		&doc.StoragePath,
		&filename,
		&doc.MediaType,
		&doc.SizeBytes,
		&doc.PageCount,
		&messageID,
		&threadID,
		&sourceLabel,
		&emailFrom,
		&emailSubject,
		&receivedRaw,
		&doc.Vendor,
		&statusStr,
		&errorMessage,
		&docType,
		&documentNumber,
		&orderNumber,
		&documentDate,
		&storeName,
		&currency,
		&subtotal,
		&taxRate,
		&taxAmount,
		&total,
		&paymentMethod,
		&templateHash,
		&parseVersion,
		&parsedJSON,
		&parsedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	doc.Filename = filename.String
	doc.MessageID = messageID.String
	doc.ThreadID = threadID.String
	doc.SourceLabel = sourceLabel.String
	doc.EmailFrom = emailFrom.String
	doc.EmailSubject = emailSubject.String
	doc.Status = Status(statusStr)
	doc.ErrorMessage = errorMessage.String
	doc.TemplateHash = templateHash.String
	doc.ParseVersion = parseVersion.String
	doc.ParsedJSON = parsedJSON.String
	doc.Header = Header{
		DocType:        docType.String,
		DocumentNumber: documentNumber.String,
		OrderNumber:    orderNumber.String,
		StoreName:      storeName.String,
		Currency:       currency.String,
		PaymentMethod:  paymentMethod.String,
	}

	var err error
	if doc.Header.Subtotal, err = money.ParseNull(subtotal.String); err != nil {
		return nil, err
	}
	if doc.Header.TaxRate, err = money.ParseNull(taxRate.String); err != nil {
		return nil, err
	}
	if doc.Header.TaxAmount, err = money.ParseNull(taxAmount.String); err != nil {
		return nil, err
	}
	if doc.Header.Total, err = money.ParseNull(total.String); err != nil {
		return nil, err
	}
	if documentDate.Valid {
		if date, err := time.Parse(dateLayout, documentDate.String); err == nil {
			doc.Header.DocumentDate = date
		}
	}
	if received, err := parseTimeString(receivedRaw.String); err == nil {
		doc.ReceivedAt = received
	}
	if parsedRaw.Valid {
		if parsed, err := parseTimeString(parsedRaw.String); err == nil {
			doc.ParsedAt = &parsed
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		doc.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		doc.UpdatedAt = updated
	}
	return &doc, nil
}

func scanLineItem(scanner rowScanner) (LineItem, error) {
	var (
		item             LineItem
		barcode          sql.NullString
		descriptionClean sql.NullString
		qtyOrdered       sql.NullString
		qtyDelivered     sql.NullString
		unitIncl         sql.NullString
		unitExcl         sql.NullString
		subtotal         sql.NullString
		taxRate          sql.NullString
		taxAmount        sql.NullString
		discount         sql.NullString
		total            string
		isFree           int
		voucher          sql.NullString
	)
	if err := scanner.Scan(
		&item.LineNumber,
		&barcode,
		&item.Description,
		&descriptionClean,
		&qtyOrdered,
		&qtyDelivered,
		&unitIncl,
		&unitExcl,
		&subtotal,
		&taxRate,
		&taxAmount,
		&discount,
		&total,
		&isFree,
		&voucher,
	); err != nil {
		return LineItem{}, err
	}
	item.Barcode = barcode.String
	item.DescriptionClean = descriptionClean.String
	item.IsFree = isFree != 0
	item.QtyOrdered = decimalOrZero(qtyOrdered.String)
	item.QtyDelivered = decimalOrZero(qtyDelivered.String)
	item.UnitPriceIncl = decimalOrZero(unitIncl.String)
	item.UnitPriceExcl = decimalOrZero(unitExcl.String)
	item.Subtotal = decimalOrZero(subtotal.String)
	item.TaxRate = decimalOrZero(taxRate.String)
	item.TaxAmount = decimalOrZero(taxAmount.String)
	item.Discount = decimalOrZero(discount.String)
	item.Total = decimalOrZero(total)
	voucherValue, err := money.ParseNull(voucher.String)
	if err != nil {
		return LineItem{}, err
	}
	item.VoucherDiscount = voucherValue
	return item, nil
}

func scanTemplate(scanner rowScanner, withCount bool) (*Template, error) {
	var (
		tpl          Template
		statusStr    string
		parseVersion sql.NullString
		sampleID     sql.NullInt64
		notes        sql.NullString
		firstSeenRaw string
		reviewedRaw  sql.NullString
	)
	dest := []any{&tpl.ID, &tpl.Vendor, &tpl.Hash, &statusStr, &parseVersion, &sampleID, &notes, &firstSeenRaw, &reviewedRaw}
	if withCount {
		dest = append(dest, &tpl.DocumentCount)
	}
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}
	tpl.Status = TemplateStatus(statusStr)
	tpl.ParseVersion = parseVersion.String
	tpl.SampleDocumentID = sampleID.Int64
	tpl.Notes = notes.String
	if seen, err := parseTimeString(firstSeenRaw); err == nil {
		tpl.FirstSeenAt = seen
	}
	if reviewedRaw.Valid {
		if reviewed, err := parseTimeString(reviewedRaw.String); err == nil {
			tpl.ReviewedAt = &reviewed
		}
	}
	return &tpl, nil
}

func decimalOrZero(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return value
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableDecimal(value decimal.NullDecimal) any {
	if !value.Valid {
		return nil
	}
	return money.Format(value.Decimal)
}

func nullableDate(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.Format(dateLayout)
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableInt64(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	return args
}
