package main

import (
	"strconv"
	"time"

	"tally/internal/drift"
	"tally/internal/money"
	"tally/internal/receipts"
)

const dateLayout = "2006-01-02"

type documentView struct {
	ID             int64          `json:"id"`
	Vendor         string         `json:"vendor"`
	Status         string         `json:"status"`
	Message        string         `json:"message,omitempty"`
	Filename       string         `json:"filename"`
	MediaType      string         `json:"media_type"`
	SizeBytes      int64          `json:"size_bytes"`
	PageCount      int            `json:"page_count,omitempty"`
	ContentDigest  string         `json:"content_digest"`
	StoragePath    string         `json:"storage_path"`
	MessageID      string         `json:"message_id"`
	SourceLabel    string         `json:"source_label,omitempty"`
	EmailFrom      string         `json:"email_from,omitempty"`
	EmailSubject   string         `json:"email_subject,omitempty"`
	ReceivedAt     *time.Time     `json:"received_at,omitempty"`
	DocType        string         `json:"doc_type,omitempty"`
	DocumentNumber string         `json:"document_number,omitempty"`
	OrderNumber    string         `json:"order_number,omitempty"`
	DocumentDate   string         `json:"document_date,omitempty"`
	StoreName      string         `json:"store_name,omitempty"`
	Currency       string         `json:"currency,omitempty"`
	Subtotal       string         `json:"subtotal,omitempty"`
	TaxAmount      string         `json:"tax_amount,omitempty"`
	Total          string         `json:"total,omitempty"`
	PaymentMethod  string         `json:"payment_method,omitempty"`
	TemplateHash   string         `json:"template_hash,omitempty"`
	ParseVersion   string         `json:"parse_version,omitempty"`
	LineItems      []lineItemView `json:"line_items,omitempty"`
	Link           *linkView      `json:"link,omitempty"`
}

type lineItemView struct {
	Line        int    `json:"line"`
	Description string `json:"description"`
	Barcode     string `json:"barcode,omitempty"`
	Quantity    string `json:"qty_ordered"`
	Delivered   string `json:"qty_delivered"`
	UnitPrice   string `json:"unit_price_incl_tax"`
	TaxAmount   string `json:"tax_amount"`
	Discount    string `json:"discount"`
	Total       string `json:"total"`
	Free        bool   `json:"is_free,omitempty"`
}

type linkView struct {
	TransactionID string  `json:"transaction_id"`
	MatchType     string  `json:"match_type"`
	Confidence    float64 `json:"confidence"`
}

type templateView struct {
	Vendor           string `json:"vendor"`
	Hash             string `json:"hash"`
	Status           string `json:"status"`
	ParseVersion     string `json:"parse_version,omitempty"`
	Documents        int    `json:"documents"`
	SampleDocumentID int64  `json:"sample_document_id,omitempty"`
	FirstSeen        string `json:"first_seen"`
	Reviewed         string `json:"reviewed,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

func newDocumentView(doc *receipts.Document) documentView {
	view := documentView{
		ID:             doc.ID,
		Vendor:         doc.Vendor,
		Status:         string(doc.Status),
		Message:        doc.ErrorMessage,
		Filename:       doc.Filename,
		MediaType:      doc.MediaType,
		SizeBytes:      doc.SizeBytes,
		PageCount:      doc.PageCount,
		ContentDigest:  doc.ContentDigest,
		StoragePath:    doc.StoragePath,
		MessageID:      doc.MessageID,
		SourceLabel:    doc.SourceLabel,
		EmailFrom:      doc.EmailFrom,
		EmailSubject:   doc.EmailSubject,
		DocType:        doc.Header.DocType,
		DocumentNumber: doc.Header.DocumentNumber,
		OrderNumber:    doc.Header.OrderNumber,
		StoreName:      doc.Header.StoreName,
		Currency:       doc.Header.Currency,
		Subtotal:       money.FormatNull(doc.Header.Subtotal),
		TaxAmount:      money.FormatNull(doc.Header.TaxAmount),
		Total:          money.FormatNull(doc.Header.Total),
		PaymentMethod:  doc.Header.PaymentMethod,
		TemplateHash:   doc.TemplateHash,
		ParseVersion:   doc.ParseVersion,
	}
	if !doc.ReceivedAt.IsZero() {
		received := doc.ReceivedAt.UTC()
		view.ReceivedAt = &received
	}
	if !doc.Header.DocumentDate.IsZero() {
		view.DocumentDate = doc.Header.DocumentDate.Format(dateLayout)
	}
	return view
}

func newLineItemViews(items []receipts.LineItem) []lineItemView {
	views := make([]lineItemView, len(items))
	for i, item := range items {
		views[i] = lineItemView{
			Line:        item.LineNumber,
			Description: displayDescription(item),
			Barcode:     item.Barcode,
			Quantity:    item.QtyOrdered.String(),
			Delivered:   item.QtyDelivered.String(),
			UnitPrice:   money.Format(item.UnitPriceIncl),
			TaxAmount:   money.Format(item.TaxAmount),
			Discount:    money.Format(item.Discount),
			Total:       money.Format(item.Total),
			Free:        item.IsFree,
		}
	}
	return views
}

func displayDescription(item receipts.LineItem) string {
	if item.DescriptionClean != "" {
		return item.DescriptionClean
	}
	return item.Description
}

func newTemplateView(tpl *receipts.Template) templateView {
	view := templateView{
		Vendor:           tpl.Vendor,
		Hash:             tpl.Hash,
		Status:           string(tpl.Status),
		ParseVersion:     tpl.ParseVersion,
		Documents:        tpl.DocumentCount,
		SampleDocumentID: tpl.SampleDocumentID,
		FirstSeen:        formatTime(tpl.FirstSeenAt),
		Notes:            tpl.Notes,
	}
	if tpl.ReviewedAt != nil {
		view.Reviewed = formatTime(*tpl.ReviewedAt)
	}
	return view
}

func templateRows(templates []*receipts.Template) [][]string {
	rows := make([][]string, 0, len(templates))
	for _, tpl := range templates {
		rows = append(rows, []string{
			tpl.Vendor,
			drift.ShortHash(tpl.Hash),
			string(tpl.Status),
			strconv.Itoa(tpl.DocumentCount),
			formatDocumentID(tpl.SampleDocumentID),
			formatTime(tpl.FirstSeenAt),
		})
	}
	return rows
}

var templateHeaders = []string{"Vendor", "Template", "Status", "Docs", "Sample", "First seen"}

var templateAligns = []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatDocumentID(id int64) string {
	if id == 0 {
		return ""
	}
	return "#" + strconv.FormatInt(id, 10)
}
