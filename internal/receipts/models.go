package receipts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle of a stored document.
type Status string

const (
	StatusPending     Status = "pending"
	StatusSkipped     Status = "skipped"
	StatusFailed      Status = "failed"
	StatusNeedsReview Status = "needs_review"
	StatusSuccess     Status = "success"
)

var allStatuses = []Status{
	StatusPending,
	StatusSkipped,
	StatusFailed,
	StatusNeedsReview,
	StatusSuccess,
}

// AllStatuses returns every document status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string into a Status if recognized.
func ParseStatus(value string) (Status, bool) {
	for _, status := range allStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// TemplateStatus represents the review state of a document layout.
type TemplateStatus string

const (
	TemplateNeedsReview TemplateStatus = "needs_review"
	TemplateApproved    TemplateStatus = "approved"
	TemplateRejected    TemplateStatus = "rejected"
)

// Header holds the accepted document-level fields of a parsed receipt.
type Header struct {
	DocType        string
	DocumentNumber string
	OrderNumber    string
	DocumentDate   time.Time
	StoreName      string
	Currency       string
	Subtotal       decimal.NullDecimal
	TaxRate        decimal.NullDecimal
	TaxAmount      decimal.NullDecimal
	Total          decimal.NullDecimal
	PaymentMethod  string
}

// Document is one immutable collected file plus its processing state.
type Document struct {
	ID            int64
	ContentDigest string
	StoragePath   string
	Filename      string
	MediaType     string
	SizeBytes     int64
	PageCount     int
	MessageID     string
	ThreadID      string
	SourceLabel   string
	EmailFrom     string
	EmailSubject  string
	ReceivedAt    time.Time
	Vendor        string
	Status        Status
	ErrorMessage  string
	Header        Header
	TemplateHash  string
	ParseVersion  string
	ParsedJSON    string
	ParsedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewDocument describes a freshly collected file.
type NewDocument struct {
	ContentDigest string
	StoragePath   string
	Filename      string
	MediaType     string
	SizeBytes     int64
	PageCount     int
	MessageID     string
	ThreadID      string
	SourceLabel   string
	EmailFrom     string
	EmailSubject  string
	ReceivedAt    time.Time
	Vendor        string
}

// LineItem is one accepted purchase line.
type LineItem struct {
	LineNumber       int
	Barcode          string
	Description      string
	DescriptionClean string
	QtyOrdered       decimal.Decimal
	QtyDelivered     decimal.Decimal
	UnitPriceIncl    decimal.Decimal
	UnitPriceExcl    decimal.Decimal
	Subtotal         decimal.Decimal
	TaxRate          decimal.Decimal
	TaxAmount        decimal.Decimal
	Discount         decimal.Decimal
	Total            decimal.Decimal
	IsFree           bool
	VoucherDiscount  decimal.NullDecimal
}

// ParseOutcome carries the audit data recorded with every terminal parse status.
type ParseOutcome struct {
	DocType      string
	TemplateHash string
	ParseVersion string
	ParsedJSON   string
	Message      string
}

// Acceptance is a parse that passed drift and reconciliation checks.
type Acceptance struct {
	Header       Header
	TemplateHash string
	ParseVersion string
	ParsedJSON   string
	Items        []LineItem
}

// Template is a vendor layout identified by its structural fingerprint.
type Template struct {
	ID               int64
	Vendor           string
	Hash             string
	Status           TemplateStatus
	ParseVersion     string
	SampleDocumentID int64
	Notes            string
	FirstSeenAt      time.Time
	ReviewedAt       *time.Time
	DocumentCount    int
}

// Link records which ledger transaction a document has been matched to.
type Link struct {
	ID            int64
	DocumentID    int64
	TransactionID string
	MatchType     string
	Confidence    float64
	CreatedAt     time.Time
}

// Totals summarizes the stored corpus.
type Totals struct {
	Documents int
	Bytes     int64
	Linked    int
}
