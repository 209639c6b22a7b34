package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tally/internal/blobstore"
	"tally/internal/drift"
	"tally/internal/extract"
	"tally/internal/logging"
	"tally/internal/parser"
	"tally/internal/receipts"
	"tally/internal/reconcile"
	"tally/internal/services"
)

const (
	stageExtract   = "extract"
	stageParse     = "parse"
	stageDrift     = "drift"
	stageReconcile = "reconcile"
)

// Summary counts parse outcomes for one batch.
type Summary struct {
	Considered  int
	Succeeded   int
	NeedsReview int
	Skipped     int
	Failed      int
}

func (s *Summary) record(status receipts.Status) {
	switch status {
	case receipts.StatusSuccess:
		s.Succeeded++
	case receipts.StatusNeedsReview:
		s.NeedsReview++
	case receipts.StatusSkipped:
		s.Skipped++
	case receipts.StatusFailed:
		s.Failed++
	}
}

// Report is the drift and review backlog.
type Report struct {
	Documents []*receipts.Document
	Templates []*receipts.Template
}

// Processor parses pending documents.
type Processor struct {
	store      *receipts.Store
	blobs      blobstore.Store
	extractors *extract.Set
	parsers    *parser.Registry
	guard      *drift.Guard
	validator  *reconcile.Validator
	logger     *slog.Logger
}

// NewProcessor wires the parse stage.
func NewProcessor(store *receipts.Store, blobs blobstore.Store, extractors *extract.Set, parsers *parser.Registry, guard *drift.Guard, validator *reconcile.Validator, logger *slog.Logger) *Processor {
	return &Processor{
		store:      store,
		blobs:      blobs,
		extractors: extractors,
		parsers:    parsers,
		guard:      guard,
		validator:  validator,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
	}
}

// ProcessPending parses every pending document, oldest first.
func (p *Processor) ProcessPending(ctx context.Context) (Summary, error) {
	var summary Summary
	docs, err := p.store.ListByStatus(ctx, receipts.StatusPending)
	if err != nil {
		return summary, fmt.Errorf("list pending documents: %w", err)
	}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Considered++
		status, err := p.processOne(ctx, doc)
		if err != nil {
			if isPerDocument(err) {
				p.logger.Warn("document changed during parse",
					logging.DocumentID(doc.ID),
					logging.String(logging.FieldEventType, "parse_conflict"),
					logging.String(logging.FieldErrorHint, "another run moved the document; check tally show"),
					logging.Error(err),
				)
				continue
			}
			return summary, err
		}
		summary.record(status)
	}
	p.logger.Info("parse batch complete",
		logging.Int("considered", summary.Considered),
		logging.Int("success", summary.Succeeded),
		logging.Int("needs_review", summary.NeedsReview),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed", summary.Failed),
		logging.String(logging.FieldEventType, "parse_summary"),
	)
	return summary, nil
}

// Reparse returns document id to pending and parses it again. Settled
// documents (skipped, failed, success) require force.
func (p *Processor) Reparse(ctx context.Context, id int64, force bool) (*receipts.Document, error) {
	if err := p.store.Requeue(ctx, id, force); err != nil {
		return nil, err
	}
	doc, err := p.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := p.processOne(ctx, doc); err != nil {
		return nil, err
	}
	return p.store.GetDocument(ctx, id)
}

// DriftReport lists documents held for review and templates awaiting approval.
func (p *Processor) DriftReport(ctx context.Context) (Report, error) {
	docs, err := p.store.ListByStatus(ctx, receipts.StatusNeedsReview)
	if err != nil {
		return Report{}, fmt.Errorf("list review documents: %w", err)
	}
	templates, err := p.guard.Pending(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list pending templates: %w", err)
	}
	return Report{Documents: docs, Templates: templates}, nil
}

// processOne moves doc out of pending and returns the stored status. The
// returned error is a store failure, never a document problem.
func (p *Processor) processOne(ctx context.Context, doc *receipts.Document) (receipts.Status, error) {
	ctx = services.WithDocumentID(ctx, doc.ID)

	text, err := p.extractText(services.WithStage(ctx, stageExtract), doc)
	if err != nil {
		return p.fail(ctx, doc, receipts.ParseOutcome{}, err)
	}

	parseCtx := services.WithStage(ctx, stageParse)
	prs, err := p.parsers.Lookup(doc.Vendor)
	if err != nil {
		return p.fail(parseCtx, doc, receipts.ParseOutcome{},
			services.Wrap(services.ErrConfiguration, stageParse, "lookup parser", "", err))
	}
	receipt := prs.Parse(text)
	if dater, ok := prs.(parser.MessageDater); ok {
		dater.ApplyMessageDate(receipt, doc.ReceivedAt)
	}
	outcome, err := auditOutcome(receipt)
	if err != nil {
		return p.fail(parseCtx, doc, receipts.ParseOutcome{}, err)
	}

	if receipt.Skipped() {
		outcome.Message = receipt.SkipReason
		if err := p.store.MarkSkipped(ctx, doc.ID, outcome); err != nil {
			return "", err
		}
		logging.WithContext(parseCtx, p.logger).Info("document skipped",
			logging.String("doc_type", receipt.DocType),
			logging.String("reason", receipt.SkipReason),
			logging.String(logging.FieldEventType, "document_skipped"),
		)
		return receipts.StatusSkipped, nil
	}

	if reconcile.Critical(receipt) {
		return p.fail(parseCtx, doc, outcome, services.Wrap(services.ErrCriticalExtraction, stageParse, "",
			"document number, date and total all missing", nil))
	}

	decision, err := p.guard.Check(services.WithStage(ctx, stageDrift), doc, receipt)
	if err != nil {
		return "", err
	}
	result := p.validator.Validate(receipt)

	if !decision.Allowed || !result.OK() {
		holdErr := reviewError(decision, result)
		outcome.Message = services.Message(holdErr)
		if err := p.store.MarkNeedsReview(ctx, doc.ID, outcome); err != nil {
			return "", err
		}
		logging.WarnWithContext(logging.WithContext(services.WithStage(ctx, stageReconcile), p.logger),
			"document held for review", "document_needs_review",
			logging.String(logging.FieldVendor, doc.Vendor),
			logging.Bool("template_allowed", decision.Allowed),
			logging.Int("reconcile_issues", len(result.Issues)),
			logging.String("reason", outcome.Message),
			logging.String(logging.FieldImpact, "receipt not posted until reviewed"),
			logging.String(logging.FieldErrorHint, reviewHint(decision)),
		)
		return receipts.StatusNeedsReview, nil
	}

	if err := p.store.Accept(ctx, doc.ID, acceptance(receipt, outcome)); err != nil {
		return "", err
	}
	logging.WithContext(parseCtx, p.logger).Info("receipt accepted",
		logging.String(logging.FieldVendor, doc.Vendor),
		logging.String("document_number", receipt.DocumentNumber),
		logging.Int("line_items", len(receipt.Items)),
		logging.String("skipped_checks", strings.Join(result.Skipped, ",")),
		logging.String(logging.FieldEventType, "receipt_accepted"),
	)
	return receipts.StatusSuccess, nil
}

func (p *Processor) extractText(ctx context.Context, doc *receipts.Document) (string, error) {
	data, err := p.blobs.Get(ctx, doc.StoragePath)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return "", services.Wrap(services.ErrNotFound, stageExtract, "load document",
				"stored bytes missing at "+p.blobs.Location(doc.StoragePath), nil)
		}
		return "", services.Wrap(services.ErrTransient, stageExtract, "load document", "", err)
	}
	extractor, err := p.extractors.ByMediaType(doc.MediaType)
	if err != nil {
		return "", err
	}
	text, err := extractor.Extract(ctx, data)
	if err != nil {
		return "", err
	}
	if err := p.store.UpsertText(ctx, doc.ID, text, extractor.Method()); err != nil {
		return "", services.Wrap(services.ErrTransient, stageExtract, "store text", "", err)
	}
	return text, nil
}

// fail records stageErr under the status its marker maps to.
func (p *Processor) fail(ctx context.Context, doc *receipts.Document, outcome receipts.ParseOutcome, stageErr error) (receipts.Status, error) {
	status := services.FailureStatus(stageErr)
	outcome.Message = services.Message(stageErr)

	var err error
	switch status {
	case receipts.StatusSkipped:
		err = p.store.MarkSkipped(ctx, doc.ID, outcome)
	case receipts.StatusNeedsReview:
		err = p.store.MarkNeedsReview(ctx, doc.ID, outcome)
	default:
		status = receipts.StatusFailed
		err = p.store.MarkFailed(ctx, doc.ID, outcome)
	}
	if err != nil {
		return "", err
	}

	logger := logging.WithContext(ctx, p.logger)
	if status == receipts.StatusSkipped {
		logger.Info("document skipped",
			logging.String("reason", outcome.Message),
			logging.String(logging.FieldEventType, "document_skipped"),
		)
		return status, nil
	}
	logging.ErrorWithContext(logger, "document failed", "document_failed",
		logging.String(logging.FieldVendor, doc.Vendor),
		logging.String("resolved_status", string(status)),
		logging.String(logging.FieldErrorHint, fmt.Sprintf("fix the cause, then tally reparse %d --force", doc.ID)),
		logging.Error(stageErr),
	)
	return status, nil
}

// isPerDocument reports store errors caused by the document's own state
// rather than an unavailable store.
func isPerDocument(err error) bool {
	var terr *receipts.TransitionError
	return errors.As(err, &terr) || errors.Is(err, receipts.ErrNotFound)
}

// reviewError tags a held document with the reason it cannot post: an
// unapproved layout takes precedence over a reconciliation mismatch.
func reviewError(decision drift.Decision, result reconcile.Result) error {
	marker := services.ErrReconciliation
	reasons := make([]string, 0, 2)
	if !decision.Allowed {
		marker = services.ErrUnapprovedTemplate
		reasons = append(reasons, decision.Reason)
	}
	if !result.OK() {
		reasons = append(reasons, result.Message())
	}
	return services.Wrap(marker, "", "", strings.Join(reasons, "; "), nil)
}

func reviewHint(decision drift.Decision) string {
	if !decision.Allowed && decision.Status != receipts.TemplateRejected && decision.Reason != "" {
		return "review the layout with tally report, then tally template approve"
	}
	return "correct the parser or document, then tally reparse"
}

func auditOutcome(r *parser.Receipt) (receipts.ParseOutcome, error) {
	data, err := r.JSON()
	if err != nil {
		return receipts.ParseOutcome{}, services.Wrap(services.ErrTransient, stageParse, "encode receipt", "", err)
	}
	return receipts.ParseOutcome{
		DocType:      r.DocType,
		TemplateHash: r.TemplateHash,
		ParseVersion: r.ParseVersion,
		ParsedJSON:   data,
	}, nil
}

func acceptance(r *parser.Receipt, outcome receipts.ParseOutcome) receipts.Acceptance {
	items := make([]receipts.LineItem, len(r.Items))
	for i, item := range r.Items {
		items[i] = receipts.LineItem{
			LineNumber:       i + 1,
			Barcode:          item.Barcode,
			Description:      item.Description,
			DescriptionClean: item.DescriptionClean,
			QtyOrdered:       item.QtyOrdered,
			QtyDelivered:     item.QtyDelivered,
			UnitPriceIncl:    item.UnitPriceIncl,
			UnitPriceExcl:    item.UnitPriceExcl,
			Subtotal:         item.Subtotal,
			TaxRate:          item.TaxRate,
			TaxAmount:        item.TaxAmount,
			Discount:         item.Discount,
			Total:            item.Total,
			IsFree:           item.IsFree,
			VoucherDiscount:  item.VoucherDiscount,
		}
	}
	return receipts.Acceptance{
		Header: receipts.Header{
			DocType:        r.DocType,
			DocumentNumber: r.DocumentNumber,
			OrderNumber:    r.OrderNumber,
			DocumentDate:   r.DocumentDate.Time,
			StoreName:      r.StoreName,
			Currency:       r.Currency,
			Subtotal:       r.TotalExclTax,
			TaxRate:        r.TaxRate,
			TaxAmount:      r.TaxAmount,
			Total:          r.TotalInclTax,
			PaymentMethod:  r.PaymentMethod,
		},
		TemplateHash: outcome.TemplateHash,
		ParseVersion: outcome.ParseVersion,
		ParsedJSON:   outcome.ParsedJSON,
		Items:        items,
	}
}
