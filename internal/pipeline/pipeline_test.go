package pipeline_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"tally/internal/blobstore"
	"tally/internal/collector"
	"tally/internal/config"
	"tally/internal/drift"
	"tally/internal/extract"
	"tally/internal/linker"
	"tally/internal/logging"
	"tally/internal/parser"
	"tally/internal/pipeline"
	"tally/internal/receipts"
	"tally/internal/reconcile"
	"tally/internal/services"
	"tally/internal/source"
	"tally/internal/testsupport"
)

// passthrough treats stored bytes as already-extracted text.
type passthrough struct{}

func (passthrough) Method() string { return "passthrough" }

func (passthrough) Extract(_ context.Context, data []byte) (string, error) {
	return string(data), nil
}

type harness struct {
	cfg       *config.Config
	store     *receipts.Store
	blobs     *blobstore.Local
	guard     *drift.Guard
	processor *pipeline.Processor
}

func newHarness(t *testing.T) harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	blobs, err := blobstore.NewLocal(cfg.Paths.BlobDir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	guard := drift.New(store, logging.NewNop())
	processor := pipeline.NewProcessor(store, blobs, extract.NewSet(passthrough{}), parser.DefaultRegistry(),
		guard, reconcile.New(cfg.Reconcile), logging.NewNop())
	return harness{cfg: cfg, store: store, blobs: blobs, guard: guard, processor: processor}
}

// add stores text as a document's bytes and inserts it as pending.
func (h harness) add(t *testing.T, vendor, mediaType, text string) *receipts.Document {
	t.Helper()
	ctx := context.Background()
	digest := testsupport.Digest([]byte(text))
	key := blobstore.ContentKey(digest, "pdf")
	if _, err := h.blobs.Put(ctx, key, []byte(text)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	doc, err := h.store.InsertDocument(ctx, receipts.NewDocument{
		ContentDigest: digest,
		StoragePath:   key,
		Filename:      "invoice.pdf",
		MediaType:     mediaType,
		SizeBytes:     int64(len(text)),
		MessageID:     "msg-" + digest[:8],
		SourceLabel:   "Receipts/Test",
		ReceivedAt:    testsupport.ReceivedAt,
		Vendor:        vendor,
	})
	if err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	return doc
}

func (h harness) reload(t *testing.T, id int64) *receipts.Document {
	t.Helper()
	doc, err := h.store.GetDocument(context.Background(), id)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	return doc
}

func (h harness) approveAll(t *testing.T) []int64 {
	t.Helper()
	ctx := context.Background()
	pending, err := h.guard.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	var requeued []int64
	for _, tpl := range pending {
		_, ids, err := h.guard.Approve(ctx, tpl.Vendor, tpl.Hash, "")
		if err != nil {
			t.Fatalf("Approve: %v", err)
		}
		requeued = append(requeued, ids...)
	}
	return requeued
}

func unbalanced(invoiceNo string) string {
	return strings.Replace(testsupport.CarrefourInvoice(invoiceNo), "AED 12.54", "AED 13.54", 1)
}

func TestNewTemplateHoldsDocumentForReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.add(t, parser.CarrefourVendor, "application/pdf", testsupport.CarrefourInvoice("83707162"))

	summary, err := h.processor.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if summary.Considered != 1 || summary.NeedsReview != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	got := h.reload(t, doc.ID)
	if got.Status != receipts.StatusNeedsReview {
		t.Fatalf("status = %s", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "new template") {
		t.Fatalf("message = %q", got.ErrorMessage)
	}
	if got.ParsedJSON == "" || got.TemplateHash == "" {
		t.Fatal("blocked parse should keep its audit json and fingerprint")
	}
	if got.Header.DocumentNumber != "" {
		t.Fatalf("blocked parse wrote header fields: %+v", got.Header)
	}
	items, err := h.store.LineItems(ctx, doc.ID)
	if err != nil {
		t.Fatalf("LineItems: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("blocked parse wrote %d line items", len(items))
	}
	text, err := h.store.Text(ctx, doc.ID)
	if err != nil || !strings.Contains(text, "Tax Invoice") {
		t.Fatalf("extracted text not stored: %q %v", text, err)
	}

	report, err := h.processor.DriftReport(ctx)
	if err != nil {
		t.Fatalf("DriftReport: %v", err)
	}
	if len(report.Documents) != 1 || len(report.Templates) != 1 {
		t.Fatalf("report = %d documents, %d templates", len(report.Documents), len(report.Templates))
	}
}

func TestApprovalRequeuesAndValidatorsDecide(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	good := h.add(t, parser.CarrefourVendor, "application/pdf", testsupport.CarrefourInvoice("83707162"))
	bad := h.add(t, parser.CarrefourVendor, "application/pdf", unbalanced("83707163"))

	if _, err := h.processor.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	requeued := h.approveAll(t)
	if len(requeued) != 2 {
		t.Fatalf("requeued %v, want both documents", requeued)
	}
	for _, id := range []int64{good.ID, bad.ID} {
		if status := h.reload(t, id).Status; status != receipts.StatusPending {
			t.Fatalf("document %d status = %s after approval", id, status)
		}
	}

	summary, err := h.processor.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if summary.Succeeded != 1 || summary.NeedsReview != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	accepted := h.reload(t, good.ID)
	if accepted.Status != receipts.StatusSuccess {
		t.Fatalf("balanced invoice status = %s (%s)", accepted.Status, accepted.ErrorMessage)
	}
	if accepted.Header.DocumentNumber != "83707162" || accepted.Header.Total.Decimal.String() != "12.54" {
		t.Fatalf("header = %+v", accepted.Header)
	}
	items, err := h.store.LineItems(ctx, good.ID)
	if err != nil {
		t.Fatalf("LineItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 line items, got %d", len(items))
	}

	held := h.reload(t, bad.ID)
	if held.Status != receipts.StatusNeedsReview {
		t.Fatalf("unbalanced invoice status = %s", held.Status)
	}
	if !strings.Contains(held.ErrorMessage, "differs from total") || strings.Contains(held.ErrorMessage, "template") {
		t.Fatalf("message = %q", held.ErrorMessage)
	}
	if strings.HasPrefix(held.ErrorMessage, services.ErrReconciliation.Error()) {
		t.Fatalf("message keeps the marker: %q", held.ErrorMessage)
	}
}

func TestReviewMessageCarriesBothReasons(t *testing.T) {
	h := newHarness(t)
	doc := h.add(t, parser.CarrefourVendor, "application/pdf", unbalanced("83707162"))

	if _, err := h.processor.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	msg := h.reload(t, doc.ID).ErrorMessage
	if !strings.Contains(msg, "new template") || !strings.Contains(msg, "differs from total") {
		t.Fatalf("message = %q", msg)
	}
}

func TestProcessPendingFailureStatuses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tips := h.add(t, parser.CarrefourVendor, "application/pdf", testsupport.CarrefourTipsReceipt())
	image := h.add(t, parser.CarrefourVendor, "image/png", "not a receipt")
	unknown := h.add(t, "lulu", "application/pdf", testsupport.CarrefourInvoice("1"))
	critical := h.add(t, parser.CarrefourVendor, "application/pdf", "Tax Invoice\nnothing useful here\n")
	missing := h.add(t, parser.CarrefourVendor, "application/pdf", testsupport.CarrefourInvoice("2"))
	if err := removeBlob(h, missing); err != nil {
		t.Fatalf("remove blob: %v", err)
	}

	summary, err := h.processor.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if summary.Considered != 5 || summary.Skipped != 2 || summary.Failed != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	tests := []struct {
		name    string
		id      int64
		status  receipts.Status
		message string
	}{
		{"tips receipt", tips.ID, receipts.StatusSkipped, "tips_receipt"},
		{"unsupported media", image.ID, receipts.StatusSkipped, "no extractor"},
		{"unknown vendor", unknown.ID, receipts.StatusFailed, "no parser registered"},
		{"critical fields", critical.ID, receipts.StatusFailed, "all missing"},
		{"missing blob", missing.ID, receipts.StatusFailed, "stored bytes missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.reload(t, tt.id)
			if got.Status != tt.status {
				t.Fatalf("status = %s, want %s (%s)", got.Status, tt.status, got.ErrorMessage)
			}
			if !strings.Contains(got.ErrorMessage, tt.message) {
				t.Fatalf("message = %q, want it to mention %q", got.ErrorMessage, tt.message)
			}
		})
	}
}

func removeBlob(h harness, doc *receipts.Document) error {
	return os.Remove(h.blobs.Location(doc.StoragePath))
}

func TestReparseRequiresForceForSettledDocuments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.add(t, parser.CarrefourVendor, "application/pdf", testsupport.CarrefourInvoice("83707162"))

	if _, err := h.processor.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	// needs_review may be reparsed freely; the template is still unapproved.
	got, err := h.processor.Reparse(ctx, doc.ID, false)
	if err != nil {
		t.Fatalf("Reparse: %v", err)
	}
	if got.Status != receipts.StatusNeedsReview {
		t.Fatalf("status = %s", got.Status)
	}

	h.approveAll(t)
	if _, err := h.processor.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if status := h.reload(t, doc.ID).Status; status != receipts.StatusSuccess {
		t.Fatalf("status = %s", status)
	}

	var terr *receipts.TransitionError
	if _, err := h.processor.Reparse(ctx, doc.ID, false); !errors.As(err, &terr) {
		t.Fatalf("expected TransitionError without force, got %v", err)
	}
	got, err = h.processor.Reparse(ctx, doc.ID, true)
	if err != nil {
		t.Fatalf("forced Reparse: %v", err)
	}
	if got.Status != receipts.StatusSuccess {
		t.Fatalf("status after forced reparse = %s (%s)", got.Status, got.ErrorMessage)
	}
	items, err := h.store.LineItems(ctx, doc.ID)
	if err != nil || len(items) != 3 {
		t.Fatalf("line items after reparse = %d, %v", len(items), err)
	}

	if _, err := h.processor.Reparse(ctx, 9999, true); !errors.Is(err, receipts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCareemBodyDatedFromMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.add(t, parser.CareemVendor, "text/html", testsupport.CareemOrder("4401234567"))

	if _, err := h.processor.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	h.approveAll(t)
	if _, err := h.processor.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	got := h.reload(t, doc.ID)
	if got.Status != receipts.StatusSuccess {
		t.Fatalf("status = %s (%s)", got.Status, got.ErrorMessage)
	}
	if got.Header.DocumentDate.Format("2006-01-02") != "2026-01-21" {
		t.Fatalf("document date = %s", got.Header.DocumentDate)
	}
}

func TestAcquireRunLockIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := pipeline.AcquireRunLock(cfg.LockPath())
	if err != nil {
		t.Fatalf("AcquireRunLock: %v", err)
	}
	if _, err := pipeline.AcquireRunLock(cfg.LockPath()); !errors.Is(err, pipeline.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	second, err := pipeline.AcquireRunLock(cfg.LockPath())
	if err != nil {
		t.Fatalf("AcquireRunLock after release: %v", err)
	}
	second.Release()
}

func TestRunnerCollectsParsesAndCreatesTransactions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	led := testsupport.MustOpenLedger(t, h.cfg)
	src := testsupport.NewFakeSource()
	src.Add("Receipts/Carrefour", &source.Message{
		ID:         "m1",
		From:       "noreply@carrefouruae.com",
		Subject:    "Your invoice",
		ReceivedAt: testsupport.ReceivedAt,
		Attachments: []source.Attachment{
			{Filename: "invoice.pdf", MediaType: "application/pdf", Data: []byte(testsupport.CarrefourInvoice("83707162"))},
		},
	})
	runner := pipeline.NewRunner(h.cfg,
		collector.New(src, h.store, h.blobs, logging.NewNop()),
		h.processor,
		linker.New(h.store, led, h.cfg.Ledger, logging.NewNop()),
		logging.NewNop(),
	)

	first, err := runner.Run(ctx, pipeline.RunOptions{CreateTransactions: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.RunID == "" || first.Collect.DocumentsSaved != 1 || first.Parse.NeedsReview != 1 || first.Link.Created != 0 {
		t.Fatalf("first run = %+v", first)
	}

	h.approveAll(t)
	second, err := runner.Run(ctx, pipeline.RunOptions{CreateTransactions: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if second.Collect.DocumentsSaved != 0 || second.Parse.Succeeded != 1 || second.Link.Created != 1 {
		t.Fatalf("second run = %+v", second)
	}

	third, err := runner.Run(ctx, pipeline.RunOptions{CreateTransactions: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if third.Parse.Considered != 0 || third.Link.Considered != 0 {
		t.Fatalf("third run = %+v", third)
	}
	count, err := led.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("ledger holds %d transactions, want 1", count)
	}
}

func TestRunnerRefusesOverlappingRun(t *testing.T) {
	h := newHarness(t)
	lock, err := pipeline.AcquireRunLock(h.cfg.LockPath())
	if err != nil {
		t.Fatalf("AcquireRunLock: %v", err)
	}
	defer lock.Release()

	runner := pipeline.NewRunner(h.cfg,
		collector.New(testsupport.NewFakeSource(), h.store, h.blobs, logging.NewNop()),
		h.processor,
		linker.New(h.store, testsupport.MustOpenLedger(t, h.cfg), h.cfg.Ledger, logging.NewNop()),
		logging.NewNop(),
	)
	if _, err := runner.Run(context.Background(), pipeline.RunOptions{}); !errors.Is(err, pipeline.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
}
