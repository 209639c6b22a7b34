package drift_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tally/internal/drift"
	"tally/internal/logging"
	"tally/internal/parser"
	"tally/internal/receipts"
	"tally/internal/services"
	"tally/internal/testsupport"
)

func newGuard(t *testing.T) (*drift.Guard, *receipts.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	return drift.New(store, logging.NewNop()), store
}

func parsedInvoice(number string) *parser.Receipt {
	return parser.NewCarrefour().Parse(testsupport.CarrefourInvoice(number))
}

func TestCheckBlocksNewTemplateThenAllowsAfterApproval(t *testing.T) {
	guard, store := newGuard(t)
	ctx := context.Background()
	doc := testsupport.NewDocument(t, store, parser.CarrefourVendor, "invoice-1")
	receipt := parsedInvoice("83707162")

	decision, err := guard.Check(ctx, doc, receipt)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if decision.Allowed || !decision.Created || decision.Status != receipts.TemplateNeedsReview {
		t.Fatalf("expected blocked new template, got %+v", decision)
	}
	if !errors.Is(decision.Err(), services.ErrUnapprovedTemplate) {
		t.Fatalf("expected unapproved marker, got %v", decision.Err())
	}
	if !strings.Contains(decision.Reason, "new template") {
		t.Fatalf("reason = %q", decision.Reason)
	}

	again, err := guard.Check(ctx, doc, receipt)
	if err != nil {
		t.Fatalf("Check again: %v", err)
	}
	if again.Allowed || again.Created {
		t.Fatalf("second check should block without creating, got %+v", again)
	}

	tpl, err := store.GetTemplate(ctx, parser.CarrefourVendor, receipt.TemplateHash)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if tpl.SampleDocumentID != doc.ID || tpl.ParseVersion != parser.CarrefourVersion {
		t.Fatalf("unexpected template row %+v", tpl)
	}

	if _, _, err := guard.Approve(ctx, "", receipt.TemplateHash[:10], "looks right"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	allowed, err := guard.Check(ctx, doc, parsedInvoice("99887766"))
	if err != nil {
		t.Fatalf("Check after approval: %v", err)
	}
	if !allowed.Allowed || allowed.Err() != nil {
		t.Fatalf("expected allowed, got %+v", allowed)
	}
}

func TestCheckBlocksEmptyFingerprint(t *testing.T) {
	guard, store := newGuard(t)
	doc := testsupport.NewDocument(t, store, parser.CarrefourVendor, "blank")

	decision, err := guard.Check(context.Background(), doc, &parser.Receipt{Vendor: parser.CarrefourVendor})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if decision.Allowed || decision.Created {
		t.Fatalf("expected blocked without template, got %+v", decision)
	}
	templates, err := guard.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(templates) != 0 {
		t.Fatalf("empty fingerprint must not register a template, got %d", len(templates))
	}
}

func TestRejectKeepsBlocking(t *testing.T) {
	guard, store := newGuard(t)
	ctx := context.Background()
	doc := testsupport.NewDocument(t, store, parser.CarrefourVendor, "invoice-2")
	receipt := parsedInvoice("83707162")
	if _, err := guard.Check(ctx, doc, receipt); err != nil {
		t.Fatalf("Check: %v", err)
	}

	tpl, err := guard.Reject(ctx, parser.CarrefourVendor, receipt.TemplateHash, "garbled layout")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if tpl.Status != receipts.TemplateRejected {
		t.Fatalf("status = %s", tpl.Status)
	}
	decision, err := guard.Check(ctx, doc, receipt)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if decision.Allowed || !strings.Contains(decision.Reason, "rejected") {
		t.Fatalf("expected rejected block, got %+v", decision)
	}
	pending, err := guard.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("rejected template still pending: %+v", pending)
	}
}

func TestApproveRequeuesBlockedDocuments(t *testing.T) {
	guard, store := newGuard(t)
	ctx := context.Background()
	receipt := parsedInvoice("83707162")

	var blocked []int64
	for _, content := range []string{"a", "b"} {
		doc := testsupport.NewDocument(t, store, parser.CarrefourVendor, content)
		decision, err := guard.Check(ctx, doc, receipt)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if err := store.MarkNeedsReview(ctx, doc.ID, receipts.ParseOutcome{
			DocType:      receipt.DocType,
			TemplateHash: receipt.TemplateHash,
			ParseVersion: receipt.ParseVersion,
			Message:      decision.Reason,
		}); err != nil {
			t.Fatalf("MarkNeedsReview: %v", err)
		}
		blocked = append(blocked, doc.ID)
	}

	_, requeued, err := guard.Approve(ctx, parser.CarrefourVendor, receipt.TemplateHash, "")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if len(requeued) != len(blocked) {
		t.Fatalf("requeued %v, want %v", requeued, blocked)
	}
	for _, id := range blocked {
		doc, err := store.GetDocument(ctx, id)
		if err != nil {
			t.Fatalf("GetDocument: %v", err)
		}
		if doc.Status != receipts.StatusPending {
			t.Fatalf("document %d status = %s", id, doc.Status)
		}
	}
}

func TestApproveUnknownPrefix(t *testing.T) {
	guard, _ := newGuard(t)
	if _, _, err := guard.Approve(context.Background(), "", "deadbeef", ""); !errors.Is(err, receipts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
