package linker_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/ledger"
	"tally/internal/linker"
	"tally/internal/logging"
	"tally/internal/receipts"
	"tally/internal/testsupport"
)

type harness struct {
	store  *receipts.Store
	ledger *ledger.SQLite
	linker *linker.Linker
}

func newHarness(t *testing.T) harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	l := testsupport.MustOpenLedger(t, cfg)
	return harness{store: store, ledger: l, linker: linker.New(store, l, cfg.Ledger, logging.NewNop())}
}

func (h harness) accepted(t *testing.T, content, total string, date time.Time) *receipts.Document {
	t.Helper()
	doc := testsupport.NewDocument(t, h.store, "carrefour_uae", content)
	err := h.store.Accept(context.Background(), doc.ID, receipts.Acceptance{
		Header: receipts.Header{
			DocType:        "tax_invoice",
			DocumentNumber: "8370" + content,
			DocumentDate:   date,
			StoreName:      "CARREFOUR MARINA",
			Currency:       "AED",
			Total:          decimal.NewNullDecimal(decimal.RequireFromString(total)),
		},
		TemplateHash: "hash",
		ParseVersion: "carrefour_v1",
	})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	doc, err = h.store.GetDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	return doc
}

var jan21 = time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)

func TestLinkUnlinkedMatchesExistingTransaction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.accepted(t, "1", "12.54", jan21)
	bankID, err := h.ledger.Record(ctx, ledger.Transaction{
		Date: jan21.AddDate(0, 0, 1), Counterparty: "CARREFOUR MARINA DUBAI", Amount: decimal.RequireFromString("-12.54"), Currency: "AED",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	h.accepted(t, "2", "40.00", jan21)

	summary, err := h.linker.LinkUnlinked(ctx)
	if err != nil {
		t.Fatalf("LinkUnlinked: %v", err)
	}
	if summary.Considered != 2 || summary.Matched != 1 || summary.Unmatched != 1 || summary.Created != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	link, err := h.store.GetLink(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetLink: %v", err)
	}
	if link.TransactionID != bankID || link.MatchType != linker.MatchTypeMatched || link.Confidence <= 0 {
		t.Fatalf("unexpected link %+v", link)
	}

	again, err := h.linker.LinkUnlinked(ctx)
	if err != nil {
		t.Fatalf("LinkUnlinked again: %v", err)
	}
	if again.Considered != 1 || again.Matched != 0 {
		t.Fatalf("second pass should only revisit the unmatched document, got %+v", again)
	}
}

func TestCreateForUnlinkedIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.accepted(t, "1", "12.54", jan21)

	summary, err := h.linker.CreateForUnlinked(ctx)
	if err != nil {
		t.Fatalf("CreateForUnlinked: %v", err)
	}
	if summary.Created != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	link, err := h.store.GetLink(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetLink: %v", err)
	}
	if link.MatchType != linker.MatchTypeCreated || link.Confidence != 1 {
		t.Fatalf("unexpected link %+v", link)
	}
	txn, err := h.ledger.Transaction(ctx, link.TransactionID)
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if !txn.Amount.Equal(decimal.RequireFromString("-12.54")) {
		t.Fatalf("amount = %s, want -12.54", txn.Amount)
	}
	wantKey := ledger.IdempotencyKey("rcpt:", doc.ContentDigest, 36)
	if txn.IdempotencyKey != wantKey || len(txn.IdempotencyKey) != 36 {
		t.Fatalf("key = %q, want %q", txn.IdempotencyKey, wantKey)
	}
	if txn.Counterparty != "CARREFOUR MARINA" || txn.Category != "Grocery" || txn.Currency != "AED" {
		t.Fatalf("unexpected transaction %+v", txn)
	}

	again, err := h.linker.CreateForUnlinked(ctx)
	if err != nil {
		t.Fatalf("CreateForUnlinked again: %v", err)
	}
	if again.Considered != 0 {
		t.Fatalf("linked document revisited: %+v", again)
	}
	count, err := h.ledger.Count(ctx)
	if err != nil || count != 1 {
		t.Fatalf("transactions = %d err=%v", count, err)
	}
}

func TestCreateReusesTransactionAfterLostLink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.accepted(t, "1", "12.54", jan21)

	// A previous run created the transaction but died before linking.
	key := ledger.IdempotencyKey("rcpt:", doc.ContentDigest, 36)
	existing, _, err := h.ledger.EnsureTransaction(ctx, ledger.Transaction{
		Date: jan21.AddDate(0, 0, -10), Amount: decimal.RequireFromString("-12.54"), Currency: "AED", IdempotencyKey: key,
	})
	if err != nil {
		t.Fatalf("EnsureTransaction: %v", err)
	}

	if _, err := h.linker.CreateForUnlinked(ctx); err != nil {
		t.Fatalf("CreateForUnlinked: %v", err)
	}
	link, err := h.store.GetLink(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetLink: %v", err)
	}
	if link.TransactionID != existing {
		t.Fatalf("linked %s, want existing %s", link.TransactionID, existing)
	}
	if count, _ := h.ledger.Count(ctx); count != 1 {
		t.Fatalf("duplicate transaction created, count=%d", count)
	}
}

func TestCandidatesAlreadyLinkedAreSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.accepted(t, "1", "12.54", jan21)
	second := h.accepted(t, "2", "12.54", jan21)
	if _, err := h.ledger.Record(ctx, ledger.Transaction{
		Date: jan21, Counterparty: "Carrefour", Amount: decimal.RequireFromString("-12.54"), Currency: "AED",
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	summary, err := h.linker.CreateForUnlinked(ctx)
	if err != nil {
		t.Fatalf("CreateForUnlinked: %v", err)
	}
	if summary.Matched != 1 || summary.Created != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	a, _ := h.store.GetLink(ctx, first.ID)
	b, _ := h.store.GetLink(ctx, second.ID)
	if a == nil || b == nil || a.TransactionID == b.TransactionID {
		t.Fatalf("documents share a transaction: %+v %+v", a, b)
	}
}
