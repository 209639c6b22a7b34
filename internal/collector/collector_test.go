package collector_test

import (
	"context"
	"errors"
	"testing"

	"tally/internal/blobstore"
	"tally/internal/collector"
	"tally/internal/config"
	"tally/internal/logging"
	"tally/internal/receipts"
	"tally/internal/source"
	"tally/internal/testsupport"
)

type harness struct {
	cfg       *config.Config
	store     *receipts.Store
	blobs     *blobstore.Local
	src       *testsupport.FakeSource
	collector *collector.Collector
}

func newHarness(t *testing.T) harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	blobs, err := blobstore.NewLocal(cfg.Paths.BlobDir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	src := testsupport.NewFakeSource()
	return harness{cfg: cfg, store: store, blobs: blobs, src: src, collector: collector.New(src, store, blobs, logging.NewNop())}
}

func (h harness) profile(t *testing.T, label string) config.Source {
	t.Helper()
	p, ok := h.cfg.SourceForLabel(label)
	if !ok {
		t.Fatalf("no source for %s", label)
	}
	return p
}

func invoiceMessage(id string, data []byte) *source.Message {
	return &source.Message{
		ID:         id,
		ThreadID:   "t-" + id,
		From:       "noreply@carrefouruae.com",
		Subject:    "Your Carrefour invoice",
		ReceivedAt: testsupport.ReceivedAt,
		Attachments: []source.Attachment{
			{Filename: "body.html", MediaType: "text/html", Data: []byte("<p>Thanks</p>"), Body: true},
			{Filename: "invoice.pdf", MediaType: "application/pdf", Data: data},
			{Filename: "logo.png", MediaType: "image/png", Data: []byte("png")},
		},
	}
}

func TestCollectSavesNewDocumentsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pdf := testsupport.MinimalPDF("Tax Invoice", "Page two")
	h.src.Add("Receipts/Carrefour", invoiceMessage("m1", pdf))
	profile := h.profile(t, "Receipts/Carrefour")

	summary, err := h.collector.Collect(ctx, profile)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if summary.MessagesSeen != 1 || summary.DocumentsSaved != 1 || summary.Ignored != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	docs, err := h.store.ListByStatus(ctx, receipts.StatusPending)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one pending document, got %d", len(docs))
	}
	doc := docs[0]
	if doc.ContentDigest != testsupport.Digest(pdf) || doc.Vendor != "carrefour_uae" || doc.PageCount != 2 {
		t.Fatalf("unexpected document %+v", doc)
	}
	if doc.MessageID != "m1" || doc.ThreadID != "t-m1" || doc.SourceLabel != "Receipts/Carrefour" || doc.EmailFrom != "noreply@carrefouruae.com" {
		t.Fatalf("message metadata not persisted: %+v", doc)
	}
	stored, err := h.blobs.Get(ctx, doc.StoragePath)
	if err != nil || string(stored) != string(pdf) {
		t.Fatalf("blob mismatch: %v", err)
	}

	again, err := h.collector.Collect(ctx, profile)
	if err != nil {
		t.Fatalf("Collect again: %v", err)
	}
	if again.MessagesSkipped != 1 || again.DocumentsSaved != 0 {
		t.Fatalf("second pass should skip the seen message, got %+v", again)
	}
	if h.src.FetchCount() != 1 {
		t.Fatalf("seen message fetched again (%d fetches)", h.src.FetchCount())
	}
}

func TestCollectSkipsIdenticalBytesFromAnotherMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pdf := testsupport.MinimalPDF("Tax Invoice")
	h.src.Add("Receipts/Carrefour", invoiceMessage("m1", pdf))
	h.src.Add("Receipts/Carrefour", invoiceMessage("m2", pdf))

	summary, err := h.collector.Collect(ctx, h.profile(t, "Receipts/Carrefour"))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if summary.DocumentsSaved != 1 || summary.Duplicates != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	totals, err := h.store.Totals(ctx)
	if err != nil || totals.Documents != 1 {
		t.Fatalf("totals = %+v, %v", totals, err)
	}
}

func TestCollectKeepsInvalidPDFs(t *testing.T) {
	h := newHarness(t)
	msg := invoiceMessage("m1", []byte("not a pdf"))
	msg.Attachments[1].MediaType = "application/octet-stream"
	h.src.Add("Receipts/Carrefour", msg)

	summary, err := h.collector.Collect(context.Background(), h.profile(t, "Receipts/Carrefour"))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if summary.DocumentsSaved != 1 || summary.InvalidPDFs != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	docs, _ := h.store.ListByStatus(context.Background(), receipts.StatusPending)
	if len(docs) != 1 || docs[0].PageCount != 0 || docs[0].MediaType != "application/pdf" {
		t.Fatalf("unexpected documents %+v", docs)
	}
}

func TestCollectBodyProfiles(t *testing.T) {
	h := newHarness(t)
	h.src.Add("Receipts/Careem", &source.Message{
		ID:         "c1",
		ReceivedAt: testsupport.ReceivedAt,
		Attachments: []source.Attachment{
			{Filename: "body.html", MediaType: "text/html; charset=UTF-8", Data: []byte(testsupport.CareemOrder("1")), Body: true},
		},
	})

	summary, err := h.collector.Collect(context.Background(), h.profile(t, "Receipts/Careem"))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if summary.DocumentsSaved != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	docs, _ := h.store.ListByStatus(context.Background(), receipts.StatusPending)
	if len(docs) != 1 || docs[0].MediaType != "text/html" || docs[0].Vendor != "careem_quik" {
		t.Fatalf("unexpected documents %+v", docs)
	}
}

func TestCollectIsolatesMessageFailures(t *testing.T) {
	h := newHarness(t)
	h.src.Add("Receipts/Carrefour", invoiceMessage("bad", testsupport.MinimalPDF("a")))
	h.src.FailFetch("bad", errors.New("rate limited"))
	good := invoiceMessage("good", testsupport.MinimalPDF("b"))
	good.Failures = []source.AttachmentFailure{{Filename: "second.pdf", Err: errors.New("timeout")}}
	h.src.Add("Receipts/Carrefour", good)

	summary, err := h.collector.Collect(context.Background(), h.profile(t, "Receipts/Carrefour"))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if summary.MessagesFailed != 1 || summary.DocumentsSaved != 1 || summary.AttachmentFailures != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	h.src.ListErr = errors.New("mailbox down")
	if _, err := h.collector.Collect(context.Background(), h.profile(t, "Receipts/Carrefour")); err == nil {
		t.Fatal("listing failure should abort the pass")
	}
}

// failingPuts rejects the first n writes and delegates the rest.
type failingPuts struct {
	blobstore.Store
	n int
}

func (f *failingPuts) Put(ctx context.Context, key string, data []byte) (bool, error) {
	if f.n > 0 {
		f.n--
		return false, errors.New("bucket unavailable")
	}
	return f.Store.Put(ctx, key, data)
}

func TestCollectContinuesPastBlobWriteFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := collector.New(h.src, h.store, &failingPuts{Store: h.blobs, n: 1}, logging.NewNop())
	h.src.Add("Receipts/Carrefour", invoiceMessage("first", testsupport.MinimalPDF("a")))
	h.src.Add("Receipts/Carrefour", invoiceMessage("second", testsupport.MinimalPDF("b")))
	profile := h.profile(t, "Receipts/Carrefour")

	summary, err := c.Collect(ctx, profile)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if summary.DocumentsSaved != 1 || summary.AttachmentFailures != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	summary, err = c.Collect(ctx, profile)
	if err != nil {
		t.Fatalf("second Collect: %v", err)
	}
	if summary.DocumentsSaved != 1 || summary.MessagesSkipped != 1 {
		t.Fatalf("failed message was not retried: %+v", summary)
	}
}
