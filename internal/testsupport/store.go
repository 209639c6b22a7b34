package testsupport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"tally/internal/config"
	"tally/internal/receipts"
)

// ReceivedAt is the message time stamped on documents created by NewDocument.
var ReceivedAt = time.Date(2026, 1, 21, 9, 30, 0, 0, time.UTC)

// MustOpenStore opens a receipts.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *receipts.Store {
	t.Helper()

	store, err := receipts.Open(cfg)
	if err != nil {
		t.Fatalf("receipts.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewDocument inserts a pending document whose digest derives from content.
func NewDocument(t testing.TB, store *receipts.Store, vendor, content string) *receipts.Document {
	t.Helper()

	digest := Digest([]byte(content))
	doc, err := store.InsertDocument(context.Background(), receipts.NewDocument{
		ContentDigest: digest,
		StoragePath:   digest[:2] + "/" + digest + ".pdf",
		Filename:      "invoice.pdf",
		MediaType:     "application/pdf",
		SizeBytes:     int64(len(content)),
		MessageID:     "msg-" + digest[:8],
		SourceLabel:   "Receipts/Test",
		ReceivedAt:    ReceivedAt,
		Vendor:        vendor,
	})
	if err != nil {
		t.Fatalf("store.InsertDocument: %v", err)
	}
	return doc
}
