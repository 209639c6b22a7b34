package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"tally/internal/blobstore"
	"tally/internal/config"
	"tally/internal/logging"
	"tally/internal/receipts"
	"tally/internal/source"
)

const (
	mediaTypePDF         = "application/pdf"
	mediaTypeOctetStream = "application/octet-stream"
)

// DocumentStore is the subset of receipts.Store the collector needs.
type DocumentStore interface {
	HasMessage(ctx context.Context, messageID string) (bool, error)
	HasDigest(ctx context.Context, digest string) (bool, error)
	InsertDocument(ctx context.Context, doc receipts.NewDocument) (*receipts.Document, error)
}

// Summary counts one collection pass.
type Summary struct {
	MessagesSeen       int
	MessagesSkipped    int
	MessagesFailed     int
	DocumentsSaved     int
	Duplicates         int
	Ignored            int
	AttachmentFailures int
	InvalidPDFs        int
}

// Add accumulates other into s.
func (s *Summary) Add(other Summary) {
	s.MessagesSeen += other.MessagesSeen
	s.MessagesSkipped += other.MessagesSkipped
	s.MessagesFailed += other.MessagesFailed
	s.DocumentsSaved += other.DocumentsSaved
	s.Duplicates += other.Duplicates
	s.Ignored += other.Ignored
	s.AttachmentFailures += other.AttachmentFailures
	s.InvalidPDFs += other.InvalidPDFs
}

// Collector copies new documents from a source into the store.
type Collector struct {
	src    source.Source
	store  DocumentStore
	blobs  blobstore.Store
	logger *slog.Logger
}

// New constructs a Collector.
func New(src source.Source, store DocumentStore, blobs blobstore.Store, logger *slog.Logger) *Collector {
	return &Collector{src: src, store: store, blobs: blobs, logger: logging.NewComponentLogger(logger, "collector")}
}

// Collect ingests every new message under profile.Label. Only listing errors
// and database failures abort the pass; a bad message or an unwritable
// attachment is logged and skipped.
func (c *Collector) Collect(ctx context.Context, profile config.Source) (Summary, error) {
	var summary Summary
	logger := c.logger.With(logging.String("label", profile.Label), logging.String(logging.FieldVendor, profile.Vendor))

	ids, err := c.src.ListMessages(ctx, profile.Label)
	if err != nil {
		return summary, fmt.Errorf("list %s: %w", profile.Label, err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.MessagesSeen++
		seen, err := c.store.HasMessage(ctx, id)
		if err != nil {
			return summary, fmt.Errorf("check message %s: %w", id, err)
		}
		if seen {
			summary.MessagesSkipped++
			continue
		}

		msg, err := c.src.FetchMessage(ctx, id)
		if err != nil {
			summary.MessagesFailed++
			logging.WarnWithContext(logger, "message fetch failed", "fetch_failed",
				logging.String("message_id", id),
				logging.Error(err),
				logging.String(logging.FieldImpact, "message retried on the next fetch"),
			)
			continue
		}
		msg.Label = profile.Label
		for _, failure := range msg.Failures {
			summary.AttachmentFailures++
			logging.WarnWithContext(logger, "attachment download failed", "attachment_failed",
				logging.String("message_id", id),
				logging.String("filename", failure.Filename),
				logging.Error(failure.Err),
				logging.String(logging.FieldImpact, "attachment skipped"),
			)
		}

		for _, att := range msg.Attachments {
			mediaType, ok := accept(profile, att)
			if !ok {
				summary.Ignored++
				continue
			}
			saved, err := c.save(ctx, logger, profile, msg, att, mediaType, &summary)
			if err != nil {
				return summary, err
			}
			if saved {
				summary.DocumentsSaved++
			}
		}
	}
	logger.Info("collection complete",
		logging.Int("messages", summary.MessagesSeen),
		logging.Int("skipped", summary.MessagesSkipped),
		logging.Int("saved", summary.DocumentsSaved),
		logging.Int("duplicates", summary.Duplicates),
		logging.Int("attachment_failures", summary.AttachmentFailures),
		logging.String(logging.FieldEventType, "collect_summary"),
	)
	return summary, nil
}

func (c *Collector) save(ctx context.Context, logger *slog.Logger, profile config.Source, msg *source.Message, att source.Attachment, mediaType string, summary *Summary) (bool, error) {
	sum := sha256.Sum256(att.Data)
	digest := hex.EncodeToString(sum[:])
	exists, err := c.store.HasDigest(ctx, digest)
	if err != nil {
		return false, fmt.Errorf("check digest: %w", err)
	}
	if exists {
		summary.Duplicates++
		logger.Debug("duplicate content skipped", logging.String("digest", digest[:12]), logging.String("message_id", msg.ID))
		return false, nil
	}

	pages := 0
	if mediaType == mediaTypePDF {
		pages, err = inspectPDF(att.Data)
		if err != nil {
			summary.InvalidPDFs++
			logging.WarnWithContext(logger, "attachment is not a valid pdf", "pdf_invalid",
				logging.String("message_id", msg.ID),
				logging.String("filename", att.Filename),
				logging.Error(err),
				logging.String(logging.FieldImpact, "stored anyway; extraction reports the failure"),
			)
		}
	}

	key := blobstore.ContentKey(digest, extension(att.Filename, mediaType))
	if _, err := c.blobs.Put(ctx, key, att.Data); err != nil {
		summary.AttachmentFailures++
		logging.WarnWithContext(logger, "document bytes not stored", "blob_write_failed",
			logging.String("message_id", msg.ID),
			logging.String("filename", att.Filename),
			logging.String("location", c.blobs.Location(key)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "attachment skipped; a message with no saved document is retried on the next fetch"),
		)
		return false, nil
	}
	doc, err := c.store.InsertDocument(ctx, receipts.NewDocument{
		ContentDigest: digest,
		StoragePath:   key,
		Filename:      att.Filename,
		MediaType:     mediaType,
		SizeBytes:     int64(len(att.Data)),
		PageCount:     pages,
		MessageID:     msg.ID,
		ThreadID:      msg.ThreadID,
		SourceLabel:   msg.Label,
		EmailFrom:     msg.From,
		EmailSubject:  msg.Subject,
		ReceivedAt:    msg.ReceivedAt,
		Vendor:        profile.Vendor,
	})
	if errors.Is(err, receipts.ErrDuplicateDocument) {
		summary.Duplicates++
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert document: %w", err)
	}
	logger.Info("document saved",
		logging.DocumentID(doc.ID),
		logging.String("filename", att.Filename),
		logging.Int("pages", pages),
		logging.String(logging.FieldEventType, "document_saved"),
	)
	return true, nil
}

// accept reports whether att belongs to profile and the media type to store it under.
func accept(profile config.Source, att source.Attachment) (string, bool) {
	if att.Body && !profile.IncludeBody {
		return "", false
	}
	mediaType := source.NormalizeMediaType(att.MediaType)
	if !slices.Contains(profile.MediaTypes, mediaType) {
		return "", false
	}
	if mediaType == mediaTypeOctetStream {
		if !strings.EqualFold(path.Ext(att.Filename), ".pdf") {
			return "", false
		}
		return mediaTypePDF, true
	}
	return mediaType, true
}

func extension(filename, mediaType string) string {
	switch mediaType {
	case mediaTypePDF:
		return "pdf"
	case "text/html":
		return "html"
	case "text/plain":
		return "txt"
	}
	return strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
}
