package receipts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// InsertDocument stores a newly collected file as pending. Content that is
// already stored yields ErrDuplicateDocument and leaves the table untouched.
func (s *Store) InsertDocument(ctx context.Context, doc NewDocument) (*Document, error) {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO documents (
            content_digest, storage_path, filename, media_type, size_bytes, page_count,
            message_id, thread_id, source_label, email_from, email_subject, received_at,
            vendor, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(content_digest) DO NOTHING`,
		doc.ContentDigest,
		doc.StoragePath,
		nullableString(doc.Filename),
		doc.MediaType,
		doc.SizeBytes,
		doc.PageCount,
		nullableString(doc.MessageID),
		nullableString(doc.ThreadID),
		nullableString(doc.SourceLabel),
		nullableString(doc.EmailFrom),
		nullableString(doc.EmailSubject),
		nullableTime(doc.ReceivedAt),
		doc.Vendor,
		StatusPending,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert document rows: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDocument, doc.ContentDigest)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert document id: %w", err)
	}
	return s.GetDocument(ctx, id)
}

// HasDigest reports whether content with this digest is already stored.
func (s *Store) HasDigest(ctx context.Context, digest string) (bool, error) {
	return s.exists(ctx, "SELECT COUNT(1) FROM documents WHERE content_digest = ?", digest)
}

// HasMessage reports whether any document was collected from messageID.
func (s *Store) HasMessage(ctx context.Context, messageID string) (bool, error) {
	return s.exists(ctx, "SELECT COUNT(1) FROM documents WHERE message_id = ?", messageID)
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetDocument fetches a document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}
	return doc, nil
}

// ListByStatus returns documents in any of the given statuses, oldest first.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Document, error) {
	if len(statuses) == 0 {
		return s.queryDocuments(ctx, "SELECT "+documentColumns+" FROM documents ORDER BY id")
	}
	query := "SELECT " + documentColumns + " FROM documents WHERE status IN (" + makePlaceholders(len(statuses)) + ") ORDER BY id"
	return s.queryDocuments(ctx, query, statusArgs(statuses)...)
}

// ListUnlinked returns successfully parsed documents that have no ledger link yet.
func (s *Store) ListUnlinked(ctx context.Context) ([]*Document, error) {
	query := "SELECT " + prefixColumns("d.", documentColumns) + ` FROM documents d
        LEFT JOIN links l ON l.document_id = d.id
        WHERE d.status = ? AND l.id IS NULL
        ORDER BY d.id`
	return s.queryDocuments(ctx, query, StatusSuccess)
}

// ListByTemplate returns documents fingerprinted with the given layout.
func (s *Store) ListByTemplate(ctx context.Context, vendor, hash string, statuses ...Status) ([]*Document, error) {
	query := "SELECT " + documentColumns + " FROM documents WHERE vendor = ? AND template_hash = ?"
	args := []any{vendor, hash}
	if len(statuses) > 0 {
		query += " AND status IN (" + makePlaceholders(len(statuses)) + ")"
		args = append(args, statusArgs(statuses)...)
	}
	return s.queryDocuments(ctx, query+" ORDER BY id", args...)
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]*Document, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpsertText records the extracted text for a document, replacing any earlier extraction.
func (s *Store) UpsertText(ctx context.Context, documentID int64, text, method string) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO extracted_texts (document_id, raw_text, method, extracted_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(document_id) DO UPDATE SET
            raw_text = excluded.raw_text,
            method = excluded.method,
            extracted_at = excluded.extracted_at`,
		documentID, text, method, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("upsert extracted text for %d: %w", documentID, err)
	}
	return nil
}

// Text returns the stored extracted text for a document.
func (s *Store) Text(ctx context.Context, documentID int64) (string, error) {
	var text string
	err := s.db.QueryRowContext(ensureContext(ctx), "SELECT raw_text FROM extracted_texts WHERE document_id = ?", documentID).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("extracted text for %d: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read extracted text for %d: %w", documentID, err)
	}
	return text, nil
}

// LineItems returns the accepted line items of a document in print order.
func (s *Store) LineItems(ctx context.Context, documentID int64) ([]LineItem, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+lineItemColumns+" FROM line_items WHERE document_id = ? ORDER BY line_number", documentID)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountByStatus returns the number of documents in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT status, COUNT(1) FROM documents GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int, len(allStatuses))
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

// Totals summarizes stored documents, their size, and how many are linked.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	var totals Totals
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1), COALESCE(SUM(size_bytes), 0), (SELECT COUNT(1) FROM links) FROM documents`,
	).Scan(&totals.Documents, &totals.Bytes, &totals.Linked)
	if err != nil {
		return Totals{}, fmt.Errorf("read totals: %w", err)
	}
	return totals, nil
}

func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, part := range parts {
		parts[i] = prefix + part
	}
	return strings.Join(parts, ", ")
}
