package receipts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateLink attaches a ledger transaction to a document. A document that is
// already linked keeps its first link and created is false.
func (s *Store) CreateLink(ctx context.Context, link Link) (created bool, err error) {
	res, err := s.execWithRetry(ctx,
		`INSERT INTO links (document_id, transaction_id, match_type, confidence, created_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(document_id) DO NOTHING`,
		link.DocumentID, link.TransactionID, link.MatchType, link.Confidence, s.timestamp(),
	)
	if err != nil {
		return false, fmt.Errorf("insert link for %d: %w", link.DocumentID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert link rows: %w", err)
	}
	return affected > 0, nil
}

// GetLink returns the link for a document.
func (s *Store) GetLink(ctx context.Context, documentID int64) (*Link, error) {
	var (
		link       Link
		createdRaw string
	)
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT id, document_id, transaction_id, match_type, confidence, created_at FROM links WHERE document_id = ?",
		documentID,
	).Scan(&link.ID, &link.DocumentID, &link.TransactionID, &link.MatchType, &link.Confidence, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("link for document %d: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get link for %d: %w", documentID, err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		link.CreatedAt = created
	}
	return &link, nil
}

// TransactionLinked reports whether any document already links transactionID.
func (s *Store) TransactionLinked(ctx context.Context, transactionID string) (bool, error) {
	return s.exists(ctx, "SELECT COUNT(1) FROM links WHERE transaction_id = ?", transactionID)
}
