package receipts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const templateCountColumn = `(SELECT COUNT(1) FROM documents d WHERE d.vendor = t.vendor AND d.template_hash = t.template_hash)`

// EnsureTemplate records a newly seen layout as needs_review. It reports
// whether a row was created; an existing (vendor, hash) is left untouched.
func (s *Store) EnsureTemplate(ctx context.Context, vendor, hash, parseVersion string, sampleDocumentID int64) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`INSERT INTO templates (vendor, template_hash, status, parse_version, sample_document_id, first_seen_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(vendor, template_hash) DO NOTHING`,
		vendor, hash, TemplateNeedsReview, nullableString(parseVersion), nullableInt64(sampleDocumentID), s.timestamp(),
	)
	if err != nil {
		return false, fmt.Errorf("insert template %s/%s: %w", vendor, shortHash(hash), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert template rows: %w", err)
	}
	return affected > 0, nil
}

// GetTemplate fetches the template for (vendor, hash).
func (s *Store) GetTemplate(ctx context.Context, vendor, hash string) (*Template, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+templateColumns+", "+templateCountColumn+" FROM templates t WHERE t.vendor = ? AND t.template_hash = ?",
		vendor, hash)
	tpl, err := scanTemplate(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %s/%s: %w", vendor, shortHash(hash), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return tpl, nil
}

// ResolveTemplate finds the single template whose hash starts with prefix.
// An empty vendor matches any vendor.
func (s *Store) ResolveTemplate(ctx context.Context, vendor, prefix string) (*Template, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, fmt.Errorf("template hash: %w", ErrNotFound)
	}
	query := "SELECT " + templateColumns + ", " + templateCountColumn + " FROM templates t WHERE substr(t.template_hash, 1, ?) = ?"
	args := []any{len(prefix), prefix}
	if vendor != "" {
		query += " AND t.vendor = ?"
		args = append(args, vendor)
	}
	templates, err := s.queryTemplates(ctx, query+" ORDER BY t.id LIMIT 2", args...)
	if err != nil {
		return nil, err
	}
	switch len(templates) {
	case 0:
		return nil, fmt.Errorf("template %s: %w", prefix, ErrNotFound)
	case 1:
		return templates[0], nil
	default:
		return nil, fmt.Errorf("%w: %s matches %s/%s and %s/%s", ErrAmbiguousTemplate, prefix,
			templates[0].Vendor, shortHash(templates[0].Hash), templates[1].Vendor, shortHash(templates[1].Hash))
	}
}

// ListTemplates returns templates in the given statuses with their document counts.
func (s *Store) ListTemplates(ctx context.Context, statuses ...TemplateStatus) ([]*Template, error) {
	query := "SELECT " + templateColumns + ", " + templateCountColumn + " FROM templates t"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE t.status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	return s.queryTemplates(ctx, query+" ORDER BY t.first_seen_at, t.id", args...)
}

func (s *Store) queryTemplates(ctx context.Context, query string, args ...any) ([]*Template, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		tpl, err := scanTemplate(rows, true)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

// ApproveTemplate marks (vendor, hash) approved and returns every document it
// had blocked to pending, atomically. It returns the requeued document IDs.
func (s *Store) ApproveTemplate(ctx context.Context, vendor, hash, notes string) ([]int64, error) {
	var requeued []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		requeued = nil
		if err := s.setTemplateStatus(ctx, tx, vendor, hash, TemplateApproved, notes); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx,
			"SELECT id FROM documents WHERE vendor = ? AND template_hash = ? AND status = ? ORDER BY id",
			vendor, hash, StatusNeedsReview)
		if err != nil {
			return fmt.Errorf("select blocked documents: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			requeued = append(requeued, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		for _, id := range requeued {
			if err := s.transition(ctx, tx, id, StatusPending, requeueSources, clearParsedFields); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return requeued, nil
}

// RejectTemplate marks (vendor, hash) rejected. Documents stay in needs_review.
func (s *Store) RejectTemplate(ctx context.Context, vendor, hash, notes string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.setTemplateStatus(ctx, tx, vendor, hash, TemplateRejected, notes)
	})
}

func (s *Store) setTemplateStatus(ctx context.Context, tx *sql.Tx, vendor, hash string, status TemplateStatus, notes string) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE templates SET status = ?, reviewed_at = ?, notes = COALESCE(?, notes) WHERE vendor = ? AND template_hash = ?",
		status, s.timestamp(), nullableString(notes), vendor, hash)
	if err != nil {
		return fmt.Errorf("update template %s/%s: %w", vendor, shortHash(hash), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("template %s/%s: %w", vendor, shortHash(hash), ErrNotFound)
	}
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
