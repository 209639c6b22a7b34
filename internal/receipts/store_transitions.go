package receipts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tally/internal/money"
)

// Parse outcomes move a document out of pending. Everything else reaches
// pending again only through a requeue.
var outcomeSources = []Status{StatusPending}

// requeueSources lists the statuses a requeue may leave. Settled statuses
// (skipped, failed, success) need force.
var (
	requeueSources      = []Status{StatusNeedsReview}
	forceRequeueSources = []Status{StatusNeedsReview, StatusSkipped, StatusFailed, StatusSuccess}
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// transition applies set to document id only while it is in one of from.
// Zero affected rows become ErrNotFound or a TransitionError.
func (s *Store) transition(ctx context.Context, ex execer, id int64, to Status, from []Status, set string, args ...any) error {
	query := "UPDATE documents SET status = ?, updated_at = ?"
	if set != "" {
		query += ", " + set
	}
	query += " WHERE id = ? AND status IN (" + makePlaceholders(len(from)) + ")"

	all := make([]any, 0, len(args)+len(from)+3)
	all = append(all, to, s.timestamp())
	all = append(all, args...)
	all = append(all, id)
	all = append(all, statusArgs(from)...)

	res, err := ex.ExecContext(ctx, query, all...)
	if err != nil {
		return fmt.Errorf("update document %d to %s: %w", id, to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document %d rows: %w", id, err)
	}
	if affected > 0 {
		return nil
	}

	var current string
	if err := ex.QueryRowContext(ctx, "SELECT status FROM documents WHERE id = ?", id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("document %d: %w", id, ErrNotFound)
		}
		return fmt.Errorf("read document %d status: %w", id, err)
	}
	return &TransitionError{DocumentID: id, From: Status(current), To: to}
}

func (s *Store) transitionWithRetry(ctx context.Context, id int64, to Status, from []Status, set string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		return s.transition(ctx, s.db, id, to, from, set, args...)
	})
}

// MarkFailed records a terminal extraction or parse failure.
func (s *Store) MarkFailed(ctx context.Context, id int64, outcome ParseOutcome) error {
	return s.transitionWithRetry(ctx, id, StatusFailed, outcomeSources,
		"error_message = ?, doc_type = COALESCE(?, doc_type), template_hash = COALESCE(?, template_hash), parse_version = COALESCE(?, parse_version), parsed_json = COALESCE(?, parsed_json), parsed_at = ?",
		nullableString(outcome.Message),
		nullableString(outcome.DocType),
		nullableString(outcome.TemplateHash),
		nullableString(outcome.ParseVersion),
		nullableString(outcome.ParsedJSON),
		s.timestamp(),
	)
}

// MarkSkipped records a document that is not a posting document (tips, refunds, ...).
func (s *Store) MarkSkipped(ctx context.Context, id int64, outcome ParseOutcome) error {
	return s.transitionWithRetry(ctx, id, StatusSkipped, outcomeSources,
		"error_message = ?, doc_type = ?, template_hash = ?, parse_version = ?, parsed_json = ?, parsed_at = ?",
		nullableString(outcome.Message),
		nullableString(outcome.DocType),
		nullableString(outcome.TemplateHash),
		nullableString(outcome.ParseVersion),
		nullableString(outcome.ParsedJSON),
		s.timestamp(),
	)
}

// MarkNeedsReview holds a parse for a human. Only the audit JSON is kept; no
// header fields or line items are written.
func (s *Store) MarkNeedsReview(ctx context.Context, id int64, outcome ParseOutcome) error {
	return s.transitionWithRetry(ctx, id, StatusNeedsReview, outcomeSources,
		"error_message = ?, doc_type = ?, template_hash = ?, parse_version = ?, parsed_json = ?, parsed_at = ?",
		nullableString(outcome.Message),
		nullableString(outcome.DocType),
		nullableString(outcome.TemplateHash),
		nullableString(outcome.ParseVersion),
		nullableString(outcome.ParsedJSON),
		s.timestamp(),
	)
}

// Accept copies an approved, reconciled parse onto the document and replaces
// its line items in one transaction.
func (s *Store) Accept(ctx context.Context, id int64, acc Acceptance) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		h := acc.Header
		if err := s.transition(ctx, tx, id, StatusSuccess, outcomeSources,
			`error_message = NULL, doc_type = ?, document_number = ?, order_number = ?, document_date = ?,
            store_name = ?, currency = ?, subtotal = ?, tax_rate = ?, tax_amount = ?, total = ?,
            payment_method = ?, template_hash = ?, parse_version = ?, parsed_json = ?, parsed_at = ?`,
			nullableString(h.DocType),
			nullableString(h.DocumentNumber),
			nullableString(h.OrderNumber),
			nullableDate(h.DocumentDate),
			nullableString(h.StoreName),
			nullableString(h.Currency),
			nullableDecimal(h.Subtotal),
			nullableDecimal(h.TaxRate),
			nullableDecimal(h.TaxAmount),
			nullableDecimal(h.Total),
			nullableString(h.PaymentMethod),
			nullableString(acc.TemplateHash),
			nullableString(acc.ParseVersion),
			nullableString(acc.ParsedJSON),
			s.timestamp(),
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM line_items WHERE document_id = ?", id); err != nil {
			return fmt.Errorf("clear line items for %d: %w", id, err)
		}
		for i, item := range acc.Items {
			lineNumber := item.LineNumber
			if lineNumber == 0 {
				lineNumber = i + 1
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO line_items (document_id, "+lineItemColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
				id,
				lineNumber,
				nullableString(item.Barcode),
				item.Description,
				nullableString(item.DescriptionClean),
				item.QtyOrdered.String(),
				item.QtyDelivered.String(),
				money.Format(item.UnitPriceIncl),
				money.Format(item.UnitPriceExcl),
				money.Format(item.Subtotal),
				item.TaxRate.String(),
				money.Format(item.TaxAmount),
				money.Format(item.Discount),
				money.Format(item.Total),
				boolToInt(item.IsFree),
				nullableDecimal(item.VoucherDiscount),
			); err != nil {
				return fmt.Errorf("insert line item %d for %d: %w", lineNumber, id, err)
			}
		}
		return nil
	})
}

// Requeue returns a document to pending for another parse. Documents in
// needs_review move freely; skipped, failed and success documents need force.
// Accepted fields, line items and any ledger link are cleared so the next
// parse starts clean; link or create-transactions attaches it again. A
// document that is already pending is left as is.
func (s *Store) Requeue(ctx context.Context, id int64, force bool) error {
	from := requeueSources
	if force {
		from = forceRequeueSources
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		err := s.transition(ctx, tx, id, StatusPending, from, clearParsedFields)
		var terr *TransitionError
		if errors.As(err, &terr) && terr.From == StatusPending {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM line_items WHERE document_id = ?", id); err != nil {
			return fmt.Errorf("clear line items for %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM links WHERE document_id = ?", id); err != nil {
			return fmt.Errorf("clear link for %d: %w", id, err)
		}
		return nil
	})
}

const clearParsedFields = `error_message = NULL, document_number = NULL, order_number = NULL,
    document_date = NULL, store_name = NULL, currency = NULL, subtotal = NULL, tax_rate = NULL,
    tax_amount = NULL, total = NULL, payment_method = NULL`
