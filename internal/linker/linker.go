package linker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tally/internal/config"
	"tally/internal/ledger"
	"tally/internal/logging"
	"tally/internal/receipts"
	"tally/internal/services"
)

const stageName = "link"

// Match types recorded on links.
const (
	MatchTypeMatched = "matched"
	MatchTypeCreated = "created"
)

// DocumentStore is the subset of receipts.Store the linker needs.
type DocumentStore interface {
	ListUnlinked(ctx context.Context) ([]*receipts.Document, error)
	CreateLink(ctx context.Context, link receipts.Link) (bool, error)
	TransactionLinked(ctx context.Context, transactionID string) (bool, error)
}

// Summary counts the outcome of one linking pass.
type Summary struct {
	Considered int
	Matched    int
	Created    int
	Reused     int
	Unmatched  int
	Failed     int
}

// Linker pairs success documents with ledger transactions.
type Linker struct {
	store  DocumentStore
	ledger ledger.Ledger
	cfg    config.Ledger
	logger *slog.Logger
}

// New constructs a Linker.
func New(store DocumentStore, l ledger.Ledger, cfg config.Ledger, logger *slog.Logger) *Linker {
	return &Linker{store: store, ledger: l, cfg: cfg, logger: logging.NewComponentLogger(logger, "linker")}
}

// LinkUnlinked links every unlinked success document to its best existing candidate.
func (l *Linker) LinkUnlinked(ctx context.Context) (Summary, error) {
	return l.run(ctx, false)
}

// CreateForUnlinked links like LinkUnlinked and creates a ledger transaction
// for documents without candidates.
func (l *Linker) CreateForUnlinked(ctx context.Context) (Summary, error) {
	return l.run(ctx, true)
}

func (l *Linker) run(ctx context.Context, create bool) (Summary, error) {
	var summary Summary
	docs, err := l.store.ListUnlinked(ctx)
	if err != nil {
		return summary, fmt.Errorf("list unlinked documents: %w", err)
	}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Considered++
		docCtx := services.WithStage(services.WithDocumentID(ctx, doc.ID), stageName)
		outcome, err := l.linkOne(docCtx, doc, create)
		if err != nil {
			summary.Failed++
			logging.WarnWithContext(logging.WithContext(docCtx, l.logger), "link failed", "link_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "document stays unlinked until the next run"),
				logging.String(logging.FieldErrorHint, "check ledger connectivity with tally doctor"),
			)
			continue
		}
		switch outcome {
		case MatchTypeMatched:
			summary.Matched++
		case MatchTypeCreated:
			summary.Created++
		case outcomeReused:
			summary.Reused++
		default:
			summary.Unmatched++
		}
	}
	l.logger.Info("link pass complete",
		logging.Bool("create_missing", create),
		logging.Int("considered", summary.Considered),
		logging.Int("matched", summary.Matched),
		logging.Int("created", summary.Created),
		logging.Int("unmatched", summary.Unmatched),
		logging.Int("failed", summary.Failed),
		logging.String(logging.FieldEventType, "link_summary"),
	)
	return summary, nil
}

const (
	outcomeUnmatched = ""
	outcomeReused    = "reused"
)

func (l *Linker) linkOne(ctx context.Context, doc *receipts.Document, create bool) (string, error) {
	logger := logging.WithContext(ctx, l.logger)
	if !doc.Header.Total.Valid || doc.Header.DocumentDate.IsZero() {
		return "", services.Wrap(services.ErrCriticalExtraction, stageName, "", "document has no total or date", nil)
	}
	candidates, err := l.ledger.Candidates(ctx, ledger.Query{
		Date:         doc.Header.DocumentDate,
		Amount:       doc.Header.Total.Decimal,
		Counterparty: counterparty(doc),
		WindowDays:   l.cfg.MatchWindowDays,
	})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "match", "", err)
	}
	for _, candidate := range candidates {
		taken, err := l.store.TransactionLinked(ctx, candidate.TransactionID)
		if err != nil {
			return "", err
		}
		if taken {
			continue
		}
		created, err := l.store.CreateLink(ctx, receipts.Link{
			DocumentID:    doc.ID,
			TransactionID: candidate.TransactionID,
			MatchType:     MatchTypeMatched,
			Confidence:    candidate.Score,
		})
		if err != nil {
			return "", err
		}
		if !created {
			return outcomeReused, nil
		}
		logger.Info("receipt linked",
			logging.String("transaction_id", candidate.TransactionID),
			logging.Amount("amount", doc.Header.Total.Decimal, doc.Header.Currency),
			logging.Float64("confidence", candidate.Score),
			logging.String(logging.FieldEventType, "link_matched"),
		)
		return MatchTypeMatched, nil
	}
	if !create {
		logger.Debug("no ledger candidates")
		return outcomeUnmatched, nil
	}

	currency := strings.TrimSpace(doc.Header.Currency)
	if currency == "" {
		currency = l.cfg.Currency
	}
	txnID, inserted, err := l.ledger.EnsureTransaction(ctx, ledger.Transaction{
		Date:           doc.Header.DocumentDate,
		Counterparty:   counterparty(doc),
		Amount:         doc.Header.Total.Decimal.Neg(),
		Currency:       currency,
		Category:       l.cfg.Category,
		IdempotencyKey: ledger.IdempotencyKey(l.cfg.KeyPrefix, doc.ContentDigest, l.cfg.KeyMaxLength),
		Notes:          notes(doc),
	})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "create transaction", "", err)
	}
	created, err := l.store.CreateLink(ctx, receipts.Link{
		DocumentID:    doc.ID,
		TransactionID: txnID,
		MatchType:     MatchTypeCreated,
		Confidence:    1,
	})
	if err != nil {
		return "", err
	}
	if !created {
		return outcomeReused, nil
	}
	logger.Info("ledger transaction linked",
		logging.String("transaction_id", txnID),
		logging.Amount("amount", doc.Header.Total.Decimal.Neg(), currency),
		logging.Bool("inserted", inserted),
		logging.String(logging.FieldEventType, "link_created"),
	)
	return MatchTypeCreated, nil
}

func counterparty(doc *receipts.Document) string {
	if name := strings.TrimSpace(doc.Header.StoreName); name != "" {
		return name
	}
	return doc.Vendor
}

func notes(doc *receipts.Document) string {
	parts := []string{fmt.Sprintf("tally document %d", doc.ID)}
	if doc.Header.DocumentNumber != "" {
		parts = append(parts, "no. "+doc.Header.DocumentNumber)
	}
	return strings.Join(parts, ", ")
}
