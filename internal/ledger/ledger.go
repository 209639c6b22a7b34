package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/config"
)

// ErrNotFound reports a transaction id the ledger does not know.
var ErrNotFound = errors.New("transaction not found")

// Transaction is one ledger entry. Amount is signed: expenses are negative.
type Transaction struct {
	ID             string
	Date           time.Time
	Counterparty   string
	Amount         decimal.Decimal
	Currency       string
	Category       string
	IdempotencyKey string
	Notes          string
}

// Query describes the receipt a matcher should find transactions for. Amount
// is the receipt total as a positive magnitude.
type Query struct {
	Date         time.Time
	Amount       decimal.Decimal
	Counterparty string
	WindowDays   int
}

// Candidate is a ranked match. Higher scores are better.
type Candidate struct {
	TransactionID string
	Date          time.Time
	Amount        decimal.Decimal
	Counterparty  string
	Score         float64
}

// Matcher ranks existing ledger transactions for a receipt.
type Matcher interface {
	Candidates(ctx context.Context, q Query) ([]Candidate, error)
}

// Ledger combines matching with idempotent transaction creation.
type Ledger interface {
	Matcher
	// EnsureTransaction inserts txn unless a transaction with the same
	// idempotency key exists, in which case that transaction's id is
	// returned and created is false.
	EnsureTransaction(ctx context.Context, txn Transaction) (id string, created bool, err error)
	Transaction(ctx context.Context, id string) (*Transaction, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the ledger selected by cfg.Ledger.Driver.
func Open(cfg *config.Config) (Ledger, error) {
	switch cfg.Ledger.Driver {
	case config.LedgerSQLite:
		return OpenSQLite(cfg.LedgerPath())
	case config.LedgerPostgres:
		return OpenPostgres(cfg.Ledger.DSN, cfg.Ledger.Table, cfg.Ledger.MatchFunction)
	default:
		return nil, fmt.Errorf("ledger driver %q not supported", cfg.Ledger.Driver)
	}
}

// IdempotencyKey derives the ledger key for a document from its content
// digest, truncated to maxLength.
func IdempotencyKey(prefix, digest string, maxLength int) string {
	key := prefix + digest
	if maxLength > 0 && len(key) > maxLength {
		key = key[:maxLength]
	}
	return key
}

const dateLayout = "2006-01-02"
