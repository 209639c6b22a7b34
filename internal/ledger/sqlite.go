package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"tally/internal/money"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    txn_date TEXT NOT NULL,
    counterparty TEXT,
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    category TEXT,
    idempotency_key TEXT UNIQUE,
    notes TEXT,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(txn_date);`

// amountTolerance is the largest difference between a receipt total and a
// transaction amount that still counts as the same payment.
var amountTolerance = decimal.RequireFromString("0.01")

// SQLite is a self-contained ledger stored in a local database file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates the ledger database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000", sqliteSchema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare ledger db: %w", err)
		}
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// EnsureTransaction inserts txn once per idempotency key.
func (l *SQLite) EnsureTransaction(ctx context.Context, txn Transaction) (string, bool, error) {
	if strings.TrimSpace(txn.IdempotencyKey) == "" {
		return "", false, errors.New("ensure transaction: idempotency key required")
	}
	id := uuid.NewString()
	var returned string
	err := l.db.QueryRowContext(ctx,
		`INSERT INTO transactions (id, txn_date, counterparty, amount, currency, category, idempotency_key, notes, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(idempotency_key) DO NOTHING
        RETURNING id`,
		id, txn.Date.Format(dateLayout), nullable(txn.Counterparty), money.Format(txn.Amount), txn.Currency,
		nullable(txn.Category), txn.IdempotencyKey, nullable(txn.Notes), l.now().UTC().Format(time.RFC3339Nano),
	).Scan(&returned)
	switch {
	case err == nil:
		return returned, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, fmt.Errorf("insert transaction %s: %w", txn.IdempotencyKey, err)
	}

	if err := l.db.QueryRowContext(ctx,
		"SELECT id FROM transactions WHERE idempotency_key = ?", txn.IdempotencyKey,
	).Scan(&returned); err != nil {
		return "", false, fmt.Errorf("lookup transaction %s: %w", txn.IdempotencyKey, err)
	}
	return returned, false, nil
}

// Record inserts a transaction without an idempotency key, as a bank import would.
func (l *SQLite) Record(ctx context.Context, txn Transaction) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO transactions (id, txn_date, counterparty, amount, currency, category, notes, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, txn.Date.Format(dateLayout), nullable(txn.Counterparty), money.Format(txn.Amount), txn.Currency,
		nullable(txn.Category), nullable(txn.Notes), l.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("record transaction: %w", err)
	}
	return id, nil
}

// Candidates returns transactions whose magnitude equals q.Amount within a
// cent and whose date lies within q.WindowDays of q.Date. Closer dates and
// matching counterparties rank first.
func (l *SQLite) Candidates(ctx context.Context, q Query) ([]Candidate, error) {
	if q.Date.IsZero() {
		return nil, nil
	}
	from := q.Date.AddDate(0, 0, -q.WindowDays).Format(dateLayout)
	to := q.Date.AddDate(0, 0, q.WindowDays).Format(dateLayout)
	rows, err := l.db.QueryContext(ctx,
		"SELECT id, txn_date, COALESCE(counterparty, ''), amount FROM transactions WHERE txn_date BETWEEN ? AND ? ORDER BY txn_date, id",
		from, to)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c         Candidate
			dateRaw   string
			amountRaw string
		)
		if err := rows.Scan(&c.TransactionID, &dateRaw, &c.Counterparty, &amountRaw); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if c.Date, err = time.Parse(dateLayout, dateRaw); err != nil {
			continue
		}
		if c.Amount, err = decimal.NewFromString(amountRaw); err != nil {
			continue
		}
		if !money.Within(c.Amount.Abs(), q.Amount, amountTolerance) {
			continue
		}
		c.Score = score(q, c)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func score(q Query, c Candidate) float64 {
	days := math.Abs(c.Date.Sub(q.Date).Hours() / 24)
	dateScore := 1 - days/float64(q.WindowDays+1)
	partyScore := 0.0
	want := strings.ToLower(strings.TrimSpace(q.Counterparty))
	got := strings.ToLower(strings.TrimSpace(c.Counterparty))
	if want != "" && got != "" && (strings.Contains(got, want) || strings.Contains(want, got)) {
		partyScore = 1
	}
	return math.Round((0.8*dateScore+0.2*partyScore)*1000) / 1000
}

// Transaction loads one transaction by id.
func (l *SQLite) Transaction(ctx context.Context, id string) (*Transaction, error) {
	var (
		txn                           Transaction
		dateRaw, amountRaw            string
		counterparty, category, notes sql.NullString
		key                           sql.NullString
	)
	err := l.db.QueryRowContext(ctx,
		"SELECT id, txn_date, counterparty, amount, currency, category, idempotency_key, notes FROM transactions WHERE id = ?", id,
	).Scan(&txn.ID, &dateRaw, &counterparty, &amountRaw, &txn.Currency, &category, &key, &notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	txn.Date, _ = time.Parse(dateLayout, dateRaw)
	txn.Amount, _ = decimal.NewFromString(amountRaw)
	txn.Counterparty = counterparty.String
	txn.Category = category.String
	txn.IdempotencyKey = key.String
	txn.Notes = notes.String
	return &txn, nil
}

// Count returns the number of stored transactions.
func (l *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM transactions").Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (l *SQLite) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func (l *SQLite) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func nullable(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
