package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"tally/internal/money"
)

// Postgres talks to a shared finance database. Candidate ranking happens in
// the configured SQL function, which must return
// (transaction_id, txn_date, amount, counterparty, score).
type Postgres struct {
	db            *sql.DB
	table         string
	matchFunction string
}

// OpenPostgres opens a pgx-backed connection pool. table and matchFunction
// must already be validated identifiers; they are interpolated into SQL.
func OpenPostgres(dsn, table, matchFunction string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Postgres{db: db, table: table, matchFunction: matchFunction}, nil
}

// Candidates calls the ranking function with (date, amount, counterparty, window_days).
func (p *Postgres) Candidates(ctx context.Context, q Query) ([]Candidate, error) {
	if q.Date.IsZero() {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx,
		fmt.Sprintf("SELECT transaction_id::text, txn_date, amount::text, COALESCE(counterparty, ''), score FROM %s($1::date, $2::numeric, $3::text, $4::int) ORDER BY score DESC", p.matchFunction),
		q.Date.Format(dateLayout), money.Format(q.Amount), q.Counterparty, q.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", p.matchFunction, err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c         Candidate
			amountRaw string
		)
		if err := rows.Scan(&c.TransactionID, &c.Date, &amountRaw, &c.Counterparty, &c.Score); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if c.Amount, err = decimal.NewFromString(amountRaw); err != nil {
			return nil, fmt.Errorf("candidate %s amount %q: %w", c.TransactionID, amountRaw, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// EnsureTransaction relies on the table's UNIQUE idempotency_key constraint.
func (p *Postgres) EnsureTransaction(ctx context.Context, txn Transaction) (string, bool, error) {
	if txn.IdempotencyKey == "" {
		return "", false, errors.New("ensure transaction: idempotency key required")
	}
	var id string
	err := p.db.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (txn_date, counterparty, amount, currency, category, idempotency_key, notes)
        VALUES ($1::date, $2, $3::numeric, $4, $5, $6, $7)
        ON CONFLICT (idempotency_key) DO NOTHING
        RETURNING id::text`, p.table),
		txn.Date.Format(dateLayout), nullable(txn.Counterparty), money.Format(txn.Amount), txn.Currency,
		nullable(txn.Category), txn.IdempotencyKey, nullable(txn.Notes),
	).Scan(&id)
	switch {
	case err == nil:
		return id, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, fmt.Errorf("insert transaction %s: %w", txn.IdempotencyKey, err)
	}
	if err := p.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id::text FROM %s WHERE idempotency_key = $1", p.table), txn.IdempotencyKey,
	).Scan(&id); err != nil {
		return "", false, fmt.Errorf("lookup transaction %s: %w", txn.IdempotencyKey, err)
	}
	return id, false, nil
}

func (p *Postgres) Transaction(ctx context.Context, id string) (*Transaction, error) {
	var (
		txn                                Transaction
		amountRaw                          string
		counterparty, category, key, notes sql.NullString
	)
	err := p.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id::text, txn_date, counterparty, amount::text, currency, category, idempotency_key, notes FROM %s WHERE id::text = $1", p.table),
		id,
	).Scan(&txn.ID, &txn.Date, &counterparty, &amountRaw, &txn.Currency, &category, &key, &notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	if txn.Amount, err = decimal.NewFromString(amountRaw); err != nil {
		return nil, fmt.Errorf("transaction %s amount %q: %w", id, amountRaw, err)
	}
	txn.Counterparty = counterparty.String
	txn.Category = category.String
	txn.IdempotencyKey = key.String
	txn.Notes = notes.String
	return &txn, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
