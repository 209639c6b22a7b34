// Package ledger is the boundary to the financial transaction store that
// accepted receipts are linked against.
//
// A Ledger ranks existing transactions for a receipt (Matcher) and creates
// missing ones idempotently (EnsureTransaction). The SQLite implementation
// backs local installs and tests; the Postgres implementation delegates
// ranking to a server-side SQL function and keeps the matching algorithm
// opaque to this module.
package ledger
