// Package linker attaches accepted receipts to ledger transactions.
//
// LinkUnlinked only matches receipts against transactions that already exist.
// CreateForUnlinked additionally creates a transaction for receipts nothing
// matched, keyed by the document's content digest so repeated runs reuse it.
package linker
