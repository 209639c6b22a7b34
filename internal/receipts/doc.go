// Package receipts persists collected documents, their extracted text, parse
// outcomes, layout templates and ledger links in SQLite.
//
// The Store is the single source of truth for the document lifecycle
// (pending, skipped, failed, needs_review, success). Every status change is a
// compare-and-set update guarded by the current status, and every idempotency
// guarantee of the pipeline rests on a UNIQUE constraint here: content digest
// for documents, (vendor, hash) for templates, document id for links.
//
// Documents are never deleted. Schema changes ship as numbered files under
// migrations/ and are applied on Open.
package receipts
