// Package collector pulls vendor documents from a mailbox source into the
// document store.
//
// Collection is idempotent: messages already seen are skipped by message id,
// and identical bytes are detected by SHA-256 digest before anything is
// written. Raw bytes go to the content-addressed blob store first; the
// document row is inserted last with status pending.
package collector
