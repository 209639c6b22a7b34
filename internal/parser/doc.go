// Package parser turns extracted receipt text into structured receipts.
//
// Each vendor parser classifies the document type, extracts header fields
// with an ordered list of declarative rules, scans line items, and
// fingerprints the layout from the labels it recognizes. Parsers never fail;
// missing fields are reported in Receipt.ParseErrors and callers decide the
// document's status.
package parser
