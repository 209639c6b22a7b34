// Package drift holds documents back when a vendor changes its layout.
//
// Every parse carries a structural fingerprint. The Guard looks the
// (vendor, fingerprint) pair up in the template registry: approved layouts
// pass, everything else is blocked until an operator reviews a sample and
// approves or rejects it. Approval requeues the documents the layout held.
package drift
