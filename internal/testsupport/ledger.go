package testsupport

import (
	"testing"

	"tally/internal/config"
	"tally/internal/ledger"
)

// MustOpenLedger opens the SQLite ledger configured for cfg and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.SQLite {
	t.Helper()

	l, err := ledger.OpenSQLite(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("ledger.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		l.Close()
	})
	return l
}
