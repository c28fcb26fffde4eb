package sheets

import (
	"context"

	"fincon/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerExporter mirrors a user's ledger into an external spreadsheet.
	LedgerExporter interface {
		// ExportLedger replaces the user's exported ledger with txs and totals.
		ExportLedger(ctx context.Context, userID string, txs []core.Transaction, totals core.Totals) error
		// RemoveLedger drops the user's export. Missing exports are not an error.
		RemoveLedger(ctx context.Context, userID string) error
	}
)
