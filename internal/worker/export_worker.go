package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"fincon/internal/amqp"
	"fincon/internal/core"
	"fincon/internal/docstore"
	"fincon/internal/sheets"
)

// ExportWorker mirrors ledgers into spreadsheets in response to change
// messages. Users whose export failed are remembered and retried by
// ProcessPending.
type ExportWorker struct {
	transactions docstore.TransactionLister
	exporter     sheets.LedgerExporter

	mu      sync.Mutex
	seq     uint64
	pending map[string]pendingExport
}

// pendingExport is a failed change awaiting retry. seq changes every time
// the entry is replaced.
type pendingExport struct {
	kind amqp.ChangeKind
	seq  uint64
}

func NewExportWorker(transactions docstore.TransactionLister, exporter sheets.LedgerExporter) *ExportWorker {
	return &ExportWorker{
		transactions: transactions,
		exporter:     exporter,
		pending:      make(map[string]pendingExport),
	}
}

// HandleChange processes a single change message from AMQP.
func (w *ExportWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	slog.InfoContext(ctx, "Processing change message",
		"user_id", msg.UserID,
		"kind", msg.Kind)

	if err := w.sync(ctx, msg.UserID, msg.Kind); err != nil {
		w.markPending(msg.UserID, msg.Kind)
		return err
	}
	w.clearPending(msg.UserID, msg.Kind)
	return nil
}

func (w *ExportWorker) sync(ctx context.Context, userID string, kind amqp.ChangeKind) error {
	if kind == amqp.ChangeAccountDeleted {
		if err := w.exporter.RemoveLedger(ctx, userID); err != nil {
			return fmt.Errorf("remove ledger export: %w", err)
		}
		return nil
	}

	txs, err := w.transactions.List(ctx, userID)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}
	if err := w.exporter.ExportLedger(ctx, userID, txs, core.Aggregate(txs)); err != nil {
		return fmt.Errorf("export ledger: %w", err)
	}
	return nil
}

// ProcessPending retries exports that failed earlier. This is a backup
// mechanism in case requeued messages are lost.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	w.mu.Lock()
	batch := make(map[string]pendingExport, len(w.pending))
	for user, p := range w.pending {
		batch[user] = p
	}
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	slog.InfoContext(ctx, "Retrying pending exports", "count", len(batch))

	failed := 0
	for user, p := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.sync(ctx, user, p.kind); err != nil {
			slog.ErrorContext(ctx, "Pending export failed", "user_id", user, "error", err)
			failed++
			continue
		}
		w.clearRetried(user, p.seq)
	}
	if failed > 0 {
		return fmt.Errorf("%d pending exports still failing", failed)
	}
	return nil
}

// Pending reports how many users await a retry.
func (w *ExportWorker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *ExportWorker) markPending(userID string, kind amqp.ChangeKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// A deletion supersedes any earlier export request.
	if w.pending[userID].kind == amqp.ChangeAccountDeleted {
		return
	}
	w.seq++
	w.pending[userID] = pendingExport{kind: kind, seq: w.seq}
}

// clearPending drops the entry after a change of kind was handled. A
// successful export does not settle a pending deletion.
func (w *ExportWorker) clearPending(userID string, kind amqp.ChangeKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending[userID].kind == amqp.ChangeAccountDeleted && kind != amqp.ChangeAccountDeleted {
		return
	}
	delete(w.pending, userID)
}

// clearRetried drops the entry only if it was not replaced while the retry
// ran.
func (w *ExportWorker) clearRetried(userID string, seq uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[userID]; ok && p.seq == seq {
		delete(w.pending, userID)
	}
}
