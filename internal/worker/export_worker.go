// Package worker moves invoices from SQLite to the Google Sheets ledger.
// Events arrive over AMQP; a periodic catch-up pass drains anything a
// lost message left behind.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fatture/internal/amqp"
	"fatture/internal/core"
	"fatture/internal/storage"
)

// Ledger is the export destination. *sheets.Client implements it.
type Ledger interface {
	AppendInvoice(ctx context.Context, inv core.Invoice) error
}

type ExportWorker struct {
	storage   *storage.SQLiteRepository
	ledger    Ledger
	batchSize int
}

func NewExportWorker(storage *storage.SQLiteRepository, ledger Ledger, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:   storage,
		ledger:    ledger,
		batchSize: batchSize,
	}
}

// HandleEvent processes a single invoice event from AMQP.
func (w *ExportWorker) HandleEvent(ctx context.Context, msg *amqp.InvoiceEventMessage) error {
	slog.InfoContext(ctx, "Processing invoice event", "id", msg.ID, "kind", msg.Kind)

	if msg.Kind == amqp.EventInvoiceDeleted {
		// The ledger is append-only; deletions stay visible in the
		// database only.
		return nil
	}

	inv, err := w.storage.GetInvoice(ctx, msg.ID)
	if err != nil {
		// The row may already be gone when events arrive late.
		slog.WarnContext(ctx, "Invoice missing for export, skipping", "id", msg.ID, "error", err)
		return nil
	}

	if err := w.ledger.AppendInvoice(ctx, inv); err != nil {
		return fmt.Errorf("export invoice %s: %w", inv.ID, err)
	}

	if err := w.storage.MarkExported(ctx, inv.ID); err != nil {
		return fmt.Errorf("mark invoice %s exported: %w", inv.ID, err)
	}

	return nil
}

// ProcessPending exports invoices the event stream missed. Backup path
// in case AMQP messages are lost.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.UnexportedInvoices(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("load unexported invoices: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Catching up unexported invoices", "count", len(pending))

	for _, inv := range pending {
		if err := w.ledger.AppendInvoice(ctx, inv); err != nil {
			return fmt.Errorf("export invoice %s: %w", inv.ID, err)
		}
		if err := w.storage.MarkExported(ctx, inv.ID); err != nil {
			return fmt.Errorf("mark invoice %s exported: %w", inv.ID, err)
		}
	}

	return nil
}

// RunCatchUp runs ProcessPending on a fixed interval until ctx ends.
func (w *ExportWorker) RunCatchUp(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Catch-up pass failed", "error", err)
			}
		}
	}
}
