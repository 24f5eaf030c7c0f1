package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"depenses/internal/amqp"
	"depenses/internal/core"
	"depenses/internal/sheets"
	"depenses/internal/storage"
)

// SyncWorker mirrors store changes into the export sheet. Events only carry
// identities; record contents are always re-read from the store.
type SyncWorker struct {
	store    storage.Store
	exporter sheets.Exporter

	mu       sync.Mutex
	exported map[string]int64 // id -> last exported version
}

func NewSyncWorker(store storage.Store, exporter sheets.Exporter) *SyncWorker {
	return &SyncWorker{
		store:    store,
		exporter: exporter,
		exported: make(map[string]int64),
	}
}

// Handle applies one event to the sheet. It satisfies amqp.Handler.
func (w *SyncWorker) Handle(ctx context.Context, ev amqp.ExpenseEvent) error {
	slog.InfoContext(ctx, "Processing expense event",
		"type", ev.Type,
		"id", ev.ID,
		"label", ev.Label,
		"version", ev.Version)

	switch ev.Type {
	case amqp.ExpenseCreated, amqp.ExpenseUpdated:
		return w.syncExpense(ctx, ev)
	case amqp.ExpenseDeleted:
		if err := w.exporter.Remove(ctx, ev.ID); err != nil {
			return fmt.Errorf("remove expense %s from sheet: %w", ev.ID, err)
		}
		w.forget(ev.ID)
		return nil
	case amqp.LabelRenamed:
		if err := w.exporter.RenameLabel(ctx, ev.Label, ev.NewLabel); err != nil {
			return fmt.Errorf("rename label in sheet: %w", err)
		}
		return nil
	case amqp.LabelDeleted:
		if err := w.exporter.RemoveLabel(ctx, ev.Label); err != nil {
			return fmt.Errorf("remove label from sheet: %w", err)
		}
		return nil
	default:
		slog.WarnContext(ctx, "Ignoring unknown event type", "type", ev.Type)
		return nil
	}
}

func (w *SyncWorker) syncExpense(ctx context.Context, ev amqp.ExpenseEvent) error {
	if w.isStale(ev.ID, ev.Version) {
		slog.DebugContext(ctx, "Skipping stale event", "id", ev.ID, "version", ev.Version)
		return nil
	}

	e, err := w.store.Get(ctx, ev.ID)
	if errors.Is(err, core.ErrNotFound) {
		// Deleted since the event was published; the delete event follows.
		slog.InfoContext(ctx, "Expense no longer exists, skipping", "id", ev.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}

	if err := w.exporter.Upsert(ctx, e); err != nil {
		return fmt.Errorf("export expense %s: %w", e.ID, err)
	}
	w.remember(e.ID, e.UpdatedAt.UnixMilli())

	slog.InfoContext(ctx, "Successfully synced expense",
		"id", e.ID,
		"label", e.Label,
		"amount", e.Amount)
	return nil
}

// Resync rewrites the whole sheet from the store. It recovers from lost
// messages and worker downtime.
func (w *SyncWorker) Resync(ctx context.Context) error {
	records, err := w.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list expenses for resync: %w", err)
	}
	if err := w.exporter.ReplaceAll(ctx, records); err != nil {
		return fmt.Errorf("replace sheet: %w", err)
	}

	w.mu.Lock()
	w.exported = make(map[string]int64, len(records))
	for _, e := range records {
		w.exported[e.ID] = e.UpdatedAt.UnixMilli()
	}
	w.mu.Unlock()

	slog.InfoContext(ctx, "Resync completed", "count", len(records))
	return nil
}

func (w *SyncWorker) isStale(id string, version int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.exported[id]
	return ok && version > 0 && version < last
}

func (w *SyncWorker) remember(id string, version int64) {
	w.mu.Lock()
	w.exported[id] = version
	w.mu.Unlock()
}

func (w *SyncWorker) forget(id string) {
	w.mu.Lock()
	delete(w.exported, id)
	w.mu.Unlock()
}
