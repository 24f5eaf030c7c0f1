package sheets

import (
	"context"

	"depenses/internal/core"
)

// Ports for outbound adapters.
type (
	// Exporter mirrors the record store into an external sheet, one row per
	// expense keyed by ID. Every method is idempotent.
	Exporter interface {
		Upsert(ctx context.Context, e core.Expense) error
		Remove(ctx context.Context, id string) error
		RenameLabel(ctx context.Context, oldLabel, newLabel string) error
		RemoveLabel(ctx context.Context, label string) error
		// ReplaceAll overwrites the mirror with records.
		ReplaceAll(ctx context.Context, records []core.Expense) error
	}
)
