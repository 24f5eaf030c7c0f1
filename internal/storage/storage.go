// Package storage defines the record store contract and its SQLite backend.
// Other backends live in subpackages (memory, mongo).
package storage

import (
	"context"
	"fmt"
	"strings"

	"depenses/internal/core"
)

// Store is the CRUD contract every backend implements. List returns records
// most recent date first. Get and Update return core.ErrNotFound for unknown
// IDs; connectivity problems wrap core.ErrStoreUnavailable.
type Store interface {
	List(ctx context.Context) ([]core.Expense, error)
	Get(ctx context.Context, id string) (core.Expense, error)
	// Create assigns ID, CreatedAt and UpdatedAt and returns the stored record.
	Create(ctx context.Context, e core.Expense) (core.Expense, error)
	// Update applies u and refreshes UpdatedAt.
	Update(ctx context.Context, id string, u core.ExpenseUpdate) (core.Expense, error)
	// Delete reports false when the record was already gone.
	Delete(ctx context.Context, id string) (bool, error)
	// RenameLabel relabels every record carrying oldLabel. Renaming onto an
	// existing label merges the two.
	RenameLabel(ctx context.Context, oldLabel, newLabel string) (int64, error)
	DeleteByLabel(ctx context.Context, label string) (int64, error)
	// Labels returns the distinct labels, sorted.
	Labels(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// CheckRename validates the arguments of a label rename. It reports noop when
// nothing would change.
func CheckRename(oldLabel, newLabel string) (from, to string, noop bool, err error) {
	from = strings.TrimSpace(oldLabel)
	to = strings.TrimSpace(newLabel)
	if from == "" || to == "" {
		return "", "", false, fmt.Errorf("rename label: %w", core.ErrEmptyLabel)
	}
	return from, to, from == to, nil
}

// Unavailable wraps err as a connectivity failure of op.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, core.ErrStoreUnavailable, err)
}
