package memory

import (
	"context"
	"sort"
	"sync"

	"depenses/internal/core"
	ports "depenses/internal/sheets"
)

// Exporter keeps the mirrored rows in memory. It backs dry runs of the sync
// worker and tests.
type Exporter struct {
	mu   sync.Mutex
	rows map[string]core.Expense
}

var _ ports.Exporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{rows: make(map[string]core.Expense)}
}

func (x *Exporter) Upsert(_ context.Context, e core.Expense) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.rows[e.ID] = e
	return nil
}

func (x *Exporter) Remove(_ context.Context, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.rows, id)
	return nil
}

func (x *Exporter) RenameLabel(_ context.Context, oldLabel, newLabel string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, e := range x.rows {
		if e.Label == oldLabel {
			e.Label = newLabel
			x.rows[id] = e
		}
	}
	return nil
}

func (x *Exporter) RemoveLabel(_ context.Context, label string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, e := range x.rows {
		if e.Label == label {
			delete(x.rows, id)
		}
	}
	return nil
}

func (x *Exporter) ReplaceAll(_ context.Context, records []core.Expense) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.rows = make(map[string]core.Expense, len(records))
	for _, e := range records {
		x.rows[e.ID] = e
	}
	return nil
}

// Rows returns the mirrored expenses ordered by ID.
func (x *Exporter) Rows() []core.Expense {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]core.Expense, 0, len(x.rows))
	for _, e := range x.rows {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
