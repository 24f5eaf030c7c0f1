package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"depenses/internal/amqp"
	"depenses/internal/core"
	"depenses/internal/storage"
	"depenses/internal/view"
)

// snapshotTimeout bounds a shared List once it no longer follows any caller.
const snapshotTimeout = 30 * time.Second

// EventPublisher announces store changes. amqp.Client implements it.
type EventPublisher interface {
	Publish(ctx context.Context, ev amqp.ExpenseEvent) error
}

// LabelResult reports a bulk label operation. NoOp is set when no record
// carried the label.
type LabelResult struct {
	Affected int64 `json:"affected"`
	NoOp     bool  `json:"noOp"`
}

// ExpenseService orchestrates expense operations across the store and AMQP.
// The store is the source of truth; publishing is best effort.
type ExpenseService struct {
	store     storage.Store
	publisher EventPublisher
	snapshots singleflight.Group
}

// NewExpenseService wires the service. publisher may be nil.
func NewExpenseService(store storage.Store, publisher EventPublisher) *ExpenseService {
	return &ExpenseService{
		store:     store,
		publisher: publisher,
	}
}

// Create validates an entry, converts it to base currency and stores it.
func (s *ExpenseService) Create(ctx context.Context, n core.NewExpense) (core.Expense, error) {
	e, err := n.Expense()
	if err != nil {
		return core.Expense{}, err
	}
	created, err := s.store.Create(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.publish(ctx, amqp.NewExpenseEvent(amqp.ExpenseCreated, created.ID, version(created)))
	return created, nil
}

func (s *ExpenseService) Get(ctx context.Context, id string) (core.Expense, error) {
	return s.store.Get(ctx, id)
}

// Update applies a partial edit. An empty patch returns the record unchanged.
func (s *ExpenseService) Update(ctx context.Context, id string, p core.ExpensePatch) (core.Expense, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	u, err := p.Resolve(current)
	if err != nil {
		return core.Expense{}, err
	}
	if u.IsEmpty() {
		return current, nil
	}
	return s.update(ctx, id, u)
}

// ClearBalance marks the expense as settled.
func (s *ExpenseService) ClearBalance(ctx context.Context, id string) (core.Expense, error) {
	paid := core.Paid
	var zero int64
	return s.update(ctx, id, core.ExpenseUpdate{BalanceStatus: &paid, BalanceAmount: &zero})
}

func (s *ExpenseService) update(ctx context.Context, id string, u core.ExpenseUpdate) (core.Expense, error) {
	updated, err := s.store.Update(ctx, id, u)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	s.publish(ctx, amqp.NewExpenseEvent(amqp.ExpenseUpdated, updated.ID, version(updated)))
	return updated, nil
}

// Delete removes one expense. It returns core.ErrNotFound when nothing was
// deleted.
func (s *ExpenseService) Delete(ctx context.Context, id string) error {
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if !ok {
		return fmt.Errorf("delete expense %s: %w", id, core.ErrNotFound)
	}
	s.publish(ctx, amqp.NewExpenseEvent(amqp.ExpenseDeleted, id, 0))
	return nil
}

// RenameLabel relabels every expense with oldLabel. An existing newLabel is
// merged into.
func (s *ExpenseService) RenameLabel(ctx context.Context, oldLabel, newLabel string) (LabelResult, error) {
	from, to, noop, err := storage.CheckRename(oldLabel, newLabel)
	if err != nil {
		return LabelResult{}, err
	}
	if noop {
		return LabelResult{NoOp: true}, nil
	}
	n, err := s.store.RenameLabel(ctx, from, to)
	if err != nil {
		return LabelResult{}, fmt.Errorf("rename label: %w", err)
	}
	if n == 0 {
		slog.InfoContext(ctx, "Rename matched no expense", "label", from)
		return LabelResult{NoOp: true}, nil
	}
	s.publish(ctx, amqp.NewLabelEvent(amqp.LabelRenamed, from, to))
	return LabelResult{Affected: n}, nil
}

// DeleteByLabel removes every expense with label, trimmed like RenameLabel
// trims its arguments.
func (s *ExpenseService) DeleteByLabel(ctx context.Context, label string) (LabelResult, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return LabelResult{}, fmt.Errorf("delete label: %w", core.ErrEmptyLabel)
	}
	n, err := s.store.DeleteByLabel(ctx, label)
	if err != nil {
		return LabelResult{}, fmt.Errorf("delete label: %w", err)
	}
	if n == 0 {
		return LabelResult{NoOp: true}, nil
	}
	s.publish(ctx, amqp.NewLabelEvent(amqp.LabelDeleted, label, ""))
	return LabelResult{Affected: n}, nil
}

func (s *ExpenseService) Labels(ctx context.Context) ([]string, error) {
	return s.store.Labels(ctx)
}

// Snapshot lists every expense. Concurrent callers share one store round
// trip; nothing is cached once it returns. The shared call is detached from
// the caller that started it, and each caller stops waiting when its own ctx
// ends.
func (s *ExpenseService) Snapshot(ctx context.Context) ([]core.Expense, error) {
	ch := s.snapshots.DoChan("snapshot", func() (any, error) {
		listCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotTimeout)
		defer cancel()
		return s.store.List(listCtx)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list expenses: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("list expenses: %w", res.Err)
		}
		records := res.Val.([]core.Expense)
		if res.Shared {
			// Callers must not see each other's slice.
			records = append([]core.Expense(nil), records...)
		}
		return records, nil
	}
}

// View computes the grouped view on a fresh snapshot.
func (s *ExpenseService) View(ctx context.Context, q view.Query) (view.Result, error) {
	records, err := s.Snapshot(ctx)
	if err != nil {
		return view.Result{}, err
	}
	return view.ComputeChecked(records, q)
}

// ViewSession computes the view for a client holding sess. Pagination restarts
// when the records, search or filters differ from the last call. The pending
// accordion command is resolved against the computed days, and a search or
// filter expands every group only on the render where it changed.
func (s *ExpenseService) ViewSession(ctx context.Context, q view.Query, sess view.Session) (view.Result, view.Session, error) {
	records, err := s.Snapshot(ctx)
	if err != nil {
		return view.Result{}, sess, err
	}
	sess, changed := sess.Sync(view.Fingerprint(records, q.Search, q.Filters))
	q.Pages = sess.Pages
	res, err := view.ComputeChecked(records, q)
	if err != nil {
		return view.Result{}, sess, err
	}
	sess.Accordion = sess.Accordion.Apply(res.Days, q.Search, q.Filters, changed)
	return res, sess, nil
}

func (s *ExpenseService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *ExpenseService) publish(ctx context.Context, ev amqp.ExpenseEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping event", "type", ev.Type)
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		// Don't fail the request - the store already has the change
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"type", ev.Type, "id", ev.ID, "label", ev.Label, "error", err)
	}
}

// Close closes both the store and the publisher.
func (s *ExpenseService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close expense service: %w", err)
	}
	return nil
}

// version orders events about the same record.
func version(e core.Expense) int64 {
	return e.UpdatedAt.UnixMilli()
}
