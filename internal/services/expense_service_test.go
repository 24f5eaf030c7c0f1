package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"depenses/internal/amqp"
	"depenses/internal/core"
	"depenses/internal/storage"
	"depenses/internal/storage/memory"
	"depenses/internal/view"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.ExpenseEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev amqp.ExpenseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func newService(t *testing.T) (*ExpenseService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc := NewExpenseService(memory.New(), pub)
	t.Cleanup(func() { svc.Close() })
	return svc, pub
}

var march10 = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func entry(label string, amount int64, cur core.Currency) core.NewExpense {
	return core.NewExpense{
		Amount:   decimal.NewFromInt(amount),
		Currency: cur,
		Label:    label,
		Date:     march10,
	}
}

func TestCreateNormalisesAndPublishes(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService(t)

	e, err := svc.Create(ctx, entry(" Taxi ", 2000, core.Ariary))
	require.NoError(t, err)
	require.Equal(t, int64(10000), e.Amount)
	require.Equal(t, "Taxi", e.Label)
	require.Equal(t, []amqp.EventType{amqp.ExpenseCreated}, pub.types())
	require.Equal(t, e.ID, pub.events[0].ID)
}

func TestCreateRejectsInvalid(t *testing.T) {
	svc, pub := newService(t)
	_, err := svc.Create(context.Background(), entry("", 10, core.FMG))
	require.ErrorIs(t, err, core.ErrInvalidInput)
	require.Empty(t, pub.types())
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	svc, pub := newService(t)
	pub.err = errors.New("broker down")

	_, err := svc.Create(context.Background(), entry("Taxi", 100, core.FMG))
	require.NoError(t, err)
}

func TestNilPublisher(t *testing.T) {
	svc := NewExpenseService(memory.New(), nil)
	_, err := svc.Create(context.Background(), entry("Taxi", 100, core.FMG))
	require.NoError(t, err)
	require.NoError(t, svc.Close())
}

func TestUpdateAndClearBalance(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService(t)
	e, err := svc.Create(ctx, entry("Lunch", 100, core.Ariary))
	require.NoError(t, err)

	status := core.OwedToMe
	balance := decimal.NewFromInt(40)
	updated, err := svc.Update(ctx, e.ID, core.ExpensePatch{BalanceStatus: &status, BalanceAmount: &balance})
	require.NoError(t, err)
	require.Equal(t, core.OwedToMe, updated.BalanceStatus)
	require.Equal(t, int64(200), updated.BalanceAmount)
	require.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	cleared, err := svc.ClearBalance(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, core.Paid, cleared.BalanceStatus)
	require.Zero(t, cleared.BalanceAmount)

	require.Equal(t, []amqp.EventType{amqp.ExpenseCreated, amqp.ExpenseUpdated, amqp.ExpenseUpdated}, pub.types())

	_, err = svc.ClearBalance(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestEmptyPatchIsNoOp(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService(t)
	e, err := svc.Create(ctx, entry("Lunch", 100, core.FMG))
	require.NoError(t, err)

	got, err := svc.Update(ctx, e.ID, core.ExpensePatch{})
	require.NoError(t, err)
	require.Equal(t, e, got)
	require.Len(t, pub.types(), 1)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService(t)
	e, err := svc.Create(ctx, entry("Lunch", 100, core.FMG))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, e.ID))
	require.ErrorIs(t, svc.Delete(ctx, e.ID), core.ErrNotFound)
	require.Equal(t, []amqp.EventType{amqp.ExpenseCreated, amqp.ExpenseDeleted}, pub.types())
}

func TestLabelOperations(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService(t)
	for _, l := range []string{"Coffee", "Coffee", "Café"} {
		_, err := svc.Create(ctx, entry(l, 100, core.FMG))
		require.NoError(t, err)
	}

	res, err := svc.RenameLabel(ctx, "Coffee", "Café")
	require.NoError(t, err)
	require.Equal(t, LabelResult{Affected: 2}, res)

	res, err = svc.RenameLabel(ctx, "Coffee", "Tea")
	require.NoError(t, err)
	require.True(t, res.NoOp)

	res, err = svc.RenameLabel(ctx, "Café", "Café")
	require.NoError(t, err)
	require.True(t, res.NoOp)

	_, err = svc.RenameLabel(ctx, "Café", "")
	require.ErrorIs(t, err, core.ErrInvalidInput)

	labels, err := svc.Labels(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Café"}, labels)

	res, err = svc.DeleteByLabel(ctx, "Café")
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Affected)

	res, err = svc.DeleteByLabel(ctx, "Café")
	require.NoError(t, err)
	require.True(t, res.NoOp)

	types := pub.types()
	require.Equal(t, amqp.LabelRenamed, types[3])
	require.Equal(t, amqp.LabelDeleted, types[4])
	require.Len(t, types, 5)
}

func TestViewUsesFreshSnapshot(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.Create(ctx, entry("Groceries", 10000, core.FMG))
	require.NoError(t, err)

	res, err := svc.View(ctx, view.Query{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Matched)
	require.Equal(t, int64(10000), res.Total)

	_, err = svc.Create(ctx, entry("Coffee", 2500, core.FMG))
	require.NoError(t, err)

	res, err = svc.View(ctx, view.Query{})
	require.NoError(t, err)
	require.Equal(t, int64(12500), res.Total)
	require.Equal(t, "Groceries", res.Days[0].Aggregates[0].Label)
}

func TestSnapshotConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.Create(ctx, entry("Groceries", 10000, core.FMG))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := svc.Snapshot(ctx)
			if err == nil && len(records) == 1 {
				records[0].Label = "mutated"
			}
		}()
	}
	wg.Wait()

	records, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, "Groceries", records[0].Label)
}

func TestViewSessionResetsPagesOnChange(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	for i := 0; i < 12; i++ {
		_, err := svc.Create(ctx, entry(fmt.Sprintf("Label %02d", i), int64(100+i), core.FMG))
		require.NoError(t, err)
	}
	day := core.DayKey(march10)

	sess := view.NewSession()
	_, sess, err := svc.ViewSession(ctx, view.Query{}, sess)
	require.NoError(t, err)

	sess.Pages = sess.Pages.SetPage(day, 2)
	res, sess, err := svc.ViewSession(ctx, view.Query{}, sess)
	require.NoError(t, err)
	require.Equal(t, 2, res.Days[0].Page.CurrentPage)
	require.Len(t, res.Days[0].Visible, 2)

	res, _, err = svc.ViewSession(ctx, view.Query{Search: "label"}, sess)
	require.NoError(t, err)
	require.Equal(t, 1, res.Days[0].Page.CurrentPage)
}

func TestViewSessionResolvesAccordion(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.Create(ctx, entry("Coffee", 100, core.FMG))
	require.NoError(t, err)

	sess := view.NewSession()
	sess.Accordion.Command = view.CommandAllOpen
	_, sess, err = svc.ViewSession(ctx, view.Query{}, sess)
	require.NoError(t, err)
	require.Equal(t, view.CommandDefault, sess.Accordion.Command)
	require.True(t, sess.Accordion.IsOpen(view.GroupKey(march10, "Coffee")))
}

func TestViewSessionCollapseSurvivesSearch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.Create(ctx, entry("Coffee", 100, core.FMG))
	require.NoError(t, err)
	key := view.GroupKey(march10, "Coffee")
	q := view.Query{Search: "cof"}

	_, sess, err := svc.ViewSession(ctx, q, view.NewSession())
	require.NoError(t, err)
	require.True(t, sess.Accordion.IsOpen(key))

	sess.Accordion = sess.Accordion.Toggle(key)
	_, sess, err = svc.ViewSession(ctx, q, sess)
	require.NoError(t, err)
	require.False(t, sess.Accordion.IsOpen(key))

	// New data under the same search expands again.
	_, err = svc.Create(ctx, entry("Coffee beans", 300, core.FMG))
	require.NoError(t, err)
	_, sess, err = svc.ViewSession(ctx, q, sess)
	require.NoError(t, err)
	require.True(t, sess.Accordion.IsOpen(key))
}

// gatedStore holds List until release is closed.
type gatedStore struct {
	storage.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) List(ctx context.Context) ([]core.Expense, error) {
	g.entered <- struct{}{}
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Store.List(ctx)
}

func TestSnapshotOutlivesCancelledCaller(t *testing.T) {
	ctx := context.Background()
	gate := &gatedStore{Store: memory.New(), entered: make(chan struct{}, 2), release: make(chan struct{})}
	svc := NewExpenseService(gate, nil)
	_, err := svc.Create(ctx, entry("Coffee", 100, core.FMG))
	require.NoError(t, err)

	firstCtx, cancelFirst := context.WithCancel(ctx)
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Snapshot(firstCtx)
		firstErr <- err
	}()
	<-gate.entered

	type result struct {
		records []core.Expense
		err     error
	}
	second := make(chan result, 1)
	go func() {
		records, err := svc.Snapshot(ctx)
		second <- result{records, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(gate.release)
	res := <-second
	require.NoError(t, res.err)
	require.Len(t, res.records, 1)
}

func TestDeleteByLabelTrims(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService(t)
	_, err := svc.Create(ctx, entry("Coffee", 100, core.FMG))
	require.NoError(t, err)

	res, err := svc.DeleteByLabel(ctx, " Coffee ")
	require.NoError(t, err)
	require.Equal(t, LabelResult{Affected: 1}, res)
	require.Equal(t, "Coffee", pub.events[len(pub.events)-1].Label)

	_, err = svc.DeleteByLabel(ctx, "   ")
	require.ErrorIs(t, err, core.ErrEmptyLabel)
}
