// Package storetest is the behaviour suite shared by every storage backend.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"depenses/internal/core"
	"depenses/internal/storage"
)

// Factory returns an empty store; the suite closes it.
type Factory func(t *testing.T) storage.Store

func expense(label string, amount int64, day int) core.Expense {
	return core.Expense{
		Amount:        amount,
		Currency:      core.FMG,
		Label:         label,
		Date:          time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
		BalanceStatus: core.Paid,
	}
}

// Run exercises the full Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	open := func(t *testing.T) storage.Store {
		s := newStore(t)
		t.Cleanup(func() { s.Close() })
		return s
	}

	t.Run("CreateAssignsIdentity", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		e, err := s.Create(ctx, expense("Groceries", 10000, 10))
		require.NoError(t, err)
		require.NotEmpty(t, e.ID)
		require.False(t, e.CreatedAt.IsZero())
		require.Equal(t, e.CreatedAt, e.UpdatedAt)

		got, err := s.Get(ctx, e.ID)
		require.NoError(t, err)
		require.Equal(t, e.ID, got.ID)
		require.Equal(t, int64(10000), got.Amount)
		require.Equal(t, "Groceries", got.Label)
		require.True(t, e.Date.Equal(got.Date))
	})

	t.Run("CreateRejectsInvalid", func(t *testing.T) {
		s := open(t)
		_, err := s.Create(context.Background(), expense(" ", 1, 1))
		require.ErrorIs(t, err, core.ErrInvalidInput)
	})

	t.Run("GetUnknown", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(context.Background(), "missing")
		require.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("ListNewestDayFirst", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		for _, day := range []int{3, 12, 7} {
			_, err := s.Create(ctx, expense("x", int64(day), day))
			require.NoError(t, err)
		}
		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		require.Equal(t, 12, list[0].Date.Day())
		require.Equal(t, 7, list[1].Date.Day())
		require.Equal(t, 3, list[2].Date.Day())
	})

	t.Run("UpdateRefreshesUpdatedAt", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		e, err := s.Create(ctx, expense("Taxi", 500, 4))
		require.NoError(t, err)

		status := core.IOwe
		balance := int64(200)
		label := "Cab"
		got, err := s.Update(ctx, e.ID, core.ExpenseUpdate{
			Label:         &label,
			BalanceStatus: &status,
			BalanceAmount: &balance,
		})
		require.NoError(t, err)
		require.Equal(t, "Cab", got.Label)
		require.Equal(t, core.IOwe, got.BalanceStatus)
		require.Equal(t, int64(200), got.BalanceAmount)
		require.False(t, got.UpdatedAt.Before(got.CreatedAt))

		paid := core.Paid
		got, err = s.Update(ctx, e.ID, core.ExpenseUpdate{BalanceStatus: &paid})
		require.NoError(t, err)
		require.Zero(t, got.BalanceAmount)

		stored, err := s.Get(ctx, e.ID)
		require.NoError(t, err)
		require.Equal(t, core.Paid, stored.BalanceStatus)
		require.Zero(t, stored.BalanceAmount)
	})

	t.Run("UpdateUnknown", func(t *testing.T) {
		s := open(t)
		label := "x"
		_, err := s.Update(context.Background(), "missing", core.ExpenseUpdate{Label: &label})
		require.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("UpdateRejectsInvalid", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		e, err := s.Create(ctx, expense("Taxi", 500, 4))
		require.NoError(t, err)

		status := core.OwedToMe
		_, err = s.Update(ctx, e.ID, core.ExpenseUpdate{BalanceStatus: &status})
		require.ErrorIs(t, err, core.ErrBalanceAmount)

		got, err := s.Get(ctx, e.ID)
		require.NoError(t, err)
		require.Equal(t, core.Paid, got.BalanceStatus)
	})

	t.Run("Delete", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		e, err := s.Create(ctx, expense("Taxi", 500, 4))
		require.NoError(t, err)

		ok, err := s.Delete(ctx, e.ID)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.Delete(ctx, e.ID)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("RenameLabelMerges", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		for _, l := range []string{"Coffee", "Coffee", "Café", "Rent"} {
			_, err := s.Create(ctx, expense(l, 100, 5))
			require.NoError(t, err)
		}

		n, err := s.RenameLabel(ctx, "Coffee", "Café")
		require.NoError(t, err)
		require.Equal(t, int64(2), n)

		labels, err := s.Labels(ctx)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"Café", "Rent"}, labels)

		n, err = s.RenameLabel(ctx, "Café", "Café")
		require.NoError(t, err)
		require.Zero(t, n)

		n, err = s.RenameLabel(ctx, "Nope", "Other")
		require.NoError(t, err)
		require.Zero(t, n)

		_, err = s.RenameLabel(ctx, "Rent", "  ")
		require.ErrorIs(t, err, core.ErrInvalidInput)
	})

	t.Run("DeleteByLabel", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		for _, l := range []string{"Coffee", "Coffee", "Rent"} {
			_, err := s.Create(ctx, expense(l, 100, 5))
			require.NoError(t, err)
		}

		n, err := s.DeleteByLabel(ctx, "Coffee")
		require.NoError(t, err)
		require.Equal(t, int64(2), n)

		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)

		n, err = s.DeleteByLabel(ctx, "Coffee")
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("DayKeySurvivesRoundTrip", func(t *testing.T) {
		// A process west of UTC must not move records to the previous day.
		prev := time.Local
		time.Local = time.FixedZone("EST", -5*3600)
		t.Cleanup(func() { time.Local = prev })

		ctx := context.Background()
		s := open(t)
		eat := time.FixedZone("EAT", 3*3600)
		dates := []time.Time{
			time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 6, 0, 0, 0, 0, eat),
			time.Date(2025, 3, 7, 23, 30, 0, 0, time.Local),
		}
		want := map[string]string{}
		for _, d := range dates {
			e := expense("Coffee", 100, 1)
			e.Date = d
			created, err := s.Create(ctx, e)
			require.NoError(t, err)
			require.Equal(t, core.DayKey(d), core.DayKey(created.Date))
			want[created.ID] = core.DayKey(d)

			got, err := s.Get(ctx, created.ID)
			require.NoError(t, err)
			require.Equal(t, core.DayKey(d), core.DayKey(core.StartOfDay(got.Date)))
		}

		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, len(dates))
		for _, e := range list {
			require.Equal(t, want[e.ID], core.DayKey(e.Date), e.ID)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Ping(context.Background()))
	})
}
