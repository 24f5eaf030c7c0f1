package view

import (
	"slices"
	"time"

	"depenses/internal/core"
)

const (
	SortAmountDesc       SortOption = "amount-desc"
	SortAmountAsc        SortOption = "amount-asc"
	SortNameAZ           SortOption = "name-az"
	SortNameZA           SortOption = "name-za"
	SortTransactionsDesc SortOption = "transactions-desc"

	DefaultSort = SortAmountDesc
)

type (
	// SortOption orders the label aggregates inside a day.
	SortOption string

	// Filters are the explicit filter toggles, separate from the search box.
	Filters struct {
		BalanceStatus []core.BalanceStatus
		HasRemark     bool
	}

	// DateRange selects whole days. A nil To collapses the range to From's day
	// and a zero From leaves the range unbounded.
	DateRange struct {
		From time.Time
		To   *time.Time
	}

	// Query is everything the engine needs besides the records.
	Query struct {
		Search  string
		Filters Filters
		Sort    SortOption
		Range   DateRange
		Pages   PageStates
	}
)

// ParseSortOption returns the matching option, or DefaultSort when unknown.
func ParseSortOption(s string) SortOption {
	switch o := SortOption(s); o {
	case SortAmountDesc, SortAmountAsc, SortNameAZ, SortNameZA, SortTransactionsDesc:
		return o
	}
	return DefaultSort
}

// Active reports whether any explicit filter is switched on.
func (f Filters) Active() bool {
	return len(f.BalanceStatus) > 0 || f.HasRemark
}

func (f Filters) match(e core.Expense) bool {
	if len(f.BalanceStatus) > 0 && !slices.Contains(f.BalanceStatus, e.BalanceStatus) {
		return false
	}
	if f.HasRemark && !e.HasRemark() {
		return false
	}
	return true
}

// SingleDay builds a range covering only the day of t.
func SingleDay(t time.Time) DateRange {
	return DateRange{From: t}
}

// IsZero reports whether the range lets every record through.
func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To == nil
}

// Contains compares calendar days, each read in its own location, so a
// record dated 2025-03-05 in any zone falls on the bound 2025-03-05. Both
// bounds are inclusive.
func (r DateRange) Contains(t time.Time) bool {
	if r.IsZero() {
		return true
	}
	day := core.DayKey(t)
	if !r.From.IsZero() && day < core.DayKey(r.From) {
		return false
	}
	to := r.From
	if r.To != nil {
		to = *r.To
	}
	if !to.IsZero() && day > core.DayKey(to) {
		return false
	}
	return true
}

// InRange keeps the records whose day lies in r. The input is not modified.
func InRange(records []core.Expense, r DateRange) []core.Expense {
	out := make([]core.Expense, 0, len(records))
	for _, e := range records {
		if r.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out
}

// DayTotal sums the base amounts of all records dated on day.
func DayTotal(records []core.Expense, day time.Time) int64 {
	var total int64
	r := SingleDay(day)
	for _, e := range records {
		if r.Contains(e.Date) {
			total += e.Amount
		}
	}
	return total
}
