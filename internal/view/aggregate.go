// Package view turns a flat snapshot of expenses into the grouped, sorted and
// paginated model shown to users.
//
// Everything here is a pure function of its arguments: records are never
// modified and no state survives between calls. State that has to persist
// across interactions (page numbers, expanded groups) is passed in and handed
// back explicitly through PageStates, Accordion and Session.
package view

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"depenses/internal/core"
)

const (
	EmptyNone       EmptyKind = ""
	EmptyNoExpenses EmptyKind = "no_expenses"
	EmptyNoMatches  EmptyKind = "no_matches"

	ReasonNone     EmptyReason = ""
	ReasonFiltered EmptyReason = "filtered"
	ReasonSearched EmptyReason = "searched"
)

type (
	// EmptyKind tells the caller which empty state to render.
	EmptyKind string
	// EmptyReason distinguishes filter misses from search misses.
	EmptyReason string

	// LabelAggregate is the rollup of one label on one day.
	LabelAggregate struct {
		Label        string
		TotalAmount  int64
		Transactions []core.Expense
	}

	// DayGroup is the rollup of one calendar day. Aggregates holds every label
	// of the day in display order; Visible is the current page of it.
	DayGroup struct {
		Date       time.Time
		Key        string
		Total      int64
		Aggregates []LabelAggregate
		Visible    []LabelAggregate
		Page       PageInfo
	}

	Result struct {
		Days   []DayGroup
		Empty  EmptyKind
		Reason EmptyReason
		// Labels lists every distinct label of the snapshot, in first-seen order.
		Labels []string
		// Total is the sum over all matching records.
		Total   int64
		Matched int
	}
)

// ComputeChecked validates every record before computing the view and fails on
// the first one that breaks an invariant.
func ComputeChecked(records []core.Expense, q Query) (Result, error) {
	for i, e := range records {
		if err := e.Validate(); err != nil {
			return Result{}, fmt.Errorf("record %d (id=%q): %w", i, e.ID, err)
		}
	}
	return Compute(records, q), nil
}

// Compute runs the full pipeline: range, filters, grouping, ordering and
// per-day pagination.
func Compute(records []core.Expense, q Query) Result {
	res := Result{Labels: UniqueLabels(records)}

	period := InRange(records, q.Range)
	if len(period) == 0 {
		res.Empty = EmptyNoExpenses
		return res
	}

	matched := make([]core.Expense, 0, len(period))
	for _, e := range period {
		if matches(e, q.Search, q.Filters) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		res.Empty = EmptyNoMatches
		res.Reason = ReasonSearched
		if q.Filters.Active() {
			res.Reason = ReasonFiltered
		}
		return res
	}

	res.Matched = len(matched)
	res.Days = groupByDay(matched)
	sortOpt := ParseSortOption(string(q.Sort))
	for i := range res.Days {
		d := &res.Days[i]
		SortAggregates(d.Aggregates, sortOpt)
		for j := range d.Aggregates {
			sortTransactions(d.Aggregates[j].Transactions)
		}
		d.Page = Paginate(len(d.Aggregates), q.Pages.For(d.Key))
		d.Visible = d.Aggregates[d.Page.Start:d.Page.End]
		res.Total += d.Total
	}
	return res
}

func matches(e core.Expense, search string, f Filters) bool {
	if !f.match(e) {
		return false
	}
	if search != "" && !strings.Contains(strings.ToLower(e.Label), strings.ToLower(search)) {
		return false
	}
	return true
}

// groupByDay buckets records by start of day, then by label. Label order inside
// a day is first-seen order, which is what the stable sorts fall back to on ties.
func groupByDay(records []core.Expense) []DayGroup {
	type bucket struct {
		group  DayGroup
		labels map[string]int
	}
	buckets := make(map[string]*bucket)
	var order []string

	for _, e := range records {
		day := core.StartOfDay(e.Date)
		key := core.DayKey(day)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				group:  DayGroup{Date: day, Key: key},
				labels: make(map[string]int),
			}
			buckets[key] = b
			order = append(order, key)
		}
		b.group.Total += e.Amount

		idx, ok := b.labels[e.Label]
		if !ok {
			idx = len(b.group.Aggregates)
			b.labels[e.Label] = idx
			b.group.Aggregates = append(b.group.Aggregates, LabelAggregate{Label: e.Label})
		}
		agg := &b.group.Aggregates[idx]
		agg.TotalAmount += e.Amount
		agg.Transactions = append(agg.Transactions, e)
	}

	days := make([]DayGroup, 0, len(order))
	for _, key := range order {
		days = append(days, buckets[key].group)
	}
	sort.SliceStable(days, func(i, j int) bool {
		return days[i].Date.After(days[j].Date)
	})
	return days
}

// UniqueLabels returns the distinct labels of records in first-seen order.
func UniqueLabels(records []core.Expense) []string {
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0)
	for _, e := range records {
		if _, ok := seen[e.Label]; ok {
			continue
		}
		seen[e.Label] = struct{}{}
		out = append(out, e.Label)
	}
	return out
}

// GroupKey identifies one label group of one day, e.g. for expansion state.
func GroupKey(day time.Time, label string) string {
	return core.DayKey(day) + "-" + label
}
