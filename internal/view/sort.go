package view

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"depenses/internal/core"
)

// SortAggregates orders aggs in place. Ties keep their current relative order,
// so sorting an already sorted slice again is a no-op.
func SortAggregates(aggs []LabelAggregate, opt SortOption) {
	var less func(a, b LabelAggregate) bool
	switch opt {
	case SortAmountAsc:
		less = func(a, b LabelAggregate) bool { return a.TotalAmount < b.TotalAmount }
	case SortNameAZ, SortNameZA:
		// Collator keeps labels like "Éducation" next to "Eau" instead of after "Z".
		col := collate.New(language.French)
		sign := 1
		if opt == SortNameZA {
			sign = -1
		}
		less = func(a, b LabelAggregate) bool {
			return sign*col.CompareString(a.Label, b.Label) < 0
		}
	case SortTransactionsDesc:
		less = func(a, b LabelAggregate) bool { return len(a.Transactions) > len(b.Transactions) }
	default:
		less = func(a, b LabelAggregate) bool { return a.TotalAmount > b.TotalAmount }
	}
	sort.SliceStable(aggs, func(i, j int) bool { return less(aggs[i], aggs[j]) })
}

// sortTransactions puts the most recently entered record first.
func sortTransactions(txs []core.Expense) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}
