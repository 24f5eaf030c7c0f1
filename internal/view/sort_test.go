package view

import (
	"testing"

	"github.com/stretchr/testify/require"

	"depenses/internal/core"
)

func aggs() []LabelAggregate {
	tx := func(n int) []core.Expense { return make([]core.Expense, n) }
	return []LabelAggregate{
		{Label: "Transport", TotalAmount: 300, Transactions: tx(1)},
		{Label: "éducation", TotalAmount: 900, Transactions: tx(2)},
		{Label: "Alimentation", TotalAmount: 300, Transactions: tx(4)},
		{Label: "Zoo", TotalAmount: 50, Transactions: tx(2)},
	}
}

func labels(in []LabelAggregate) []string {
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = a.Label
	}
	return out
}

func TestSortAggregates(t *testing.T) {
	tests := []struct {
		opt  SortOption
		want []string
	}{
		{SortAmountDesc, []string{"éducation", "Transport", "Alimentation", "Zoo"}},
		{SortAmountAsc, []string{"Zoo", "Transport", "Alimentation", "éducation"}},
		{SortNameAZ, []string{"Alimentation", "éducation", "Transport", "Zoo"}},
		{SortNameZA, []string{"Zoo", "Transport", "éducation", "Alimentation"}},
		{SortTransactionsDesc, []string{"Alimentation", "éducation", "Zoo", "Transport"}},
		{SortOption("bogus"), []string{"éducation", "Transport", "Alimentation", "Zoo"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.opt), func(t *testing.T) {
			in := aggs()
			SortAggregates(in, tt.opt)
			require.Equal(t, tt.want, labels(in))

			// A second pass changes nothing.
			SortAggregates(in, tt.opt)
			require.Equal(t, tt.want, labels(in))
		})
	}
}

func TestParseSortOption(t *testing.T) {
	require.Equal(t, SortNameZA, ParseSortOption("name-za"))
	require.Equal(t, DefaultSort, ParseSortOption(""))
	require.Equal(t, DefaultSort, ParseSortOption("amount"))
}
