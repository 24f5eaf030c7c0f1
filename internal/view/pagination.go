package view

import "slices"

const (
	DefaultItemsPerPage = 10
	maxWindowPages      = 5
)

// PageSizes are the page sizes offered to users.
var PageSizes = []int{10, 20, 50, 100}

type (
	// PageState is the pagination position of one day.
	PageState struct {
		CurrentPage  int
		ItemsPerPage int
	}

	// PageStates maps a day key to its pagination. Methods never modify the
	// receiver; they return an updated copy.
	PageStates map[string]PageState

	// PageInfo describes the page actually rendered. Start and End index the
	// day's sorted aggregates (End exclusive).
	PageInfo struct {
		CurrentPage  int
		ItemsPerPage int
		TotalItems   int
		TotalPages   int
		Start        int
		End          int
		Window       []PageItem
	}

	// PageItem is either a page number or an ellipsis marker.
	PageItem struct {
		Page     int
		Ellipsis bool
	}
)

// DefaultPageState is page 1 with DefaultItemsPerPage.
func DefaultPageState() PageState {
	return PageState{CurrentPage: 1, ItemsPerPage: DefaultItemsPerPage}
}

// ValidPageSize reports whether n is one of PageSizes.
func ValidPageSize(n int) bool {
	return slices.Contains(PageSizes, n)
}

// For returns the state of day, with defaults filled in.
func (p PageStates) For(day string) PageState {
	st, ok := p[day]
	if !ok {
		return DefaultPageState()
	}
	if st.CurrentPage < 1 {
		st.CurrentPage = 1
	}
	if st.ItemsPerPage < 1 {
		st.ItemsPerPage = DefaultItemsPerPage
	}
	return st
}

func (p PageStates) clone() PageStates {
	out := make(PageStates, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// SetPage moves day to page n, keeping its page size.
func (p PageStates) SetPage(day string, n int) PageStates {
	out := p.clone()
	st := p.For(day)
	st.CurrentPage = max(n, 1)
	out[day] = st
	return out
}

// SetItemsPerPage changes the page size of day and sends it back to page 1.
func (p PageStates) SetItemsPerPage(day string, n int) PageStates {
	out := p.clone()
	if n < 1 {
		n = DefaultItemsPerPage
	}
	out[day] = PageState{CurrentPage: 1, ItemsPerPage: n}
	return out
}

// Reset drops the state of every day.
func (p PageStates) Reset() PageStates {
	return PageStates{}
}

// Paginate computes the page to render for total items. A page past the end is
// clamped to the last page.
func Paginate(total int, st PageState) PageInfo {
	per := st.ItemsPerPage
	if per < 1 {
		per = DefaultItemsPerPage
	}
	pages := (total + per - 1) / per
	cur := st.CurrentPage
	if cur > pages {
		cur = pages
	}
	if cur < 1 {
		cur = 1
	}
	start := min((cur-1)*per, total)
	end := min(cur*per, total)
	return PageInfo{
		CurrentPage:  cur,
		ItemsPerPage: per,
		TotalItems:   total,
		TotalPages:   pages,
		Start:        start,
		End:          end,
		Window:       PageWindow(cur, pages),
	}
}

// PageWindow returns the compact page list shown under a day:
//
//	total <= 5          1 2 3 4 5
//	current <= 3        1 2 3 … N
//	current > N-3       1 … N-2 N-1 N
//	otherwise           1 … c-1 c c+1 … N
func PageWindow(current, total int) []PageItem {
	if total <= 0 {
		return nil
	}
	pages := func(nums ...int) []PageItem {
		out := make([]PageItem, 0, len(nums))
		for _, n := range nums {
			if n == 0 {
				out = append(out, PageItem{Ellipsis: true})
				continue
			}
			out = append(out, PageItem{Page: n})
		}
		return out
	}

	if total <= maxWindowPages {
		out := make([]PageItem, total)
		for i := range out {
			out[i] = PageItem{Page: i + 1}
		}
		return out
	}
	switch {
	case current <= 3:
		return pages(1, 2, 3, 0, total)
	case current > total-3:
		return pages(1, 0, total-2, total-1, total)
	default:
		return pages(1, 0, current-1, current, current+1, 0, total)
	}
}

// Range returns the 1-based first and last item numbers of the page, as in
// "11-20 of 34". Both are 0 for an empty list.
func (pi PageInfo) Range() (first, last int) {
	if pi.TotalItems == 0 {
		return 0, 0
	}
	return pi.Start + 1, pi.End
}
