package http

import (
	"fmt"
	"net/url"
	"strings"

	"depenses/internal/core"
	"depenses/internal/view"
)

// sanitizeInput removes control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// parseViewQuery reads the search, filters, sort and date range of a view
// request:
//
//	q=taxi&balance=i_owe,owed_to_me&remark=1&sort=name-az&from=2025-03-01&to=2025-03-31
func parseViewQuery(values url.Values) (view.Query, error) {
	q := view.Query{
		Search: sanitizeInput(values.Get("q")),
		Sort:   view.ParseSortOption(values.Get("sort")),
	}

	for _, raw := range values["balance"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			st, err := core.ParseBalanceStatus(part)
			if err != nil {
				return view.Query{}, err
			}
			q.Filters.BalanceStatus = append(q.Filters.BalanceStatus, st)
		}
	}
	q.Filters.HasRemark = truthy(values.Get("remark"))

	r, err := parseRange(values)
	if err != nil {
		return view.Query{}, err
	}
	q.Range = r
	return q, nil
}

func parseRange(values url.Values) (view.DateRange, error) {
	from, to := strings.TrimSpace(values.Get("from")), strings.TrimSpace(values.Get("to"))
	if from == "" {
		if to != "" {
			return view.DateRange{}, fmt.Errorf("%w: to requires from", core.ErrInvalidInput)
		}
		return view.DateRange{}, nil
	}
	start, err := parseDate(from)
	if err != nil {
		return view.DateRange{}, err
	}
	if to == "" {
		return view.SingleDay(start), nil
	}
	end, err := parseDate(to)
	if err != nil {
		return view.DateRange{}, err
	}
	if end.Before(start) {
		return view.DateRange{}, fmt.Errorf("%w: to precedes from", core.ErrInvalidInput)
	}
	return view.DateRange{From: start, To: &end}, nil
}
