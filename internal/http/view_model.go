package http

import (
	"time"

	"github.com/shopspring/decimal"

	"depenses/internal/core"
	"depenses/internal/view"
)

// moneyJSON shows a base amount in both currencies. Ariary is derived and
// rounded to two decimals.
type moneyJSON struct {
	FMG          int64           `json:"fmg"`
	Ariary       decimal.Decimal `json:"ariary"`
	Formatted    string          `json:"formatted"`
	FormattedAlt string          `json:"formattedAlt"`
}

func newMoney(amount int64) moneyJSON {
	return moneyJSON{
		FMG:          amount,
		Ariary:       core.FromBase(amount, core.AlternateCurrency),
		Formatted:    core.FormatBase(amount, core.BaseCurrency),
		FormattedAlt: core.FormatBase(amount, core.AlternateCurrency),
	}
}

type expenseJSON struct {
	ID       string    `json:"id"`
	Amount   moneyJSON `json:"amount"`
	Currency string    `json:"currency"`
	// Entered is the amount in the currency it was typed in.
	Entered       string    `json:"entered"`
	Label         string    `json:"label"`
	Date          string    `json:"date"`
	Remark        string    `json:"remark,omitempty"`
	BalanceStatus string    `json:"balanceStatus"`
	BalanceAmount moneyJSON `json:"balanceAmount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func newExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:            e.ID,
		Amount:        newMoney(e.Amount),
		Currency:      e.Currency.String(),
		Entered:       core.FormatBase(e.Amount, e.Currency),
		Label:         e.Label,
		Date:          core.DayKey(e.Date),
		Remark:        e.Remark,
		BalanceStatus: string(e.BalanceStatus),
		BalanceAmount: newMoney(e.BalanceAmount),
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func newExpenseList(records []core.Expense) []expenseJSON {
	out := make([]expenseJSON, len(records))
	for i, e := range records {
		out[i] = newExpenseJSON(e)
	}
	return out
}

type pageItemJSON struct {
	Page     int  `json:"page,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
}

type pageJSON struct {
	Current      int            `json:"current"`
	ItemsPerPage int            `json:"itemsPerPage"`
	TotalItems   int            `json:"totalItems"`
	TotalPages   int            `json:"totalPages"`
	First        int            `json:"first"`
	Last         int            `json:"last"`
	Window       []pageItemJSON `json:"window"`
}

type groupJSON struct {
	Key          string        `json:"key"`
	Label        string        `json:"label"`
	Total        moneyJSON     `json:"total"`
	Count        int           `json:"count"`
	Open         bool          `json:"open"`
	Transactions []expenseJSON `json:"transactions"`
}

type dayJSON struct {
	Date   string      `json:"date"`
	Total  moneyJSON   `json:"total"`
	Labels int         `json:"labels"`
	Groups []groupJSON `json:"groups"`
	Page   pageJSON    `json:"page"`
}

type viewJSON struct {
	Days      []dayJSON `json:"days"`
	Empty     string    `json:"empty,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Labels    []string  `json:"labels"`
	Total     moneyJSON `json:"total"`
	Matched   int       `json:"matched"`
	Search    string    `json:"search,omitempty"`
	Sort      string    `json:"sort"`
	Open      []string  `json:"open"`
	PageSizes []int     `json:"pageSizes"`
}

func newViewJSON(res view.Result, q view.Query, acc view.Accordion) viewJSON {
	out := viewJSON{
		Days:      make([]dayJSON, 0, len(res.Days)),
		Empty:     string(res.Empty),
		Reason:    string(res.Reason),
		Labels:    res.Labels,
		Total:     newMoney(res.Total),
		Matched:   res.Matched,
		Search:    q.Search,
		Sort:      string(view.ParseSortOption(string(q.Sort))),
		Open:      acc.Open,
		PageSizes: view.PageSizes,
	}
	if out.Labels == nil {
		out.Labels = []string{}
	}
	if out.Open == nil {
		out.Open = []string{}
	}
	for _, d := range res.Days {
		out.Days = append(out.Days, newDayJSON(d, acc))
	}
	return out
}

func newDayJSON(d view.DayGroup, acc view.Accordion) dayJSON {
	first, last := d.Page.Range()
	day := dayJSON{
		Date:   d.Key,
		Total:  newMoney(d.Total),
		Labels: len(d.Aggregates),
		Groups: make([]groupJSON, 0, len(d.Visible)),
		Page: pageJSON{
			Current:      d.Page.CurrentPage,
			ItemsPerPage: d.Page.ItemsPerPage,
			TotalItems:   d.Page.TotalItems,
			TotalPages:   d.Page.TotalPages,
			First:        first,
			Last:         last,
			Window:       make([]pageItemJSON, 0, len(d.Page.Window)),
		},
	}
	for _, it := range d.Page.Window {
		day.Page.Window = append(day.Page.Window, pageItemJSON{Page: it.Page, Ellipsis: it.Ellipsis})
	}
	for _, agg := range d.Visible {
		key := view.GroupKey(d.Date, agg.Label)
		day.Groups = append(day.Groups, groupJSON{
			Key:          key,
			Label:        agg.Label,
			Total:        newMoney(agg.TotalAmount),
			Count:        len(agg.Transactions),
			Open:         acc.IsOpen(key),
			Transactions: newExpenseList(agg.Transactions),
		})
	}
	return day
}
