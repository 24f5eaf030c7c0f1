package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	// NewExpense is an entry as typed by the user: amounts are in Currency,
	// not yet converted to BaseCurrency.
	NewExpense struct {
		Amount        decimal.Decimal
		Currency      Currency
		Label         string
		Date          time.Time
		Remark        string
		BalanceStatus BalanceStatus
		BalanceAmount decimal.Decimal
	}

	// ExpensePatch is a partial edit in entry form. Amounts are read in the
	// patched Currency when set, in the record's currency otherwise.
	ExpensePatch struct {
		Amount        *decimal.Decimal
		Currency      *Currency
		Label         *string
		Date          *time.Time
		Remark        *string
		BalanceStatus *BalanceStatus
		BalanceAmount *decimal.Decimal
	}
)

// Expense converts the entry to stored form and validates it. ID and
// timestamps are left for the store.
func (n NewExpense) Expense() (Expense, error) {
	cur := n.Currency
	if cur == "" {
		cur = BaseCurrency
	}
	amount, err := ToBase(n.Amount, cur)
	if err != nil {
		return Expense{}, err
	}
	balance, err := ToBase(n.BalanceAmount, cur)
	if err != nil {
		return Expense{}, err
	}
	e := Expense{
		Amount:        amount,
		Currency:      cur,
		Label:         n.Label,
		Date:          n.Date,
		Remark:        n.Remark,
		BalanceStatus: n.BalanceStatus,
		BalanceAmount: balance,
	}.Normalize()
	if err := e.Validate(); err != nil {
		return Expense{}, err
	}
	return e, nil
}

// Resolve turns the patch into a stored-form update against current. The
// result is checked by applying it to current.
func (p ExpensePatch) Resolve(current Expense) (ExpenseUpdate, error) {
	var u ExpenseUpdate
	cur := current.Currency
	if p.Currency != nil {
		if !p.Currency.Valid() {
			return u, ErrInvalidCurrency
		}
		cur = *p.Currency
	}
	if p.Amount != nil {
		amount, err := ToBase(*p.Amount, cur)
		if err != nil {
			return u, err
		}
		u.Amount = &amount
	}
	if p.BalanceAmount != nil {
		balance, err := ToBase(*p.BalanceAmount, cur)
		if err != nil {
			return u, err
		}
		u.BalanceAmount = &balance
	}
	u.Currency = p.Currency
	u.Label = p.Label
	u.Date = p.Date
	u.Remark = p.Remark
	u.BalanceStatus = p.BalanceStatus

	next := u.Apply(current)
	if err := next.Validate(); err != nil {
		return ExpenseUpdate{}, err
	}
	return u, nil
}
