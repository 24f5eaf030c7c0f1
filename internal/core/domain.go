package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	FMG    Currency = "FMG"
	Ariary Currency = "Ariary"

	// BaseCurrency is the unit every stored amount is expressed in.
	BaseCurrency = FMG
	// AlternateCurrency is accepted for entry and display only.
	AlternateCurrency = Ariary
)

const (
	Paid     BalanceStatus = "paid"
	IOwe     BalanceStatus = "i_owe"
	OwedToMe BalanceStatus = "owed_to_me"
)

type (
	Currency      string
	BalanceStatus string

	// Expense is the only persisted entity. Amount and BalanceAmount are
	// always in BaseCurrency; Currency only remembers how it was entered.
	Expense struct {
		ID            string
		Amount        int64
		Currency      Currency
		Label         string
		Date          time.Time
		Remark        string
		CreatedAt     time.Time
		UpdatedAt     time.Time
		BalanceStatus BalanceStatus
		BalanceAmount int64
	}

	// ExpenseUpdate is a partial update in stored (base currency) form.
	// Nil fields are left untouched.
	ExpenseUpdate struct {
		Amount        *int64
		Currency      *Currency
		Label         *string
		Date          *time.Time
		Remark        *string
		BalanceStatus *BalanceStatus
		BalanceAmount *int64
	}
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("expense not found")
	ErrStoreUnavailable = errors.New("store unavailable")
)

var (
	ErrNegativeAmount   = fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	ErrEmptyLabel       = fmt.Errorf("%w: label is required", ErrInvalidInput)
	ErrInvalidCurrency  = fmt.Errorf("%w: unknown currency", ErrInvalidInput)
	ErrInvalidBalance   = fmt.Errorf("%w: unknown balance status", ErrInvalidInput)
	ErrBalanceAmount    = fmt.Errorf("%w: balance amount must be positive when a balance is open", ErrInvalidInput)
	ErrZeroDate         = fmt.Errorf("%w: date is required", ErrInvalidInput)
	ErrTimestampOrder   = fmt.Errorf("%w: updatedAt precedes createdAt", ErrInvalidInput)
	ErrFractionalAmount = fmt.Errorf("%w: amount must be a whole number of %s", ErrInvalidInput, BaseCurrency)
)

func (c Currency) Valid() bool {
	return c == FMG || c == Ariary
}

func (c Currency) String() string {
	return string(c)
}

// ParseCurrency accepts the currency code case-insensitively; empty means base.
func ParseCurrency(s string) (Currency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fmg":
		return FMG, nil
	case "ariary", "ar", "mga":
		return Ariary, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
}

func (s BalanceStatus) Valid() bool {
	switch s {
	case Paid, IOwe, OwedToMe:
		return true
	}
	return false
}

// Open reports whether the status tracks an outstanding debt.
func (s BalanceStatus) Open() bool {
	return s == IOwe || s == OwedToMe
}

// ParseBalanceStatus maps an input value to a status; empty means Paid.
func ParseBalanceStatus(s string) (BalanceStatus, error) {
	v := BalanceStatus(strings.ToLower(strings.TrimSpace(s)))
	if v == "" {
		return Paid, nil
	}
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidBalance, s)
	}
	return v, nil
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayLayout is the wire format of a calendar day.
const DayLayout = "2006-01-02"

// DateLocation anchors days read from text: "2025-03-05" is midnight of that
// day here.
var DateLocation = time.UTC

// DayKey is the canonical string for the calendar day of t.
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// ParseDay reads a YYYY-MM-DD day at midnight in DateLocation.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, strings.TrimSpace(s), DateLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be formatted YYYY-MM-DD", ErrInvalidInput, s)
	}
	return t, nil
}

// Validate checks the stored-form invariants of an expense.
func (e Expense) Validate() error {
	if e.Amount < 0 {
		return ErrNegativeAmount
	}
	if strings.TrimSpace(e.Label) == "" {
		return ErrEmptyLabel
	}
	if !e.Currency.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, e.Currency)
	}
	if e.Date.IsZero() {
		return ErrZeroDate
	}
	if !e.BalanceStatus.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidBalance, e.BalanceStatus)
	}
	if e.BalanceStatus.Open() && e.BalanceAmount <= 0 {
		return ErrBalanceAmount
	}
	if e.BalanceAmount < 0 {
		return ErrBalanceAmount
	}
	if !e.CreatedAt.IsZero() && e.UpdatedAt.Before(e.CreatedAt) {
		return ErrTimestampOrder
	}
	return nil
}

// HasRemark reports whether the remark carries non-blank text.
func (e Expense) HasRemark() bool {
	return strings.TrimSpace(e.Remark) != ""
}

// Normalize fills defaults and enforces the paid-means-no-balance rule.
func (e Expense) Normalize() Expense {
	e.Label = strings.TrimSpace(e.Label)
	e.Remark = strings.TrimSpace(e.Remark)
	if e.Currency == "" {
		e.Currency = BaseCurrency
	}
	if e.BalanceStatus == "" {
		e.BalanceStatus = Paid
	}
	if e.BalanceStatus == Paid {
		e.BalanceAmount = 0
	}
	return e
}

// Apply returns a copy of e with the non-nil fields of u set. It does not
// touch UpdatedAt; stores do that.
func (u ExpenseUpdate) Apply(e Expense) Expense {
	if u.Amount != nil {
		e.Amount = *u.Amount
	}
	if u.Currency != nil {
		e.Currency = *u.Currency
	}
	if u.Label != nil {
		e.Label = *u.Label
	}
	if u.Date != nil {
		e.Date = *u.Date
	}
	if u.Remark != nil {
		e.Remark = *u.Remark
	}
	if u.BalanceStatus != nil {
		e.BalanceStatus = *u.BalanceStatus
	}
	if u.BalanceAmount != nil {
		e.BalanceAmount = *u.BalanceAmount
	}
	return e.Normalize()
}

// IsEmpty reports whether the update would change nothing.
func (u ExpenseUpdate) IsEmpty() bool {
	return u.Amount == nil && u.Currency == nil && u.Label == nil && u.Date == nil &&
		u.Remark == nil && u.BalanceStatus == nil && u.BalanceAmount == nil
}
