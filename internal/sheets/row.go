package sheets

import (
	"fmt"
	"strings"
	"time"

	"depenses/internal/core"
)

// Column layout of the export sheet.
const (
	ColID = iota
	ColDate
	ColLabel
	ColAmount
	ColAmountAlt
	ColCurrency
	ColBalanceStatus
	ColBalanceAmount
	ColRemark
	ColUpdatedAt

	NumCols
)

// LastColumn is the spreadsheet letter of the last exported column.
const LastColumn = "J"

// Header is the first row of the export sheet.
var Header = []any{"ID", "Date", "Label", "Amount (FMG)", "Amount (Ar)", "Currency", "Balance", "Balance (FMG)", "Remark", "Updated"}

// Row renders e as a sheet row. Amounts are written as plain numbers so that
// sheet formulas can sum them.
func Row(e core.Expense) []any {
	return []any{
		e.ID,
		core.DayKey(e.Date),
		e.Label,
		e.Amount,
		core.FromBase(e.Amount, core.AlternateCurrency).String(),
		string(e.Currency),
		string(e.BalanceStatus),
		e.BalanceAmount,
		e.Remark,
		e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Cell returns the trimmed text of column col, or "" when the row is short.
func Cell(row []any, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[col]))
}
