package core

import "github.com/shopspring/decimal"

// Totals holds the two running sums of a record set.
type Totals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// Balance is income minus expense.
func (t Totals) Balance() decimal.Decimal {
	return t.Income.Sub(t.Expense)
}

// Aggregate folds the full record set into totals. It is recomputed from
// scratch on every call; there is no incremental state.
func Aggregate(records []Record) Totals {
	t := Totals{Income: decimal.Zero, Expense: decimal.Zero}
	for _, r := range records {
		switch r.Type {
		case Income:
			t.Income = t.Income.Add(r.Amount)
		case Expense:
			t.Expense = t.Expense.Add(r.Amount)
		}
	}
	return t
}
