// Package report lays out a user's ledger as a grid of cells, shared by the
// spreadsheet mirror and the xlsx export.
package report

import (
	"time"

	"accounting/internal/core"
)

const timeLayout = "2006-01-02 15:04:05"

// Header is the first row of every grid.
var Header = []any{"時間", "類型", "金額", "備註"}

// Totals labels, in the order they appear below the records.
const (
	LabelIncome  = "總收入"
	LabelExpense = "總支出"
	LabelBalance = "結餘"
)

// Table is a rendered ledger: records newest first followed by the totals
// computed from those same records.
type Table struct {
	Rows   [][]any
	Totals core.Totals
}

// Build folds records into a table. Records are expected newest first, as
// stores return them. loc controls how timestamps are printed; nil means UTC.
func Build(records []core.Record, loc *time.Location) Table {
	if loc == nil {
		loc = time.UTC
	}
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			r.CreatedAt.In(loc).Format(timeLayout),
			r.Type.Label(),
			r.Amount.InexactFloat64(),
			r.Note,
		})
	}
	return Table{Rows: rows, Totals: core.Aggregate(records)}
}

// Grid returns header, records, one blank row, then the three totals rows.
func (t Table) Grid() [][]any {
	grid := make([][]any, 0, len(t.Rows)+5)
	grid = append(grid, Header)
	grid = append(grid, t.Rows...)
	grid = append(grid, []any{})
	grid = append(grid,
		[]any{LabelIncome, t.Totals.Income.InexactFloat64()},
		[]any{LabelExpense, t.Totals.Expense.InexactFloat64()},
		[]any{LabelBalance, t.Totals.Balance().InexactFloat64()},
	)
	return grid
}
