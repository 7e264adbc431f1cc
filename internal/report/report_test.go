package report

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounting/internal/core"
)

func TestBuildGrid(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []core.Record{
		{ID: "2", Type: core.Expense, Amount: decimal.NewFromInt(40), Note: "lunch", CreatedAt: base.Add(time.Minute)},
		{ID: "1", Type: core.Income, Amount: decimal.NewFromInt(100), Note: "pay", CreatedAt: base},
	}

	grid := Build(records, nil).Grid()
	require.Len(t, grid, 1+2+1+3)

	assert.Equal(t, Header, grid[0])
	assert.Equal(t, []any{"2024-03-01 12:01:00", "支出", 40.0, "lunch"}, grid[1])
	assert.Equal(t, []any{"2024-03-01 12:00:00", "收入", 100.0, "pay"}, grid[2])
	assert.Empty(t, grid[3])
	assert.Equal(t, []any{LabelIncome, 100.0}, grid[4])
	assert.Equal(t, []any{LabelExpense, 40.0}, grid[5])
	assert.Equal(t, []any{LabelBalance, 60.0}, grid[6])
}

func TestBuildEmpty(t *testing.T) {
	grid := Build(nil, nil).Grid()
	require.Len(t, grid, 5)
	assert.Equal(t, []any{LabelBalance, 0.0}, grid[4])
}

func TestBuildLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	records := []core.Record{{Type: core.Income, Amount: decimal.NewFromInt(1), CreatedAt: time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)}}
	tbl := Build(records, loc)
	assert.Equal(t, "2024-01-02 04:00:00", tbl.Rows[0][0])
}
