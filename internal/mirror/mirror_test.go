package mirror

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounting/internal/core"
	"accounting/internal/events"
	"accounting/internal/log"
	sheetmem "accounting/internal/mirror/memory"
	"accounting/internal/report"
	"accounting/internal/storage/memory"
)

type failingWriter struct{}

func (failingWriter) ReplaceRows(context.Context, string, [][]any) error {
	return errors.New("quota exceeded")
}

func TestHandleEventRewritesTab(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	w := sheetmem.New()
	m := New(st, st, w, nil, log.Discard())

	user, err := st.CreateUser(ctx, "Ann@Example.com", []byte("hash"))
	require.NoError(t, err)

	_, err = st.Insert(ctx, core.NewRecord{UserID: user.ID, Amount: decimal.NewFromInt(100), Type: core.Income, Note: "pay"})
	require.NoError(t, err)
	lunch, err := st.Insert(ctx, core.NewRecord{UserID: user.ID, Amount: decimal.NewFromInt(40), Type: core.Expense, Note: "lunch"})
	require.NoError(t, err)

	require.NoError(t, m.HandleEvent(ctx, events.New(events.RecordCreated, user.ID, lunch.ID, "srv")))

	rows, ok := w.Rows("ann@example.com")
	require.True(t, ok)
	require.Len(t, rows, 1+2+1+3)
	assert.Equal(t, report.Header, rows[0])
	assert.Equal(t, "lunch", rows[1][3])
	assert.Equal(t, "pay", rows[2][3])
	assert.Equal(t, []any{report.LabelBalance, 60.0}, rows[6])

	require.NoError(t, st.Delete(ctx, user.ID, lunch.ID))
	require.NoError(t, m.HandleEvent(ctx, events.New(events.RecordDeleted, user.ID, lunch.ID, "srv")))

	rows, _ = w.Rows("ann@example.com")
	require.Len(t, rows, 1+1+1+3)
	assert.Equal(t, []any{report.LabelExpense, 0.0}, rows[4])
	assert.Equal(t, []any{report.LabelBalance, 100.0}, rows[5])
}

func TestHandleEventUnknownUser(t *testing.T) {
	st := memory.New()
	w := sheetmem.New()
	m := New(st, st, w, nil, log.Discard())

	err := m.HandleEvent(context.Background(), events.New(events.RecordCreated, "ghost", "r1", "srv"))
	require.NoError(t, err)
	assert.Zero(t, w.Writes())
}

func TestHandleEventWriterError(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	user, err := st.CreateUser(ctx, "bob@example.com", []byte("hash"))
	require.NoError(t, err)

	m := New(st, st, failingWriter{}, nil, log.Discard())
	err = m.HandleEvent(ctx, events.New(events.RecordCreated, user.ID, "r1", "srv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestTabName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a@b.com", "a@b.com"},
		{"  Mixed@Case.COM ", "mixed@case.com"},
		{"we[ir]d*:?/\\@x", "we_ir_d_____@x"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TabName(tt.in), tt.in)
	}

	long := strings.Repeat("a", 150) + "@x.com"
	assert.Len(t, TabName(long), maxTabLen)
}
