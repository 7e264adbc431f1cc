package memory

import (
	"context"
	"testing"
)

func TestReplaceRows(t *testing.T) {
	w := New()
	ctx := context.Background()

	rows := [][]any{{"a", 1.0}}
	if err := w.ReplaceRows(ctx, "x", rows); err != nil {
		t.Fatal(err)
	}
	rows[0][0] = "mutated"

	got, ok := w.Rows("x")
	if !ok || got[0][0] != "a" {
		t.Fatalf("rows not copied: %v", got)
	}

	if err := w.ReplaceRows(ctx, "x", nil); err != nil {
		t.Fatal(err)
	}
	got, _ = w.Rows("x")
	if len(got) != 0 {
		t.Fatalf("expected tab to be replaced, got %v", got)
	}
	if w.Writes() != 2 {
		t.Fatalf("writes = %d", w.Writes())
	}
	if tabs := w.Tabs(); len(tabs) != 1 || tabs[0] != "x" {
		t.Fatalf("tabs = %v", tabs)
	}
}
