// Package memory is an in-process SheetWriter that keeps every tab in a map.
package memory

import (
	"context"
	"sort"
	"sync"
)

type Writer struct {
	mu     sync.Mutex
	tabs   map[string][][]any
	writes int
}

func New() *Writer {
	return &Writer{tabs: make(map[string][][]any)}
}

// ReplaceRows stores a copy of rows under tab.
func (w *Writer) ReplaceRows(_ context.Context, tab string, rows [][]any) error {
	cp := make([][]any, len(rows))
	for i, row := range rows {
		cp[i] = append([]any(nil), row...)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tabs[tab] = cp
	w.writes++
	return nil
}

// Rows returns the current content of tab and whether it exists.
func (w *Writer) Rows(tab string) ([][]any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows, ok := w.tabs[tab]
	return rows, ok
}

// Tabs lists tab names in sorted order.
func (w *Writer) Tabs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.tabs))
	for name := range w.tabs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Writes counts ReplaceRows calls.
func (w *Writer) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}
