// Package memory keeps exported reports in process, for tests and for
// running without a spreadsheet.
package memory

import (
	"context"
	"fmt"
	"sync"

	ports "famledger/internal/sheets"
)

type Writer struct {
	mu      sync.Mutex
	reports map[string][][]any
	order   []string
}

func New() *Writer {
	return &Writer{reports: make(map[string][][]any)}
}

// WriteMonthSummary replaces any earlier report of the same month.
func (w *Writer) WriteMonthSummary(_ context.Context, r ports.Report) (string, error) {
	ref := fmt.Sprintf("%04d-%02d", r.Summary.Year, r.Summary.Month)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.reports[ref]; !ok {
		w.order = append(w.order, ref)
	}
	w.reports[ref] = ports.Rows(r)
	return ref, nil
}

// Rows returns the rows last written under ref.
func (w *Writer) Rows(ref string) ([][]any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows, ok := w.reports[ref]
	return rows, ok
}

// Refs lists written reports in first-write order.
func (w *Writer) Refs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.order...)
}

var _ ports.SummaryWriter = (*Writer)(nil)
