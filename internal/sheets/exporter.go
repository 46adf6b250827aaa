package sheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"famledger/internal/analytics"
	"famledger/internal/core"
	"famledger/internal/log"
)

// ErrNotConfigured is returned by Export when no writer is set.
var ErrNotConfigured = errors.New("sheets export not configured")

// Source provides the data a report is built from.
type Source interface {
	Transactions() []core.Transaction
	Categories() []core.Category
}

type Exporter struct {
	source Source
	writer SummaryWriter
	logger *log.Logger
}

func NewExporter(source Source, writer SummaryWriter, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.Default()
	}
	return &Exporter{source: source, writer: writer, logger: logger.WithComponent(log.ComponentSheets)}
}

// Enabled reports whether Export can write anywhere.
func (e *Exporter) Enabled() bool {
	return e != nil && e.writer != nil
}

// Export writes the summary of the given month.
func (e *Exporter) Export(ctx context.Context, year int, month time.Month) (string, error) {
	if !e.Enabled() {
		return "", ErrNotConfigured
	}
	if month < time.January || month > time.December {
		return "", fmt.Errorf("invalid month: %d", month)
	}

	ref := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	report := Report{
		Summary:       analytics.MonthSummary(e.source.Transactions(), ref),
		CategoryNames: make(map[string]string),
	}
	for _, c := range e.source.Categories() {
		report.CategoryNames[c.ID] = c.Name
	}

	out, err := e.writer.WriteMonthSummary(ctx, report)
	if err != nil {
		return "", fmt.Errorf("write month summary: %w", err)
	}

	e.logger.InfoContext(ctx, "Month summary exported",
		log.FieldYear, year,
		log.FieldMonth, int(month),
		log.FieldSheetsRef, out)
	return out, nil
}
