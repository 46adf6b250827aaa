// Package sheets exports month summaries to a spreadsheet.
package sheets

import (
	"context"

	"famledger/internal/analytics"
)

// Ports for outbound adapters.
type (
	// Report is a month summary with category ids resolved to names.
	Report struct {
		Summary       analytics.Summary
		CategoryNames map[string]string
	}

	// SummaryWriter stores a month report and returns a reference to where it landed.
	SummaryWriter interface {
		WriteMonthSummary(ctx context.Context, r Report) (ref string, err error)
	}
)

// CategoryName returns the display name for id, or id itself when unknown.
func (r Report) CategoryName(id string) string {
	if name, ok := r.CategoryNames[id]; ok && name != "" {
		return name
	}
	return id
}
