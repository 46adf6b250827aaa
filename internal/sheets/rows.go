package sheets

import (
	"fmt"
	"time"

	"famledger/internal/analytics"
)

// Rows lays out a report as spreadsheet rows: a title, the income, expense
// and balance block with the previous month and percent change, then the
// expense categories largest first.
func Rows(r Report) [][]any {
	s := r.Summary
	title := fmt.Sprintf("%s %d", time.Month(s.Month), s.Year)

	rows := [][]any{
		{title, "This month", "Previous month", "Change %"},
		{"Income", s.Totals.Income, s.Previous.Income, s.Comparison.Income.Percent},
		{"Expense", s.Totals.Expense, s.Previous.Expense, s.Comparison.Expense.Percent},
		{"Balance", s.Totals.Balance, s.Previous.Balance, ""},
		{"Transactions", s.Count, "", ""},
		{},
		{"Category", "Expense", "", ""},
	}
	for _, c := range analytics.TopCategories(s.Categories, -1) {
		rows = append(rows, []any{r.CategoryName(c.CategoryID), c.Total, "", ""})
	}
	return rows
}
