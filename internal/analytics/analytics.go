// Package analytics derives monthly aggregates from a list of transactions.
// All functions are pure.
package analytics

import (
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"famledger/internal/core"
)

// DefaultMonthlySoftLimit is the monthly expense total above which a new
// expense is flagged.
const DefaultMonthlySoftLimit = 20_000_000

type (
	Totals struct {
		Income  float64 `json:"income"`
		Expense float64 `json:"expense"`
		Balance float64 `json:"balance"`
	}

	CategoryTotal struct {
		CategoryID string  `json:"categoryId"`
		Total      float64 `json:"total"`
	}

	Comparison struct {
		Delta   float64 `json:"delta"`
		Percent float64 `json:"percent"`
	}

	MonthComparison struct {
		Income  Comparison `json:"income"`
		Expense Comparison `json:"expense"`
	}

	Summary struct {
		Year       int             `json:"year"`
		Month      int             `json:"month"`
		Totals     Totals          `json:"totals"`
		Previous   Totals          `json:"previous"`
		Comparison MonthComparison `json:"comparison"`
		Categories []CategoryTotal `json:"categories"`
		Count      int             `json:"count"`
	}
)

// FilterByMonth keeps the transactions dated in ref's calendar month and year.
func FilterByMonth(txs []core.Transaction, ref time.Time) []core.Transaction {
	year, month := ref.Year(), ref.Month()
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Date.Year() == year && tx.Date.Month() == month {
			out = append(out, tx)
		}
	}
	return out
}

// PreviousMonth returns the first day of the month before ref.
func PreviousMonth(ref time.Time) time.Time {
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	return first.AddDate(0, -1, 0)
}

// addend returns the amount as a decimal, or zero when it is not finite or negative.
func addend(amount float64) decimal.Decimal {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(amount)
}

// safe coerces a non-finite result to zero.
func safe(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ComputeTotals sums income and expense. Corrupt amounts count as zero.
func ComputeTotals(txs []core.Transaction) Totals {
	income, expense := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		switch tx.Type {
		case core.Income:
			income = income.Add(addend(tx.Amount))
		case core.Expense:
			expense = expense.Add(addend(tx.Amount))
		}
	}
	in := safe(income.InexactFloat64())
	ex := safe(expense.InexactFloat64())
	return Totals{
		Income:  in,
		Expense: ex,
		Balance: safe(income.Sub(expense).InexactFloat64()),
	}
}

// CategoryBreakdown totals expenses per category in first-seen order.
func CategoryBreakdown(txs []core.Transaction) []CategoryTotal {
	sums := make(map[string]decimal.Decimal)
	var order []string
	for _, tx := range txs {
		if tx.Type != core.Expense {
			continue
		}
		cur, ok := sums[tx.CategoryID]
		if !ok {
			order = append(order, tx.CategoryID)
		}
		sums[tx.CategoryID] = cur.Add(addend(tx.Amount))
	}
	out := make([]CategoryTotal, 0, len(order))
	for _, id := range order {
		out = append(out, CategoryTotal{CategoryID: id, Total: safe(sums[id].InexactFloat64())})
	}
	return out
}

// Compare returns the change from previous to current. With a zero
// previous value the percent is 100 for a positive current and 0 otherwise.
func Compare(current, previous float64) Comparison {
	delta := current - previous
	if previous == 0 {
		if current > 0 {
			return Comparison{Delta: delta, Percent: 100}
		}
		return Comparison{Delta: delta, Percent: 0}
	}
	return Comparison{Delta: safe(delta), Percent: safe(delta / previous * 100)}
}

// CompareTotals compares income and expense of two months.
func CompareTotals(current, previous Totals) MonthComparison {
	return MonthComparison{
		Income:  Compare(current.Income, previous.Income),
		Expense: Compare(current.Expense, previous.Expense),
	}
}

// MonthSummary aggregates ref's month and compares it with the month before.
func MonthSummary(txs []core.Transaction, ref time.Time) Summary {
	current := FilterByMonth(txs, ref)
	previous := FilterByMonth(txs, PreviousMonth(ref))
	cur, prev := ComputeTotals(current), ComputeTotals(previous)
	return Summary{
		Year:       ref.Year(),
		Month:      int(ref.Month()),
		Totals:     cur,
		Previous:   prev,
		Comparison: CompareTotals(cur, prev),
		Categories: CategoryBreakdown(current),
		Count:      len(current),
	}
}

// TopCategories returns the n largest expense categories, largest first.
func TopCategories(breakdown []CategoryTotal, n int) []CategoryTotal {
	out := slices.Clone(breakdown)
	slices.SortStableFunc(out, func(a, b CategoryTotal) int {
		switch {
		case a.Total > b.Total:
			return -1
		case a.Total < b.Total:
			return 1
		default:
			return 0
		}
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ExceedsMonthlySoftLimit reports whether the expenses dated in now's month
// plus candidate would exceed limit. A transaction in txs with candidate's
// id is skipped so an edit is checked with its new amount. Income never
// trips the limit.
func ExceedsMonthlySoftLimit(txs []core.Transaction, candidate core.Transaction, now time.Time, limit float64) bool {
	if candidate.Type != core.Expense {
		return false
	}
	total := addend(candidate.Amount)
	for _, tx := range FilterByMonth(txs, now) {
		if tx.Type != core.Expense || (candidate.ID != "" && tx.ID == candidate.ID) {
			continue
		}
		total = total.Add(addend(tx.Amount))
	}
	return total.GreaterThan(decimal.NewFromFloat(limit))
}
