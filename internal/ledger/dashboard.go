package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Pasttor/finanzas/internal/calendar"
)

// SortOrder selects how a transaction list is ordered
type SortOrder string

const (
	SortByDate       SortOrder = "date" // newest first
	SortByAmountDesc SortOrder = "high"
	SortByAmountAsc  SortOrder = "low"
)

// ParseSortOrder parses a sort query value; empty means SortByDate
func ParseSortOrder(s string) (SortOrder, error) {
	switch order := SortOrder(strings.ToLower(strings.TrimSpace(s))); order {
	case "":
		return SortByDate, nil
	case SortByDate, SortByAmountDesc, SortByAmountAsc:
		return order, nil
	default:
		return "", fmt.Errorf("unknown sort order %q", s)
	}
}

// Period restricts transactions to a calendar year and/or month.
// Month is zero-indexed; nil fields match everything.
type Period struct {
	Year  *int
	Month *int
}

// Contains reports whether a transaction date falls inside the period.
// Unreadable dates only match the empty period.
func (p Period) Contains(date string) bool {
	if p.Year == nil && p.Month == nil {
		return true
	}
	d := calendar.Normalize(date)
	if d.IsZero() {
		return false
	}
	if p.Year != nil && d.Year != *p.Year {
		return false
	}
	if p.Month != nil && d.Month != *p.Month {
		return false
	}
	return true
}

// FilterTransactions keeps the transactions inside period, preserving order
func FilterTransactions(transactions []*Transaction, period Period) []*Transaction {
	filtered := make([]*Transaction, 0, len(transactions))
	for _, t := range transactions {
		if period.Contains(t.Date) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// SortTransactions returns a sorted copy of transactions. Ties keep their
// original order.
func SortTransactions(transactions []*Transaction, order SortOrder) []*Transaction {
	sorted := make([]*Transaction, len(transactions))
	copy(sorted, transactions)

	switch order {
	case SortByAmountDesc:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Amount.GreaterThan(sorted[j].Amount)
		})
	case SortByAmountAsc:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Amount.LessThan(sorted[j].Amount)
		})
	default:
		sort.SliceStable(sorted, func(i, j int) bool {
			return calendar.Normalize(sorted[i].Date).Compare(calendar.Normalize(sorted[j].Date)) > 0
		})
	}
	return sorted
}

// CategoryTotal is the expense total of one category
type CategoryTotal struct {
	Name  string          `json:"name"`
	Total decimal.Decimal `json:"total"`
}

// Summary aggregates a set of transactions
type Summary struct {
	Income     decimal.Decimal `json:"income"`
	Expenses   decimal.Decimal `json:"expenses"`
	Balance    decimal.Decimal `json:"balance"`
	Categories []CategoryTotal `json:"categories"`
	Count      int             `json:"count"`
}

// uncategorized labels expenses the model left without a category
const uncategorized = "Otros"

// Summarize totals income and expenses and breaks expenses down by category,
// largest first. Types other than gasto and ingreso count toward neither.
func Summarize(transactions []*Transaction) Summary {
	summary := Summary{
		Income:     decimal.Zero,
		Expenses:   decimal.Zero,
		Categories: make([]CategoryTotal, 0),
		Count:      len(transactions),
	}

	byCategory := make(map[string]decimal.Decimal)
	for _, t := range transactions {
		switch {
		case strings.EqualFold(t.Type, TypeIncome):
			summary.Income = summary.Income.Add(t.Amount)
		case strings.EqualFold(t.Type, TypeExpense):
			summary.Expenses = summary.Expenses.Add(t.Amount)
			category := strings.TrimSpace(t.Category)
			if category == "" {
				category = uncategorized
			}
			byCategory[category] = byCategory[category].Add(t.Amount)
		}
	}
	summary.Balance = summary.Income.Sub(summary.Expenses)

	for name, total := range byCategory {
		summary.Categories = append(summary.Categories, CategoryTotal{Name: name, Total: total})
	}
	sort.Slice(summary.Categories, func(i, j int) bool {
		a, b := summary.Categories[i], summary.Categories[j]
		if !a.Total.Equal(b.Total) {
			return a.Total.GreaterThan(b.Total)
		}
		return a.Name < b.Name
	})

	return summary
}

// AvailableYears lists the plausible years present in transactions plus the
// current year, newest first
func AvailableYears(transactions []*Transaction, now time.Time) []int {
	seen := map[int]bool{now.Year(): true}
	for _, t := range transactions {
		if year := calendar.Normalize(t.Date).Year; year > 2000 {
			seen[year] = true
		}
	}

	years := make([]int, 0, len(seen))
	for year := range seen {
		years = append(years, year)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}
