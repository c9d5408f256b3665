package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/core"
)

// Analytics periods understood by Snapshot.
const (
	Period1Month  = "1month"
	Period3Months = "3months"
	Period6Months = "6months"
	Period1Year   = "1year"
	PeriodAll     = "all"
)

// DefaultTopMerchants is the ranking length used by Snapshot.
const DefaultTopMerchants = 10

var hundred = decimal.NewFromInt(100)

// Totals sums expenses (as absolute values) and income separately.
func (l *Ledger) Totals() core.Totals {
	spent, income := decimal.Zero, decimal.Zero
	for _, t := range l.transactions {
		switch {
		case t.IsExpense():
			spent = spent.Add(t.Amount.Abs())
		case t.IsIncome():
			income = income.Add(t.Amount)
		}
	}
	return core.Totals{TotalSpent: spent, TotalIncome: income, Net: income.Sub(spent)}
}

// CategoryBreakdown returns, in category order, the expense total of every
// category that has one, with its share of the breakdown total. Expenses
// without a known category are not part of it.
func (l *Ledger) CategoryBreakdown() []core.CategoryShare {
	sums := make(map[string]decimal.Decimal, len(l.categories))
	for _, t := range l.transactions {
		if t.IsExpense() && t.CategoryID != "" {
			sums[t.CategoryID] = sums[t.CategoryID].Add(t.Amount.Abs())
		}
	}

	out := make([]core.CategoryShare, 0, len(l.categories))
	total := decimal.Zero
	for _, c := range l.categories {
		amount := sums[c.ID]
		if amount.IsZero() {
			continue
		}
		// Ids are unique, but a duplicated category must not count twice.
		delete(sums, c.ID)
		total = total.Add(amount)
		out = append(out, core.CategoryShare{
			CategoryID: c.ID,
			Category:   c.Name,
			Amount:     amount,
			Color:      core.DisplayColor(c.Color),
		})
	}
	if total.IsZero() {
		return []core.CategoryShare{}
	}
	for i := range out {
		out[i].Percentage = out[i].Amount.Div(total).Mul(hundred).InexactFloat64()
	}
	return out
}

// MonthBreakdown is CategoryBreakdown restricted to one calendar month
// given as YYYY-MM.
func (l *Ledger) MonthBreakdown(month string) ([]core.CategoryShare, error) {
	start, err := time.Parse("2006-01", strings.TrimSpace(month))
	if err != nil {
		return nil, core.Validation("ledger.month_breakdown", fmt.Errorf("month %q must be YYYY-MM", month))
	}
	return l.window(start, 1).CategoryBreakdown(), nil
}

// TopCategory returns the breakdown row with the largest amount.
func (l *Ledger) TopCategory() (core.CategoryShare, bool) {
	var top core.CategoryShare
	found := false
	for _, s := range l.CategoryBreakdown() {
		if !found || s.Amount.GreaterThan(top.Amount) {
			top, found = s, true
		}
	}
	return top, found
}

// TopMerchants ranks merchants by expense total, descending. Equal totals
// keep the order in which the merchants were first seen. A limit of zero or
// less returns every merchant.
func (l *Ledger) TopMerchants(limit int) []core.MerchantTotal {
	index := make(map[string]int)
	out := []core.MerchantTotal{}
	for _, t := range l.transactions {
		if !t.IsExpense() || t.Merchant == "" {
			continue
		}
		i, ok := index[t.Merchant]
		if !ok {
			i = len(out)
			index[t.Merchant] = i
			out = append(out, core.MerchantTotal{Merchant: t.Merchant})
		}
		out[i].Amount = out[i].Amount.Add(t.Amount.Abs())
		out[i].Count++
	}
	slices.SortStableFunc(out, func(a, b core.MerchantTotal) int {
		return b.Amount.Cmp(a.Amount)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CategoryCounts counts transactions of any sign per category id.
func (l *Ledger) CategoryCounts() map[string]int {
	counts := make(map[string]int, len(l.categories))
	for _, t := range l.transactions {
		if t.CategoryID != "" {
			counts[t.CategoryID]++
		}
	}
	return counts
}

// AverageMonthlySpend spreads the total spent over months. It is zero when
// months is not positive.
func (l *Ledger) AverageMonthlySpend(months int) decimal.Decimal {
	if months <= 0 {
		return decimal.Zero
	}
	return l.Totals().TotalSpent.DivRound(decimal.NewFromInt(int64(months)), 2)
}

// MonthlySpending returns one entry per calendar month of the window of
// months ending with end's month, oldest first.
func (l *Ledger) MonthlySpending(end time.Time, months int) []core.MonthlySpending {
	keys := monthKeys(end, months)
	out := make([]core.MonthlySpending, len(keys))
	pos := make(map[string]int, len(keys))
	for i, k := range keys {
		out[i] = core.MonthlySpending{Month: k, Amount: decimal.Zero}
		pos[k] = i
	}
	for _, t := range l.transactions {
		if !t.IsExpense() {
			continue
		}
		if i, ok := pos[t.Date.MonthKey()]; ok {
			out[i].Amount = out[i].Amount.Add(t.Amount.Abs())
			out[i].Count++
		}
	}
	return out
}

// CategoryTrends returns, per month of the window, the expense total of
// each known category by name.
func (l *Ledger) CategoryTrends(end time.Time, months int) []core.CategoryTrend {
	keys := monthKeys(end, months)
	out := make([]core.CategoryTrend, len(keys))
	pos := make(map[string]int, len(keys))
	for i, k := range keys {
		out[i] = core.CategoryTrend{Month: k, Categories: map[string]decimal.Decimal{}}
		pos[k] = i
	}
	for _, t := range l.transactions {
		if !t.IsExpense() {
			continue
		}
		i, ok := pos[t.Date.MonthKey()]
		if !ok {
			continue
		}
		c, known := l.category(t.CategoryID)
		if !known {
			continue
		}
		out[i].Categories[c.Name] = out[i].Categories[c.Name].Add(t.Amount.Abs())
	}
	return out
}

// PeriodMonths converts a period name to a window length. For PeriodAll the
// window reaches back to the oldest transaction.
func (l *Ledger) PeriodMonths(period string, now time.Time) (int, error) {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case Period1Month:
		return 1, nil
	case Period3Months:
		return 3, nil
	case "", Period6Months:
		return 6, nil
	case Period1Year, "12months":
		return 12, nil
	case PeriodAll:
		oldest := time.Time{}
		for _, t := range l.transactions {
			if t.Date.IsZero() {
				continue
			}
			if oldest.IsZero() || t.Date.Before(oldest) {
				oldest = t.Date.Time
			}
		}
		if oldest.IsZero() || oldest.After(now) {
			return 1, nil
		}
		return (now.Year()-oldest.Year())*12 + int(now.Month()-oldest.Month()) + 1, nil
	default:
		return 0, core.Validation("ledger.snapshot", fmt.Errorf("unknown period %q", period))
	}
}

// Snapshot derives the analytics of the period ending with now's month.
// Breakdown and merchant ranking are restricted to the same window.
func (l *Ledger) Snapshot(period string, now time.Time) (core.Snapshot, error) {
	months, err := l.PeriodMonths(period, now)
	if err != nil {
		return core.Snapshot{}, err
	}
	w := l.window(now, months)
	return core.Snapshot{
		MonthlySpending:   w.MonthlySpending(now, months),
		CategoryBreakdown: w.CategoryBreakdown(),
		TopMerchants:      w.TopMerchants(DefaultTopMerchants),
		CategoryTrends:    w.CategoryTrends(now, months),
	}, nil
}

// window returns a read-only view limited to the months ending at end.
func (l *Ledger) window(end time.Time, months int) *Ledger {
	keys := monthKeys(end, months)
	in := make(map[string]bool, len(keys))
	for _, k := range keys {
		in[k] = true
	}
	w := &Ledger{categories: l.categories, now: l.now, newID: l.newID}
	for _, t := range l.transactions {
		if in[t.Date.MonthKey()] {
			w.transactions = append(w.transactions, t)
		}
	}
	return w
}

func monthKeys(end time.Time, months int) []string {
	if months <= 0 {
		return nil
	}
	first := time.Date(end.Year(), end.Month()-time.Month(months-1), 1, 0, 0, 0, 0, time.UTC)
	keys := make([]string, months)
	for i := range keys {
		keys[i] = first.AddDate(0, i, 0).Format("2006-01")
	}
	return keys
}
