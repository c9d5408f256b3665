package ledger

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/core"
)

func dated(id, amount, categoryID, merchant string, d core.Date) core.Transaction {
	t := tx(id, amount, categoryID, merchant, id)
	t.Date = d
	return t
}

func percentSum(shares []core.CategoryShare) float64 {
	sum := 0.0
	for _, s := range shares {
		sum += s.Percentage
	}
	return sum
}

func TestCategoryBreakdown(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{
		tx("a", "-5.50", "1", "Starbucks", ""),
		tx("b", "-45.00", "2", "Shell", ""),
		tx("c", "-49.50", "1", "", ""),
		tx("d", "1200", "1", "", ""), // income never counts
	}, mockCategories())

	got := l.CategoryBreakdown()
	if len(got) != 2 {
		t.Fatalf("expected 2 rows (zero-sum Shopping excluded), got %+v", got)
	}
	if got[0].Category != "Food & Dining" || !got[0].Amount.Equal(dec("55")) || got[0].Percentage != 55 {
		t.Errorf("row 0 = %+v", got[0])
	}
	if got[1].Category != "Transportation" || !got[1].Amount.Equal(dec("45")) || got[1].Percentage != 45 {
		t.Errorf("row 1 = %+v", got[1])
	}
	if got[0].Color != "#FF6B6B" {
		t.Errorf("color = %s", got[0].Color)
	}
}

func TestCategoryBreakdownPercentagesSum(t *testing.T) {
	tests := []struct {
		name string
		txs  []core.Transaction
	}{
		{
			name: "all categorized",
			txs:  []core.Transaction{tx("a", "-1", "1", "", ""), tx("b", "-1", "2", "", ""), tx("c", "-1", "2", "", "")},
		},
		{
			name: "uncategorized and dangling excluded",
			txs:  []core.Transaction{tx("a", "-10", "1", "", ""), tx("b", "-3", "", "", ""), tx("c", "-7", "42", "", "")},
		},
		{
			name: "inactive category still counted",
			txs:  []core.Transaction{tx("a", "-2.5", "3", "", ""), tx("b", "-7.5", "1", "", "")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger()
			l.Load(tt.txs, mockCategories())
			sum := percentSum(l.CategoryBreakdown())
			if math.Abs(sum-100) > 1e-9 {
				t.Fatalf("percentages sum to %v, want 100", sum)
			}
		})
	}
}

func TestCategoryBreakdownEmpty(t *testing.T) {
	cases := map[string][]core.Transaction{
		"no transactions": nil,
		"income only":     {tx("a", "1200", "1", "", "")},
		"uncategorized":   {tx("a", "-5", "", "", "")},
	}
	for name, txs := range cases {
		l := newTestLedger()
		l.Load(txs, mockCategories())
		got := l.CategoryBreakdown()
		if got == nil || len(got) != 0 {
			t.Fatalf("%s: expected empty non-nil breakdown, got %#v", name, got)
		}
		if percentSum(got) != 0 {
			t.Fatalf("%s: percentages should sum to 0", name)
		}
	}

	l := newTestLedger()
	l.Load([]core.Transaction{tx("a", "-5", "1", "", "")}, nil)
	if got := l.CategoryBreakdown(); len(got) != 0 {
		t.Fatalf("no categories: expected empty breakdown, got %+v", got)
	}
}

func TestTopMerchantsTieBreak(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{
		tx("1", "-60", "", "A", ""),
		tx("2", "-50", "", "B", ""),
		tx("3", "-100", "", "C", ""),
		tx("4", "-40", "", "A", ""),
		tx("5", "25", "", "B", ""), // income is not spending
		tx("6", "-10", "", "", ""), // no merchant
	}, nil)

	got := l.TopMerchants(3)
	want := []struct {
		merchant string
		amount   string
		count    int
	}{
		{"A", "100", 2}, // tied with C, seen first
		{"C", "100", 1},
		{"B", "50", 1},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d rows: %+v", len(got), got)
	}
	for i, w := range want {
		if got[i].Merchant != w.merchant || !got[i].Amount.Equal(dec(w.amount)) || got[i].Count != w.count {
			t.Errorf("row %d = %+v, want %+v", i, got[i], w)
		}
	}

	if got := l.TopMerchants(2); len(got) != 2 || got[1].Merchant != "C" {
		t.Errorf("truncation: %+v", got)
	}
	if got := l.TopMerchants(0); len(got) != 3 {
		t.Errorf("limit 0 should return all merchants, got %d", len(got))
	}
}

func TestTopMerchantsEmpty(t *testing.T) {
	l := newTestLedger()
	if got := l.TopMerchants(5); got == nil || len(got) != 0 {
		t.Fatalf("expected empty ranking, got %#v", got)
	}
}

func TestTopCategoryAndCounts(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{
		tx("a", "-5.50", "1", "", ""),
		tx("b", "-45.00", "2", "", ""),
		tx("c", "100", "2", "", ""),
	}, mockCategories())

	top, ok := l.TopCategory()
	if !ok || top.Category != "Transportation" {
		t.Fatalf("top category = %+v ok=%v", top, ok)
	}
	counts := l.CategoryCounts()
	if counts["1"] != 1 || counts["2"] != 2 || counts["3"] != 0 {
		t.Fatalf("counts = %v", counts)
	}

	empty := newTestLedger()
	if _, ok := empty.TopCategory(); ok {
		t.Fatalf("empty ledger has no top category")
	}
}

func TestAverageMonthlySpend(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{tx("a", "-50.50", "", "", ""), tx("b", "-10", "", "", "")}, nil)

	if got := l.AverageMonthlySpend(6); !got.Equal(dec("10.08")) {
		t.Fatalf("average = %s, want 10.08", got)
	}
	for _, months := range []int{0, -3} {
		if got := l.AverageMonthlySpend(months); !got.IsZero() {
			t.Fatalf("months=%d: expected zero, got %s", months, got)
		}
	}
}

func TestMonthlySpending(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{
		dated("a", "-10", "1", "", core.NewDate(2023, 11, 3)),
		dated("b", "-5.25", "1", "", core.NewDate(2024, 1, 2)),
		dated("c", "-4.75", "2", "", core.NewDate(2024, 1, 28)),
		dated("d", "900", "", "", core.NewDate(2024, 1, 1)),
		dated("e", "-99", "", "", core.NewDate(2023, 6, 1)), // outside window
	}, mockCategories())

	got := l.MonthlySpending(fixedNow, 3)
	want := []struct {
		month  string
		amount string
		count  int
	}{
		{"2023-11", "10", 1},
		{"2023-12", "0", 0},
		{"2024-01", "10", 2},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i, w := range want {
		if got[i].Month != w.month || !got[i].Amount.Equal(dec(w.amount)) || got[i].Count != w.count {
			t.Errorf("month %d = %+v, want %+v", i, got[i], w)
		}
	}

	if got := l.MonthlySpending(fixedNow, 0); len(got) != 0 {
		t.Fatalf("zero months should yield no entries")
	}
}

func TestCategoryTrends(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{
		dated("a", "-10", "1", "", core.NewDate(2023, 12, 3)),
		dated("b", "-5", "1", "", core.NewDate(2024, 1, 2)),
		dated("c", "-4", "2", "", core.NewDate(2024, 1, 28)),
		dated("d", "-7", "42", "", core.NewDate(2024, 1, 28)), // dangling id
	}, mockCategories())

	got := l.CategoryTrends(fixedNow, 2)
	if len(got) != 2 || got[0].Month != "2023-12" || got[1].Month != "2024-01" {
		t.Fatalf("months = %+v", got)
	}
	if !got[0].Categories["Food & Dining"].Equal(dec("10")) {
		t.Errorf("dec food = %s", got[0].Categories["Food & Dining"])
	}
	if !got[1].Categories["Transportation"].Equal(dec("4")) || len(got[1].Categories) != 2 {
		t.Errorf("jan = %+v", got[1].Categories)
	}
}

func TestSnapshot(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{
		dated("a", "-5.50", "1", "Starbucks", core.NewDate(2024, 1, 15)),
		dated("b", "-45.00", "2", "Shell", core.NewDate(2024, 1, 14)),
		dated("old", "-500", "2", "Shell", core.NewDate(2021, 1, 1)),
	}, mockCategories())

	snap, err := l.Snapshot(Period6Months, fixedNow)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.MonthlySpending) != 6 || snap.MonthlySpending[5].Month != "2024-01" {
		t.Fatalf("monthly = %+v", snap.MonthlySpending)
	}
	if len(snap.TopMerchants) != 2 || !snap.TopMerchants[0].Amount.Equal(dec("45")) {
		t.Fatalf("window should exclude old transaction: %+v", snap.TopMerchants)
	}
	if len(snap.CategoryTrends) != 6 || len(snap.CategoryBreakdown) != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	all, err := l.Snapshot(PeriodAll, fixedNow)
	if err != nil {
		t.Fatalf("snapshot all: %v", err)
	}
	if len(all.MonthlySpending) != 37 || all.MonthlySpending[0].Month != "2021-01" {
		t.Fatalf("all-time window = %d months starting %s", len(all.MonthlySpending), all.MonthlySpending[0].Month)
	}

	if _, err := l.Snapshot("fortnight", fixedNow); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for unknown period, got %v", err)
	}
}

func TestSnapshotEmptyLedger(t *testing.T) {
	l := newTestLedger()
	snap, err := l.Snapshot(PeriodAll, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.MonthlySpending) != 1 || !snap.MonthlySpending[0].Amount.Equal(decimal.Zero) {
		t.Fatalf("monthly = %+v", snap.MonthlySpending)
	}
	if len(snap.CategoryBreakdown) != 0 || len(snap.TopMerchants) != 0 {
		t.Fatalf("expected empty aggregates: %+v", snap)
	}
}

func TestPeriodMonths(t *testing.T) {
	l := newTestLedger()
	tests := []struct {
		period string
		want   int
	}{
		{"", 6},
		{Period1Month, 1},
		{Period3Months, 3},
		{" 6Months ", 6},
		{Period1Year, 12},
		{"12months", 12},
		{PeriodAll, 1},
	}
	for _, tt := range tests {
		got, err := l.PeriodMonths(tt.period, fixedNow)
		if err != nil || got != tt.want {
			t.Errorf("PeriodMonths(%q) = %d, %v; want %d", tt.period, got, err, tt.want)
		}
	}
}

func TestMonthBreakdown(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{
		dated("a", "-10", "1", "", core.NewDate(2024, 1, 5)),
		dated("b", "-30", "2", "", core.NewDate(2024, 1, 28)),
		dated("c", "-99", "1", "", core.NewDate(2023, 12, 31)),
	}, mockCategories())

	got, err := l.MonthBreakdown("2024-01")
	if err != nil {
		t.Fatalf("MonthBreakdown: %v", err)
	}
	if len(got) != 2 || !got[0].Amount.Equal(dec("10")) || got[1].Percentage != 75 {
		t.Fatalf("january = %+v", got)
	}

	if got, err := l.MonthBreakdown("2023-11"); err != nil || len(got) != 0 {
		t.Fatalf("empty month = %+v, %v", got, err)
	}
	if _, err := l.MonthBreakdown("January"); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
