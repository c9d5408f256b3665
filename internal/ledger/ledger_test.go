package ledger

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/core"
)

var fixedNow = time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)

func newTestLedger() *Ledger {
	n := 0
	return New(
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("tx-%d", n) }),
	)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mockCategories() []core.Category {
	return []core.Category{
		{ID: "1", Name: "Food & Dining", Color: "#FF6B6B", IsActive: true},
		{ID: "2", Name: "Transportation", Color: "#4ECDC4", IsActive: true},
		{ID: "3", Name: "Shopping", IsActive: false},
	}
}

func tx(id, amount, categoryID, merchant, description string) core.Transaction {
	return core.Transaction{
		ID:          id,
		Date:        core.NewDate(2024, 1, 15),
		Description: description,
		Amount:      dec(amount),
		CategoryID:  categoryID,
		Merchant:    merchant,
	}
}

func TestTotalsEndToEnd(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{
		tx("a", "-5.50", "1", "Starbucks", "Starbucks Coffee"),
		tx("b", "-45.00", "2", "Shell", "Shell Gas Station"),
		tx("c", "1200", "", "", "Salary"),
	}, mockCategories())

	got := l.Totals()
	if !got.TotalSpent.Equal(dec("50.50")) {
		t.Errorf("totalSpent = %s, want 50.50", got.TotalSpent)
	}
	if !got.TotalIncome.Equal(dec("1200")) {
		t.Errorf("totalIncome = %s, want 1200", got.TotalIncome)
	}
	if !got.Net.Equal(dec("1149.50")) {
		t.Errorf("net = %s, want 1149.50", got.Net)
	}
}

func TestTotalsProperties(t *testing.T) {
	sets := [][]core.Transaction{
		nil,
		{tx("a", "0", "", "", "zero")},
		{tx("a", "-0.01", "", "", "x"), tx("b", "-99999.99", "9", "", "y")},
		{tx("a", "10", "", "", "x"), tx("b", "0.3", "", "", "y"), tx("c", "-0.1", "", "", "z")},
	}
	for i, set := range sets {
		l := newTestLedger()
		l.Load(set, mockCategories())
		got := l.Totals()
		if got.TotalSpent.IsNegative() || got.TotalIncome.IsNegative() {
			t.Fatalf("set %d: negative totals %+v", i, got)
		}
		if !got.Net.Equal(got.TotalIncome.Sub(got.TotalSpent)) {
			t.Fatalf("set %d: net %s != income - spent", i, got.Net)
		}
	}
}

func TestAddAssignsIdentity(t *testing.T) {
	l := newTestLedger()
	l.Load(nil, mockCategories())

	got, err := l.Add(core.Draft{Description: "Coffee", Amount: -5.5, CategoryID: "1", Merchant: "Starbucks"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got.ID != "tx-1" || !got.CreatedAt.Equal(fixedNow) || !got.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("identity not assigned: %+v", got)
	}
	if got.Category == nil || got.Category.Name != "Food & Dining" {
		t.Fatalf("category snapshot missing: %+v", got.Category)
	}

	// Duplicates are allowed.
	if _, err := l.Add(core.Draft{Description: "Coffee", Amount: -5.5, CategoryID: "1", Merchant: "Starbucks"}); err != nil {
		t.Fatalf("duplicate add: %v", err)
	}
	if l.Len() != 2 {
		t.Fatalf("len = %d, want 2", l.Len())
	}
}

func TestAddRejectsNonFiniteAmount(t *testing.T) {
	l := newTestLedger()
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := l.Add(core.Draft{Description: "bad", Amount: v})
		if !errors.Is(err, core.ErrValidation) {
			t.Fatalf("amount %v: expected validation error, got %v", v, err)
		}
	}
	if l.Len() != 0 {
		t.Fatalf("rejected drafts must not be stored")
	}
}

func TestAddThenDeleteRestoresLedger(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{
		tx("a", "-5.50", "1", "Starbucks", "Starbucks Coffee"),
		tx("b", "-45.00", "2", "Shell", "Shell Gas Station"),
	}, mockCategories())
	before := l.Transactions()

	added, err := l.Add(core.Draft{Description: "Lunch", Amount: -12})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := l.Delete(added.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	after := l.Transactions()
	if !slices.EqualFunc(before, after, core.Transaction.Equal) {
		t.Fatalf("ledger not restored:\nbefore=%+v\nafter=%+v", before, after)
	}
}

func TestUpdate(t *testing.T) {
	later := fixedNow.Add(time.Hour)
	clock := fixedNow
	l := New(WithClock(func() time.Time { return clock }))
	l.Load([]core.Transaction{tx("a", "-5.50", "1", "Starbucks", "Starbucks Coffee")}, mockCategories())

	clock = later
	desc := "Espresso"
	cat := "2"
	got, err := l.Update("a", core.Patch{Description: &desc, CategoryID: &cat})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Description != "Espresso" || got.CategoryID != "2" || !got.UpdatedAt.Equal(later) {
		t.Fatalf("patch not merged: %+v", got)
	}
	if got.Category == nil || got.Category.Name != "Transportation" {
		t.Fatalf("category snapshot not refreshed: %+v", got.Category)
	}
	if !got.Amount.Equal(dec("-5.50")) || got.Merchant != "Starbucks" {
		t.Fatalf("unpatched fields changed: %+v", got)
	}
}

func TestUpdateMissingIDLeavesLedgerUnchanged(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{
		tx("a", "-5.50", "1", "Starbucks", "Starbucks Coffee"),
		tx("b", "1200", "", "", "Salary"),
	}, mockCategories())
	before := l.Transactions()

	desc := "changed"
	_, err := l.Update("missing", core.Patch{Description: &desc})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !slices.EqualFunc(before, l.Transactions(), core.Transaction.Equal) {
		t.Fatalf("ledger changed by update of missing id")
	}
}

func TestUpdateRejectsNonFiniteAmount(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{tx("a", "-5.50", "1", "", "x")}, nil)
	nan := math.NaN()
	if _, err := l.Update("a", core.Patch{Amount: &nan}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, _ := l.Get("a")
	if !got.Amount.Equal(dec("-5.50")) {
		t.Fatalf("amount changed: %s", got.Amount)
	}
}

func TestDeleteMissingID(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{tx("a", "-1", "", "", "x")}, nil)
	if err := l.Delete("zzz"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if l.Len() != 1 {
		t.Fatalf("len = %d", l.Len())
	}
}

func TestReplaceInsertUpsert(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{tx("a", "-1", "", "", "a"), tx("b", "-2", "", "", "b")}, nil)

	if err := l.Replace("a", tx("srv-a", "-1", "", "", "a")); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if l.IndexOf("srv-a") != 0 || l.IndexOf("a") != -1 {
		t.Fatalf("replace should keep position")
	}

	l.Insert(1, tx("c", "-3", "", "", "c"))
	l.Insert(99, tx("d", "-4", "", "", "d"))
	ids := []string{}
	for _, x := range l.Transactions() {
		ids = append(ids, x.ID)
	}
	if !slices.Equal(ids, []string{"srv-a", "c", "b", "d"}) {
		t.Fatalf("order = %v", ids)
	}

	l.Upsert(tx("c", "-30", "", "", "c"))
	l.Upsert(tx("e", "-5", "", "", "e"))
	if got, _ := l.Get("c"); !got.Amount.Equal(dec("-30")) {
		t.Fatalf("upsert did not replace: %s", got.Amount)
	}
	if l.Len() != 5 {
		t.Fatalf("upsert did not append, len = %d", l.Len())
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{tx("a", "-1", "1", "", "x")}, mockCategories())
	l.transactions[0].Category = &core.Category{ID: "1", Name: "Food & Dining"}

	got := l.Transactions()
	got[0].Description = "mutated"
	got[0].Category.Name = "mutated"

	again, _ := l.Get("a")
	if again.Description != "x" || again.Category.Name != "Food & Dining" {
		t.Fatalf("caller mutation leaked into ledger: %+v", again)
	}
}

func TestResolveCategory(t *testing.T) {
	l := newTestLedger()
	l.Load(nil, mockCategories())

	if ref := l.ResolveCategory(tx("a", "-1", "1", "", "")); !ref.IsKnown() || ref.Name() != "Food & Dining" {
		t.Fatalf("expected known category, got %+v", ref)
	}
	if ref := l.ResolveCategory(tx("a", "-1", "42", "", "")); ref.IsKnown() || ref.Color() != core.DefaultColor {
		t.Fatalf("dangling id should be unknown, got %+v", ref)
	}
	if ref := l.ResolveCategory(tx("a", "-1", "", "", "")); ref.IsKnown() {
		t.Fatalf("empty id should be unknown")
	}
}

func TestFilter(t *testing.T) {
	l := newTestLedger()
	all := []core.Transaction{
		tx("a", "-5.50", "1", "Starbucks", "Starbucks Coffee"),
		tx("b", "-45.00", "2", "Shell", "Gas Station"),
		tx("c", "1200", "", "", "Salary"),
		tx("d", "-8", "1", "", "Shellfish dinner"),
	}
	l.Load(all, mockCategories())

	ids := func(search, category string) []string {
		var out []string
		for x := range l.Filter(search, category) {
			out = append(out, x.ID)
		}
		return out
	}

	tests := []struct {
		name     string
		search   string
		category string
		want     []string
	}{
		{"empty matches all in order", "", "", []string{"a", "b", "c", "d"}},
		{"merchant case insensitive", "shell", "", []string{"b", "d"}},
		{"description match", "COFFEE", "", []string{"a"}},
		{"category only", "", "1", []string{"a", "d"}},
		{"search and category", "shell", "1", []string{"d"}},
		{"unknown category", "", "99", nil},
		{"no match", "amazon", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ids(tt.search, tt.category); !slices.Equal(got, tt.want) {
				t.Errorf("Filter(%q, %q) = %v, want %v", tt.search, tt.category, got, tt.want)
			}
		})
	}

	unchanged := slices.Collect(l.Filter("", ""))
	if !slices.EqualFunc(unchanged, all, core.Transaction.Equal) {
		t.Fatalf("empty filter should return transactions unchanged")
	}

	// The sequence is a view: ranging again sees later mutations.
	seq := l.Filter("", "")
	if _, err := l.Add(core.Draft{Description: "new", Amount: -1}); err != nil {
		t.Fatal(err)
	}
	if n := len(slices.Collect(seq)); n != 5 {
		t.Fatalf("re-ranged sequence len = %d, want 5", n)
	}

	// Early break stops iteration.
	count := 0
	for range l.Filter("", "") {
		count++
		break
	}
	if count != 1 {
		t.Fatalf("break not honoured")
	}
}

func TestRecent(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{tx("a", "-1", "", "", ""), tx("b", "-1", "", "", "")}, nil)
	if got := l.Recent(5); len(got) != 2 {
		t.Fatalf("recent(5) len = %d", len(got))
	}
	if got := l.Recent(1); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("recent(1) = %+v", got)
	}
	if got := l.Recent(-1); len(got) != 0 {
		t.Fatalf("recent(-1) len = %d", len(got))
	}
}

func TestResetEmptiesLedger(t *testing.T) {
	l := newTestLedger()
	l.Load([]core.Transaction{tx("a", "-1", "", "", "")}, mockCategories())
	l.Reset()
	if l.Len() != 0 || len(l.Categories()) != 0 {
		t.Fatalf("reset left data behind")
	}
}
