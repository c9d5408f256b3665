package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/core"
)

// Seed file names looked up by NewFromFiles.
const (
	CategoriesFile   = "categories.json"
	TransactionsFile = "transactions.json"
)

// MockCategories is the development category set.
func MockCategories(now time.Time) []core.Category {
	return []core.Category{
		{ID: "1", Name: "Food & Dining", Description: "Restaurants, groceries, and food-related expenses", Color: "#FF6B6B", IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: "2", Name: "Transportation", Description: "Gas, public transport, rideshare", Color: "#4ECDC4", IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: "3", Name: "Shopping", Description: "Clothing, electronics, general merchandise", Color: "#45B7D1", IsActive: true, CreatedAt: now, UpdatedAt: now},
	}
}

// MockTransactions is the development transaction set, referencing
// MockCategories.
func MockTransactions(now time.Time) []core.Transaction {
	cats := MockCategories(now)
	return []core.Transaction{
		{
			ID: "1", Date: core.NewDate(2024, 1, 15), Description: "Starbucks Coffee",
			Amount: decimal.RequireFromString("-5.50"), CategoryID: "1", Category: &cats[0],
			Merchant: "Starbucks", AccountType: "Credit Card", CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "2", Date: core.NewDate(2024, 1, 14), Description: "Shell Gas Station",
			Amount: decimal.RequireFromString("-45.00"), CategoryID: "2", Category: &cats[1],
			Merchant: "Shell", AccountType: "Debit Card", CreatedAt: now, UpdatedAt: now,
		},
	}
}

// NewFromFiles seeds a store from JSON files in base, falling back to the
// mock data for any file that is missing or unreadable.
func NewFromFiles(base string, opts ...Option) *Store {
	now := time.Now().UTC()
	cats := readJSON[[]core.Category](filepath.Join(base, CategoriesFile))
	if len(cats) == 0 {
		cats = MockCategories(now)
	}
	txs := readJSON[[]core.Transaction](filepath.Join(base, TransactionsFile))
	if txs == nil {
		txs = MockTransactions(now)
	}
	return New(cats, txs, opts...)
}

func readJSON[T any](path string) T {
	var out T
	b, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(b, &out); err != nil {
		var zero T
		return zero
	}
	return out
}
