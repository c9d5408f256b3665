// Package assistant provides the local stand-ins for the server-side
// categorizer and chat: keyword rules over descriptions and merchants, and
// answers computed from the ledger's aggregations.
package assistant

import (
	"strings"

	"spendwise/internal/core"
)

// Rule assigns Category to transactions whose description or merchant
// contains one of Keywords.
type Rule struct {
	Category string
	Keywords []string
}

// DefaultRules cover the stock category set.
var DefaultRules = []Rule{
	{Category: "Food & Dining", Keywords: []string{"starbucks", "coffee", "cafe", "restaurant", "pizza", "grocery", "supermarket", "bakery", "mcdonald", "burger"}},
	{Category: "Transportation", Keywords: []string{"shell", "gas station", "fuel", "uber", "lyft", "taxi", "parking", "metro", "transit", "toll"}},
	{Category: "Shopping", Keywords: []string{"amazon", "target", "walmart", "ikea", "store", "shop", "mall"}},
	{Category: "Entertainment", Keywords: []string{"netflix", "spotify", "cinema", "movie", "theater", "concert", "steam"}},
	{Category: "Bills & Utilities", Keywords: []string{"electric", "water bill", "internet", "phone", "utility", "insurance", "rent"}},
	{Category: "Healthcare", Keywords: []string{"pharmacy", "doctor", "dental", "hospital", "clinic"}},
	{Category: "Education", Keywords: []string{"tuition", "course", "udemy", "books", "school"}},
	{Category: "Travel", Keywords: []string{"airline", "hotel", "airbnb", "booking.com", "flight"}},
	{Category: "Income", Keywords: []string{"salary", "payroll", "deposit", "dividend"}},
	{Category: "Transfer", Keywords: []string{"transfer", "venmo", "paypal", "zelle"}},
}

type Categorizer struct {
	rules []Rule
}

func NewCategorizer(rules []Rule) *Categorizer {
	if rules == nil {
		rules = DefaultRules
	}
	return &Categorizer{rules: rules}
}

// Categorize returns the id of the first rule's category that matches t and
// exists among categories. Rules are matched in order; ok is false when
// nothing matches.
func (c *Categorizer) Categorize(t core.Transaction, categories []core.Category) (string, bool) {
	text := strings.ToLower(t.Description + " " + t.Merchant)
	for _, r := range c.rules {
		id, exists := categoryID(categories, r.Category)
		if !exists {
			continue
		}
		for _, kw := range r.Keywords {
			if strings.Contains(text, kw) {
				return id, true
			}
		}
	}
	return "", false
}

func categoryID(categories []core.Category, name string) (string, bool) {
	for _, c := range categories {
		if strings.EqualFold(c.Name, name) {
			return c.ID, true
		}
	}
	return "", false
}
