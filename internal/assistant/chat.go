package assistant

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/core"
	"spendwise/internal/ledger"
)

// Suggestions are the canned questions offered to a new chat.
var Suggestions = []string{
	"What did I spend this month?",
	"Show me my spending trends",
	"Which category do I spend most on?",
	"What are my top merchants?",
	"Help me categorize my transactions",
}

const currency = "USD"

var hundred = decimal.NewFromInt(100)

type topic int

const (
	topicGeneral topic = iota
	topicSpending
	topicCategory
	topicCategorize
	topicTrend
	topicMerchant
	topicBudget
)

var routes = []struct {
	topic    topic
	keywords []string
}{
	{topicCategorize, []string{"categorize", "categorise", "uncategorized"}},
	{topicTrend, []string{"trend", "monthly", "per month", "average"}},
	{topicMerchant, []string{"merchant", "where", "store"}},
	{topicCategory, []string{"category", "categories"}},
	{topicSpending, []string{"spending", "spent", "spend", "total", "how much"}},
	{topicBudget, []string{"budget", "limit"}},
}

func route(message string) topic {
	q := strings.ToLower(message)
	for _, r := range routes {
		for _, kw := range r.keywords {
			if strings.Contains(q, kw) {
				return r.topic
			}
		}
	}
	return topicGeneral
}

// Answer replies to message from the numbers in l. The ledger is only read.
func Answer(l *ledger.Ledger, now time.Time, message string) core.ChatReply {
	start := time.Now()
	var text, kind string
	switch route(message) {
	case topicSpending:
		text, kind = spendingAnswer(l, now), core.QueryAnalytics
	case topicCategory:
		text, kind = categoryAnswer(l), core.QueryAnalytics
	case topicTrend:
		text, kind = trendAnswer(l, now), core.QueryAnalytics
	case topicMerchant:
		text, kind = merchantAnswer(l), core.QueryAnalytics
	case topicCategorize:
		text, kind = categorizeAnswer(l), core.QueryCategorization
	case topicBudget:
		text = "Budget limits per category are not available yet. Ask me about spending, categories, trends or merchants in the meantime."
		kind = core.QueryGeneral
	default:
		text = fmt.Sprintf("I understand you're asking about %q. I can analyze your spending, categorize transactions and show trends or top merchants. Could you be more specific?", strings.TrimSpace(message))
		kind = core.QueryGeneral
	}
	return core.ChatReply{Response: text, QueryType: kind, ExecutionTimeMs: time.Since(start).Milliseconds()}
}

func spendingAnswer(l *ledger.Ledger, now time.Time) string {
	totals := l.Totals()
	if totals.TotalSpent.IsZero() {
		return "You have no recorded expenses yet."
	}
	month := l.MonthlySpending(now, 1)[0]
	var b strings.Builder
	fmt.Fprintf(&b, "You've spent %s in total and %s this month across %d transactions.",
		core.FormatCurrency(totals.TotalSpent, currency), core.FormatCurrency(month.Amount, currency), month.Count)
	if shares := l.CategoryBreakdown(); len(shares) > 0 {
		b.WriteString(" Top categories: ")
		for i, s := range shares[:min(3, len(shares))] {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s (%s)", s.Category, core.FormatPercent(s.Percentage, 0))
		}
		b.WriteString(".")
	}
	return b.String()
}

func categoryAnswer(l *ledger.Ledger) string {
	top, ok := l.TopCategory()
	if !ok {
		return "None of your expenses are categorized yet."
	}
	return fmt.Sprintf("You spend the most on %s: %s, %s of categorized spending.",
		top.Category, core.FormatCurrency(top.Amount, currency), core.FormatPercent(top.Percentage, 1))
}

func trendAnswer(l *ledger.Ledger, now time.Time) string {
	months := l.MonthlySpending(now, 6)
	avg := l.AverageMonthlySpend(len(months))
	last, prev := months[len(months)-1], months[len(months)-2]
	text := fmt.Sprintf("Your average monthly spending over the last %d months is %s. This month you've spent %s.",
		len(months), core.FormatCurrency(avg, currency), core.FormatCurrency(last.Amount, currency))
	if prev.Amount.IsPositive() {
		change := last.Amount.Sub(prev.Amount).Div(prev.Amount).Mul(hundred).InexactFloat64()
		direction := "more"
		if change < 0 {
			direction, change = "less", -change
		}
		text += fmt.Sprintf(" That's %s %s than last month.", core.FormatPercent(change, 0), direction)
	}
	return text
}

func merchantAnswer(l *ledger.Ledger) string {
	top := l.TopMerchants(3)
	if len(top) == 0 {
		return "No merchant spending recorded yet."
	}
	parts := make([]string, len(top))
	for i, m := range top {
		parts[i] = fmt.Sprintf("%s (%s, %d purchases)", m.Merchant, core.FormatCurrency(m.Amount, currency), m.Count)
	}
	return "Your top merchants are " + strings.Join(parts, ", ") + "."
}

func categorizeAnswer(l *ledger.Ledger) string {
	pending := 0
	for _, t := range l.Transactions() {
		if !l.ResolveCategory(t).IsKnown() {
			pending++
		}
	}
	if pending == 0 {
		return "All your transactions are categorized."
	}
	return fmt.Sprintf("%d transactions have no category. I match descriptions and merchants against keyword rules; use categorize on a transaction to apply them.", pending)
}
