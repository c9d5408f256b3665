package core

import "github.com/shopspring/decimal"

// Totals summarises the ledger by sign.
type Totals struct {
	TotalSpent  decimal.Decimal `json:"totalSpent"`
	TotalIncome decimal.Decimal `json:"totalIncome"`
	Net         decimal.Decimal `json:"net"`
}

// CategoryShare is one row of the category breakdown.
type CategoryShare struct {
	CategoryID string          `json:"categoryId"`
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage float64         `json:"percentage"` // 0-100
	Color      string          `json:"color"`
}

// MerchantTotal is one row of the top merchants ranking.
type MerchantTotal struct {
	Merchant string          `json:"merchant"`
	Amount   decimal.Decimal `json:"amount"`
	Count    int             `json:"count"`
}

// MonthlySpending is the expense total of one calendar month (YYYY-MM).
type MonthlySpending struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

// CategoryTrend maps category names to expense totals for one month.
type CategoryTrend struct {
	Month      string                     `json:"month"`
	Categories map[string]decimal.Decimal `json:"categories"`
}

// Snapshot is a derived analytics result. It is never persisted.
type Snapshot struct {
	MonthlySpending   []MonthlySpending `json:"monthlySpending"`
	CategoryBreakdown []CategoryShare   `json:"categoryBreakdown"`
	TopMerchants      []MerchantTotal   `json:"topMerchants"`
	CategoryTrends    []CategoryTrend   `json:"categoryTrends"`
}

// UploadResult is returned by a CSV ingestion.
type UploadResult struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Chat query types.
const (
	QueryAnalytics      = "analytics"
	QueryCategorization = "categorization"
	QueryGeneral        = "general"
)

// ChatReply is the assistant's answer to one message.
type ChatReply struct {
	Response        string `json:"response"`
	QueryType       string `json:"queryType"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
}
