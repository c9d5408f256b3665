// Package report renders ledger views for the terminal and as PNG charts.
package report

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/wcharczuk/go-chart/v2"

	"spendwise/internal/core"
)

// Currency used for amounts in tables and chart axes.
const Currency = "USD"

var ErrNoChartData = errors.New("no spending to chart")

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	return table
}

// Transactions prints one row per transaction. Unknown categories show as
// "Uncategorized".
func Transactions(w io.Writer, txs []core.Transaction, categories []core.Category) {
	byID := make(map[string]core.Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	table := newTable(w, "Date", "Description", "Merchant", "Category", "Amount")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT,
	})
	for _, t := range txs {
		ref := core.Unknown()
		if c, ok := byID[t.CategoryID]; ok {
			ref = core.Known(c)
		}
		table.Append([]string{
			t.Date.String(),
			t.Description,
			t.Merchant,
			ref.Name(),
			core.FormatCurrency(t.Amount, Currency),
		})
	}
	table.SetFooter([]string{"", "", "", strconv.Itoa(len(txs)) + " transactions", ""})
	table.Render()
}

// Summary prints the totals block.
func Summary(w io.Writer, totals core.Totals, count int, avgMonthly decimal.Decimal) {
	table := newTable(w, "Metric", "Value")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.AppendBulk([][]string{
		{"Total spent", core.FormatCurrency(totals.TotalSpent, Currency)},
		{"Total income", core.FormatCurrency(totals.TotalIncome, Currency)},
		{"Net", core.FormatCurrency(totals.Net, Currency)},
		{"Transactions", strconv.Itoa(count)},
		{"Average per month", core.FormatCurrency(avgMonthly, Currency)},
	})
	table.Render()
}

func Breakdown(w io.Writer, shares []core.CategoryShare) {
	table := newTable(w, "Category", "Amount", "Share")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT})
	for _, s := range shares {
		table.Append([]string{s.Category, core.FormatCurrency(s.Amount, Currency), core.FormatPercent(s.Percentage, 1)})
	}
	table.Render()
}

func Merchants(w io.Writer, merchants []core.MerchantTotal) {
	table := newTable(w, "Merchant", "Amount", "Count")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT})
	for _, m := range merchants {
		table.Append([]string{m.Merchant, core.FormatCurrency(m.Amount, Currency), strconv.Itoa(m.Count)})
	}
	table.Render()
}

// MonthlyChart renders the monthly series as a PNG bar chart. A series
// without any spending returns ErrNoChartData.
func MonthlyChart(w io.Writer, months []core.MonthlySpending, title string) error {
	bars := make([]chart.Value, 0, len(months))
	var top float64
	for _, m := range months {
		v := m.Amount.InexactFloat64()
		top = max(top, v)
		bars = append(bars, chart.Value{Label: m.Month, Value: v})
	}
	if top <= 0 {
		return ErrNoChartData
	}

	barChart := chart.BarChart{
		Title: title,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    40,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
		},
		Width:    800,
		Height:   400,
		BarWidth: 50,
		Bars:     bars,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top * 1.1},
			ValueFormatter: func(v interface{}) string {
				if vf, ok := v.(float64); ok {
					return core.FormatCurrency(decimal.NewFromFloat(vf).Round(0), Currency)
				}
				return ""
			},
		},
	}
	if err := barChart.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
