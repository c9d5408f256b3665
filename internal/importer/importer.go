// Package importer turns bank CSV exports into transaction drafts.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"spendwise/internal/core"
)

var (
	ErrNoHeader      = errors.New("missing header row")
	ErrMissingColumn = errors.New("missing required column")
	ErrNoRows        = errors.New("no transactions in file")
)

// MaxRows bounds a single upload.
const MaxRows = 10000

// column aliases, lower-cased.
var aliases = map[string][]string{
	"date":          {"date", "transaction date", "posted date", "posting date"},
	"description":   {"description", "details", "memo", "narrative"},
	"amount":        {"amount", "value", "transaction amount"},
	"merchant":      {"merchant", "payee", "counterparty"},
	"category":      {"category", "category id", "categoryid"},
	"accountType":   {"account type", "accounttype", "account_type"},
	"accountNumber": {"account number", "accountnumber", "account_number", "account"},
	"debit":         {"debit", "withdrawal"},
	"credit":        {"credit", "deposit"},
}

var dateLayouts = []string{core.DateLayout, "01/02/2006", "1/2/2006", "2006/01/02", "02.01.2006", time.RFC3339}

// RowError locates a malformed row.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Parse reads a CSV with a header row. Category cells are matched against
// categories by id or case-insensitive name; unmatched names are left
// uncategorized. Any malformed row fails the whole file with a validation
// error naming its line.
func Parse(r io.Reader, categories []core.Category) ([]core.Draft, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, core.Validation("importer.parse", ErrNoHeader)
	}
	if err != nil {
		return nil, core.Validation("importer.parse", err)
	}
	cols := mapColumns(header)
	if _, ok := cols["date"]; !ok {
		return nil, core.Validation("importer.parse", fmt.Errorf("%w: date", ErrMissingColumn))
	}
	if _, ok := cols["description"]; !ok {
		return nil, core.Validation("importer.parse", fmt.Errorf("%w: description", ErrMissingColumn))
	}
	_, hasAmount := cols["amount"]
	_, hasDebit := cols["debit"]
	if !hasAmount && !hasDebit {
		return nil, core.Validation("importer.parse", fmt.Errorf("%w: amount", ErrMissingColumn))
	}

	byName := make(map[string]string, len(categories))
	byID := make(map[string]bool, len(categories))
	for _, c := range categories {
		byName[strings.ToLower(strings.TrimSpace(c.Name))] = c.ID
		byID[c.ID] = true
	}

	var drafts []core.Draft
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.Validation("importer.parse", err)
		}
		if blank(record) {
			continue
		}
		if len(drafts) == MaxRows {
			return nil, core.Validation("importer.parse", fmt.Errorf("more than %d rows", MaxRows))
		}
		d, err := parseRow(record, cols)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, core.Validation("importer.parse", &RowError{Line: line, Err: err})
		}
		if cat := field(record, cols, "category"); cat != "" {
			switch {
			case byID[cat]:
				d.CategoryID = cat
			default:
				d.CategoryID = byName[strings.ToLower(cat)]
			}
		}
		drafts = append(drafts, d)
	}
	if len(drafts) == 0 {
		return nil, core.Validation("importer.parse", ErrNoRows)
	}
	return drafts, nil
}

func parseRow(record []string, cols map[string]int) (core.Draft, error) {
	date, err := parseDate(field(record, cols, "date"))
	if err != nil {
		return core.Draft{}, err
	}
	amount, err := rowAmount(record, cols)
	if err != nil {
		return core.Draft{}, err
	}
	d := core.Draft{
		Date:          date,
		Description:   field(record, cols, "description"),
		Amount:        amount,
		Merchant:      field(record, cols, "merchant"),
		AccountType:   field(record, cols, "accountType"),
		AccountNumber: field(record, cols, "accountNumber"),
	}
	if err := d.Validate(); err != nil {
		return core.Draft{}, err
	}
	return d, nil
}

// rowAmount reads a signed amount column, or split debit/credit columns
// where debits become expenses.
func rowAmount(record []string, cols map[string]int) (float64, error) {
	if v := field(record, cols, "amount"); v != "" {
		return core.ParseAmount(v)
	}
	if v := field(record, cols, "debit"); v != "" {
		a, err := core.ParseAmount(v)
		if err != nil {
			return 0, err
		}
		if a > 0 {
			a = -a
		}
		return a, nil
	}
	if v := field(record, cols, "credit"); v != "" {
		a, err := core.ParseAmount(v)
		if err != nil {
			return 0, err
		}
		if a < 0 {
			a = -a
		}
		return a, nil
	}
	return 0, core.ErrInvalidAmount
}

func parseDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, core.ErrZeroDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.NewDate(t.Year(), int(t.Month()), t.Day()), nil
		}
	}
	return core.Date{}, fmt.Errorf("invalid date %q", s)
}

func mapColumns(header []string) map[string]int {
	cols := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for key, names := range aliases {
			if _, seen := cols[key]; seen {
				continue
			}
			for _, n := range names {
				if name == n {
					cols[key] = i
					break
				}
			}
		}
	}
	return cols
}

func field(record []string, cols map[string]int, key string) string {
	i, ok := cols[key]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
