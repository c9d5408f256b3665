// Package export writes transactions out as CSV, JSON or to a Google
// spreadsheet.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"spendwise/internal/core"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

var ErrUnknownFormat = errors.New("export format must be csv or json")

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return f, nil
	default:
		return "", core.Validation("export.format", fmt.Errorf("%w: %q", ErrUnknownFormat, s))
	}
}

// ContentType is the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// FileName is the suggested name for an export made at now.
func FileName(f Format, now time.Time) string {
	return fmt.Sprintf("transactions-%s.%s", now.Format(core.DateLayout), f)
}

// Header is the CSV column order. It is accepted back by the importer.
var Header = []string{"date", "description", "amount", "category", "merchant", "account type", "account number"}

// Write encodes txs in format f.
func Write(w io.Writer, f Format, txs []core.Transaction) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, txs)
	case FormatJSON:
		return WriteJSON(w, txs)
	default:
		return core.Validation("export.write", fmt.Errorf("%w: %q", ErrUnknownFormat, f))
	}
}

func WriteCSV(w io.Writer, txs []core.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range txs {
		if err := cw.Write(Row(t)); err != nil {
			return fmt.Errorf("write csv row %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteJSON(w io.Writer, txs []core.Transaction) error {
	if txs == nil {
		txs = []core.Transaction{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(txs)
}

// Row renders one transaction in Header order. The category column holds
// the category name when known and the raw id otherwise.
func Row(t core.Transaction) []string {
	category := t.CategoryID
	if t.Category != nil && t.Category.Name != "" {
		category = t.Category.Name
	}
	return []string{
		t.Date.String(),
		t.Description,
		t.Amount.String(),
		category,
		t.Merchant,
		t.AccountType,
		t.AccountNumber,
	}
}
