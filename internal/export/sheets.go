package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"spendwise/internal/core"
)

// Appender appends rows below the last filled row of a range.
type Appender interface {
	Append(ctx context.Context, rng string, rows [][]any) (updated int, err error)
}

// SheetsExporter appends transactions to one sheet of a spreadsheet.
type SheetsExporter struct {
	appender Appender
	sheet    string
	logger   *slog.Logger
}

// NewSheetsExporter uses appender to write into sheet.
func NewSheetsExporter(appender Appender, sheet string, logger *slog.Logger) *SheetsExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SheetsExporter{appender: appender, sheet: sheet, logger: logger}
}

// Export appends one row per transaction, with a header row first when
// withHeader is set. It returns the number of rows written.
func (e *SheetsExporter) Export(ctx context.Context, txs []core.Transaction, withHeader bool) (int, error) {
	rows := make([][]any, 0, len(txs)+1)
	if withHeader {
		rows = append(rows, toAny(Header))
	}
	for _, t := range txs {
		row := toAny(Row(t))
		// numeric cell so the sheet can sum it
		row[2] = t.Amount.InexactFloat64()
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	rng := fmt.Sprintf("%s!A:G", e.sheet)
	n, err := e.appender.Append(ctx, rng, rows)
	if err != nil {
		return 0, core.Upstream("export.sheets", fmt.Errorf("append to %s: %w", rng, err))
	}
	e.logger.InfoContext(ctx, "Transactions exported to sheet",
		"sheet", e.sheet,
		"count", len(txs),
		"rows", n)
	return n, nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// SheetsClient appends through the Google Sheets API.
type SheetsClient struct {
	svc           *gsheet.Service
	spreadsheetID string
}

var _ Appender = (*SheetsClient)(nil)

// Credentials selects the service account. JSON wins over File.
type Credentials struct {
	JSON string
	File string
}

func (c Credentials) load() ([]byte, error) {
	switch {
	case strings.TrimSpace(c.JSON) != "":
		return []byte(c.JSON), nil
	case c.File != "":
		b, err := os.ReadFile(c.File)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// NewSheetsClient creates a Sheets API client for spreadsheetID.
func NewSheetsClient(ctx context.Context, spreadsheetID string, creds Credentials, opts ...goption.ClientOption) (*SheetsClient, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if len(opts) == 0 {
		raw, err := creds.load()
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(raw),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsClient{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (c *SheetsClient) Append(ctx context.Context, rng string, rows [][]any) (int, error) {
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	if resp.Updates == nil {
		return len(rows), nil
	}
	return int(resp.Updates.UpdatedRows), nil
}
