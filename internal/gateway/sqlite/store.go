// Package sqlite is a local gateway persisting transactions and categories
// in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spendwise/internal/assistant"
	"spendwise/internal/core"
	"spendwise/internal/gateway"
	"spendwise/internal/importer"
	"spendwise/internal/ledger"

	_ "modernc.org/sqlite"
)

// Ensure interface conformance
var _ gateway.Gateway = (*Store)(nil)

const timeLayout = time.RFC3339Nano

type Store struct {
	db          *sql.DB
	categorizer *assistant.Categorizer
	now         func() time.Time
}

type Option func(*Store)

// WithClock overrides the clock used for timestamps and analytics windows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates the database directory if needed, opens the database and
// applies pending migrations.
func Open(dbPath string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{
		db:          db,
		categorizer: assistant.NewCategorizer(nil),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const selectTransactions = `SELECT t.id, t.date, t.description, t.amount, t.category_id, t.merchant,
	t.account_type, t.account_number, t.created_at, t.updated_at,
	c.id, c.name, c.description, c.color, c.parent_id, c.is_active, c.created_at, c.updated_at
FROM transactions t LEFT JOIN categories c ON c.id = t.category_id`

func (s *Store) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, selectTransactions+` ORDER BY t.seq`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (s *Store) getTransaction(ctx context.Context, q querier, id string) (core.Transaction, error) {
	t, err := scanTransaction(q.QueryRowContext(ctx, selectTransactions+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFound("sqlite.get", fmt.Errorf("transaction %q", id))
	}
	return t, err
}

func (s *Store) CreateTransaction(ctx context.Context, d core.Draft) (core.Transaction, error) {
	if err := d.Validate(); err != nil {
		return core.Transaction{}, core.Validation("sqlite.create", err)
	}
	t, err := s.insert(ctx, s.db, d)
	if err != nil {
		return core.Transaction{}, err
	}
	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"description", t.Description,
		"amount", t.Amount.String())
	return s.getTransaction(ctx, s.db, t.ID)
}

func (s *Store) insert(ctx context.Context, q querier, d core.Draft) (core.Transaction, error) {
	now := s.now()
	t := d.Transaction()
	t.ID = uuid.NewString()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err := q.ExecContext(ctx, `INSERT INTO transactions
		(id, date, description, amount, category_id, merchant, account_type, account_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Date.String(), t.Description, t.Amount.String(), t.CategoryID, t.Merchant,
		t.AccountType, t.AccountNumber, now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, id string, p core.Patch) (core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return core.Transaction{}, core.Validation("sqlite.update", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	current, err := s.getTransaction(ctx, tx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	t := p.Apply(current)
	t.UpdatedAt = s.now()
	_, err = tx.ExecContext(ctx, `UPDATE transactions SET date = ?, description = ?, amount = ?,
		category_id = ?, merchant = ?, account_type = ?, account_number = ?, updated_at = ?
		WHERE id = ?`,
		t.Date.String(), t.Description, t.Amount.String(), t.CategoryID, t.Merchant,
		t.AccountType, t.AccountNumber, t.UpdatedAt.Format(timeLayout), id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	updated, err := s.getTransaction(ctx, tx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

// DeleteTransaction is idempotent.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

// Upload stores every row of the CSV in one database transaction.
func (s *Store) Upload(ctx context.Context, filename string, r io.Reader) (core.UploadResult, error) {
	cats, err := s.ListCategories(ctx)
	if err != nil {
		return core.UploadResult{}, err
	}
	drafts, err := importer.Parse(r, cats)
	if err != nil {
		return core.UploadResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.UploadResult{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for _, d := range drafts {
		if d.CategoryID == "" {
			if id, ok := s.categorizer.Categorize(d.Transaction(), cats); ok {
				d.CategoryID = id
			}
		}
		if _, err := s.insert(ctx, tx, d); err != nil {
			return core.UploadResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return core.UploadResult{}, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "CSV imported into SQLite", "file", filename, "count", len(drafts))
	return core.UploadResult{
		Message: fmt.Sprintf("Imported %d transactions from %s", len(drafts), filename),
		Count:   len(drafts),
	}, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, color, parent_id, is_active, created_at, updated_at
		FROM categories ORDER BY position, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []core.Category{}
	for rows.Next() {
		var (
			c                    core.Category
			active               int
			createdAt, updatedAt string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Color, &c.ParentID, &active, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.IsActive = active != 0
		c.CreatedAt = parseTime(createdAt)
		c.UpdatedAt = parseTime(updatedAt)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// UpsertCategory inserts or replaces a category, keeping its position.
func (s *Store) UpsertCategory(ctx context.Context, c core.Category) error {
	if strings.TrimSpace(c.ID) == "" {
		return core.Validation("sqlite.category", core.ErrEmptyID)
	}
	now := s.now().Format(timeLayout)
	active := 0
	if c.IsActive {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO categories
		(id, name, description, color, parent_id, is_active, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM categories), ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description,
			color = excluded.color, parent_id = excluded.parent_id, is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.Description, c.Color, c.ParentID, active, now, now)
	if err != nil {
		return fmt.Errorf("upsert category: %w", err)
	}
	return nil
}

// Categorize applies the keyword rules to the transaction. A transaction no
// rule matches is returned unchanged.
func (s *Store) Categorize(ctx context.Context, id string) (core.Transaction, error) {
	t, err := s.getTransaction(ctx, s.db, id)
	if err != nil {
		return core.Transaction{}, err
	}
	cats, err := s.ListCategories(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	catID, ok := s.categorizer.Categorize(t, cats)
	if !ok || catID == t.CategoryID {
		return t, nil
	}
	return s.UpdateTransaction(ctx, id, core.Patch{CategoryID: &catID})
}

func (s *Store) Analytics(ctx context.Context, period string) (core.Snapshot, error) {
	l, err := s.ledger(ctx)
	if err != nil {
		return core.Snapshot{}, err
	}
	return l.Snapshot(period, s.now())
}

func (s *Store) SendMessage(ctx context.Context, text string) (core.ChatReply, error) {
	if strings.TrimSpace(text) == "" {
		return core.ChatReply{}, core.Validation("sqlite.chat", core.ErrEmptyMessage)
	}
	l, err := s.ledger(ctx)
	if err != nil {
		return core.ChatReply{}, err
	}
	return assistant.Answer(l, s.now(), text), nil
}

func (s *Store) ledger(ctx context.Context) (*ledger.Ledger, error) {
	txs, err := s.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	cats, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	l := ledger.New(ledger.WithClock(s.now))
	l.Load(txs, cats)
	return l, nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(sc scanner) (core.Transaction, error) {
	var (
		t                      core.Transaction
		date, amount           string
		createdAt, updatedAt   string
		cID, cName, cDesc      sql.NullString
		cColor, cParent        sql.NullString
		cActive                sql.NullInt64
		cCreatedAt, cUpdatedAt sql.NullString
	)
	err := sc.Scan(&t.ID, &date, &t.Description, &amount, &t.CategoryID, &t.Merchant,
		&t.AccountType, &t.AccountNumber, &createdAt, &updatedAt,
		&cID, &cName, &cDesc, &cColor, &cParent, &cActive, &cCreatedAt, &cUpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: date: %w", t.ID, err)
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: amount: %w", t.ID, err)
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	if cID.Valid {
		t.Category = &core.Category{
			ID:          cID.String,
			Name:        cName.String,
			Description: cDesc.String,
			Color:       cColor.String,
			ParentID:    cParent.String,
			IsActive:    cActive.Int64 != 0,
			CreatedAt:   parseTime(cCreatedAt.String),
			UpdatedAt:   parseTime(cUpdatedAt.String),
		}
	}
	return t, nil
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	return time.Time{}
}
