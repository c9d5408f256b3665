// Package memory is an in-process gateway backed by a ledger. It stands in
// for the remote backend during development and in tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"spendwise/internal/assistant"
	"spendwise/internal/core"
	"spendwise/internal/gateway"
	"spendwise/internal/importer"
	"spendwise/internal/ledger"
)

// Ensure interface conformance
var _ gateway.Gateway = (*Store)(nil)

type Store struct {
	mu          sync.Mutex
	ledger      *ledger.Ledger
	categorizer *assistant.Categorizer
	now         func() time.Time
}

type Option func(*Store)

// WithClock overrides the clock used for timestamps and analytics windows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRules replaces the categorization rules.
func WithRules(rules []assistant.Rule) Option {
	return func(s *Store) { s.categorizer = assistant.NewCategorizer(rules) }
}

func New(categories []core.Category, transactions []core.Transaction, opts ...Option) *Store {
	s := &Store{
		categorizer: assistant.NewCategorizer(nil),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ledger = ledger.New(ledger.WithClock(s.now))
	s.ledger.Load(transactions, categories)
	return s
}

func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Transactions(), nil
}

func (s *Store) CreateTransaction(_ context.Context, d core.Draft) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Add(d)
}

func (s *Store) UpdateTransaction(_ context.Context, id string, p core.Patch) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Update(id, p)
}

// DeleteTransaction is idempotent.
func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.ledger.Delete(id)
	return nil
}

// Upload parses the CSV and stores every row, categorizing rows that carry
// no category. Nothing is stored when any row is malformed.
func (s *Store) Upload(_ context.Context, filename string, r io.Reader) (core.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drafts, err := importer.Parse(r, s.ledger.Categories())
	if err != nil {
		return core.UploadResult{}, err
	}
	for _, d := range drafts {
		if d.CategoryID == "" {
			if id, ok := s.categorizer.Categorize(d.Transaction(), s.ledger.Categories()); ok {
				d.CategoryID = id
			}
		}
		if _, err := s.ledger.Add(d); err != nil {
			return core.UploadResult{}, err
		}
	}
	return core.UploadResult{
		Message: fmt.Sprintf("Imported %d transactions from %s", len(drafts), filename),
		Count:   len(drafts),
	}, nil
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Categories(), nil
}

// Categorize applies the keyword rules to the transaction. A transaction no
// rule matches is returned unchanged.
func (s *Store) Categorize(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ledger.Get(id)
	if !ok {
		return core.Transaction{}, core.NotFound("memory.categorize", fmt.Errorf("transaction %q", id))
	}
	catID, matched := s.categorizer.Categorize(t, s.ledger.Categories())
	if !matched || catID == t.CategoryID {
		return t, nil
	}
	return s.ledger.Update(id, core.Patch{CategoryID: &catID})
}

func (s *Store) Analytics(_ context.Context, period string) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Snapshot(period, s.now())
}

func (s *Store) SendMessage(_ context.Context, text string) (core.ChatReply, error) {
	if strings.TrimSpace(text) == "" {
		return core.ChatReply{}, core.Validation("memory.chat", core.ErrEmptyMessage)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return assistant.Answer(s.ledger, s.now(), text), nil
}
