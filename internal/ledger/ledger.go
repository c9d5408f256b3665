// Package ledger holds the in-memory set of transactions and categories for
// one session and derives every aggregate view from it.
//
// A Ledger performs no I/O and is not safe for concurrent use: it has exactly
// one owner, which serialises calls. Every accessor returns copies.
package ledger

import (
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"spendwise/internal/core"
)

type Ledger struct {
	transactions []core.Transaction
	categories   []core.Category
	now          func() time.Time
	newID        func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides the id source.
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces the whole cache, typically with a fresh gateway read.
func (l *Ledger) Load(transactions []core.Transaction, categories []core.Category) {
	l.transactions = cloneTransactions(transactions)
	l.categories = append([]core.Category(nil), categories...)
}

// SetCategories replaces the category set and keeps transactions.
func (l *Ledger) SetCategories(categories []core.Category) {
	l.categories = append([]core.Category(nil), categories...)
}

// Reset empties the ledger at the end of a session.
func (l *Ledger) Reset() {
	l.transactions = nil
	l.categories = nil
}

func (l *Ledger) Len() int {
	return len(l.transactions)
}

func (l *Ledger) Transactions() []core.Transaction {
	return cloneTransactions(l.transactions)
}

func (l *Ledger) Categories() []core.Category {
	return append([]core.Category(nil), l.categories...)
}

func (l *Ledger) Get(id string) (core.Transaction, bool) {
	i := l.IndexOf(id)
	if i < 0 {
		return core.Transaction{}, false
	}
	return l.transactions[i].Clone(), true
}

// IndexOf returns the position of id, or -1.
func (l *Ledger) IndexOf(id string) int {
	for i := range l.transactions {
		if l.transactions[i].ID == id {
			return i
		}
	}
	return -1
}

// Add assigns an id and timestamps to the draft and appends it.
// Duplicates of existing entries are allowed.
func (l *Ledger) Add(d core.Draft) (core.Transaction, error) {
	if err := d.Validate(); err != nil {
		return core.Transaction{}, core.Validation("ledger.add", err)
	}
	now := l.now()
	t := d.Transaction()
	t.ID = l.newID()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Category = l.snapshot(t.CategoryID)
	l.transactions = append(l.transactions, t)
	return t.Clone(), nil
}

// Update merges p onto the entry with the given id and refreshes UpdatedAt.
// When no entry matches, the cache is left untouched and a not-found error
// is returned rather than succeeding silently, so callers can tell a stale
// id from an applied edit.
func (l *Ledger) Update(id string, p core.Patch) (core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return core.Transaction{}, core.Validation("ledger.update", err)
	}
	i := l.IndexOf(id)
	if i < 0 {
		return core.Transaction{}, core.NotFound("ledger.update", fmt.Errorf("transaction %q", id))
	}
	t := p.Apply(l.transactions[i])
	if t.Category == nil {
		t.Category = l.snapshot(t.CategoryID)
	}
	t.UpdatedAt = l.now()
	l.transactions[i] = t
	return t.Clone(), nil
}

// Delete removes the entry with the given id. A missing id leaves the cache
// untouched and returns a not-found error.
func (l *Ledger) Delete(id string) error {
	i := l.IndexOf(id)
	if i < 0 {
		return core.NotFound("ledger.delete", fmt.Errorf("transaction %q", id))
	}
	l.transactions = append(l.transactions[:i:i], l.transactions[i+1:]...)
	return nil
}

// Replace swaps the entry with the given id for t, keeping its position.
func (l *Ledger) Replace(id string, t core.Transaction) error {
	i := l.IndexOf(id)
	if i < 0 {
		return core.NotFound("ledger.replace", fmt.Errorf("transaction %q", id))
	}
	l.transactions[i] = t.Clone()
	return nil
}

// Insert puts t at index, clamped to the ledger bounds.
func (l *Ledger) Insert(index int, t core.Transaction) {
	index = max(0, min(index, len(l.transactions)))
	l.transactions = append(l.transactions, core.Transaction{})
	copy(l.transactions[index+1:], l.transactions[index:])
	l.transactions[index] = t.Clone()
}

// Upsert replaces the entry with t's id, or appends t.
func (l *Ledger) Upsert(t core.Transaction) {
	if err := l.Replace(t.ID, t); err != nil {
		l.transactions = append(l.transactions, t.Clone())
	}
}

// ResolveCategory looks the transaction's category up in the ledger. A
// dangling id resolves to Unknown, exactly like an empty one.
func (l *Ledger) ResolveCategory(t core.Transaction) core.CategoryRef {
	if c, ok := l.category(t.CategoryID); ok {
		return core.Known(c)
	}
	return core.Unknown()
}

// Filter yields, in ledger order, the transactions whose description or
// merchant contains search (case-insensitive) and whose category id equals
// categoryID. Empty arguments match everything. The sequence reads the
// ledger each time it is ranged over.
func (l *Ledger) Filter(search, categoryID string) iter.Seq[core.Transaction] {
	term := strings.ToLower(search)
	return func(yield func(core.Transaction) bool) {
		for _, t := range l.transactions {
			if categoryID != "" && t.CategoryID != categoryID {
				continue
			}
			if term != "" &&
				!strings.Contains(strings.ToLower(t.Description), term) &&
				!strings.Contains(strings.ToLower(t.Merchant), term) {
				continue
			}
			if !yield(t.Clone()) {
				return
			}
		}
	}
}

// Recent returns the first n transactions in ledger order.
func (l *Ledger) Recent(n int) []core.Transaction {
	n = max(0, min(n, len(l.transactions)))
	return cloneTransactions(l.transactions[:n])
}

func (l *Ledger) category(id string) (core.Category, bool) {
	if id == "" {
		return core.Category{}, false
	}
	for _, c := range l.categories {
		if c.ID == id {
			return c, true
		}
	}
	return core.Category{}, false
}

func (l *Ledger) snapshot(id string) *core.Category {
	if c, ok := l.category(id); ok {
		return &c
	}
	return nil
}

func cloneTransactions(in []core.Transaction) []core.Transaction {
	if in == nil {
		return nil
	}
	out := make([]core.Transaction, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}
