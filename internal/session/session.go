// Package session owns the ledger of one running application and keeps it
// consistent with the data gateway.
//
// Mutations are optimistic: they are applied to the ledger first, sent to
// the gateway outside the lock, and rolled back when the gateway fails.
// Failed calls are not retried.
package session

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"spendwise/internal/amqp"
	"spendwise/internal/cache"
	"spendwise/internal/core"
	"spendwise/internal/gateway"
	"spendwise/internal/ledger"
	"spendwise/internal/log"
)

const (
	// RecentCount is the number of transactions shown on the dashboard.
	RecentCount = 5
	// AverageMonths is the divisor of the average monthly spend.
	AverageMonths = 6

	defaultCacheSize = 16
	defaultCacheTTL  = 5 * time.Minute
	analyticsTimeout = 30 * time.Second
)

// Publisher receives transaction events after successful mutations.
type Publisher interface {
	PublishTransactionEvent(ctx context.Context, ev amqp.TransactionEvent) error
}

type Session struct {
	gw        gateway.Gateway
	publisher Publisher
	logger    *log.Logger
	sl        *log.StructuredLogger
	now       func() time.Time

	mu      sync.Mutex
	ledger  *ledger.Ledger
	history []ChatMessage
	chatSeq int
	loaded  bool

	snapshots  *cache.LRUCache[core.Snapshot]
	flights    singleflight.Group
	generation atomic.Uint64
}

type Option func(*Session)

// WithPublisher enables transaction events.
func WithPublisher(p Publisher) Option {
	return func(s *Session) { s.publisher = p }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock overrides the clock used for timestamps and summaries.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithSnapshotCache replaces the analytics cache.
func WithSnapshotCache(c *cache.LRUCache[core.Snapshot]) Option {
	return func(s *Session) { s.snapshots = c }
}

func New(gw gateway.Gateway, opts ...Option) *Session {
	s := &Session{
		gw:  gw,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Wrap(slog.Default(), log.ComponentSession)
	}
	if s.snapshots == nil {
		s.snapshots = cache.NewLRUCache[core.Snapshot](defaultCacheSize, defaultCacheTTL)
	}
	s.sl = log.NewStructuredLogger(s.logger)
	s.ledger = ledger.New(ledger.WithClock(s.now))
	return s
}

// SnapshotCache exposes the analytics cache so it can be registered with a
// cache.Manager.
func (s *Session) SnapshotCache() *cache.LRUCache[core.Snapshot] {
	return s.snapshots
}

// Load replaces the ledger with the gateway's transactions and categories,
// fetched concurrently. On failure the ledger is left as it was.
func (s *Session) Load(ctx context.Context) error {
	var (
		txs  []core.Transaction
		cats []core.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.gw.ListTransactions(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		cats, err = s.gw.ListCategories(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.sl.LogError(ctx, "Failed to load ledger", err, log.OpLoad, nil)
		return fmt.Errorf("load session: %w", err)
	}

	s.mu.Lock()
	s.ledger.Load(txs, cats)
	s.loaded = true
	s.mu.Unlock()
	s.invalidate()

	s.logger.InfoContext(ctx, "Ledger loaded",
		log.FieldOperation, log.OpLoad,
		"transactions", len(txs),
		"categories", len(cats))
	return nil
}

// Refresh reloads the ledger from the gateway.
func (s *Session) Refresh(ctx context.Context) error {
	return s.Load(ctx)
}

// Loaded reports whether a Load has succeeded.
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Close empties the ledger, the history and the analytics cache.
func (s *Session) Close() {
	s.mu.Lock()
	s.ledger.Reset()
	s.history = nil
	s.loaded = false
	s.mu.Unlock()
	s.invalidate()
}

// Transactions returns the transactions matching search and categoryID, in
// ledger order. Empty arguments match everything.
func (s *Session) Transactions(search, categoryID string) []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return collect(s.ledger.Filter(search, categoryID))
}

func (s *Session) Categories() []core.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Categories()
}

func (s *Session) Get(id string) (core.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Get(id)
}

// CategoryOf resolves the transaction's category against the ledger.
func (s *Session) CategoryOf(t core.Transaction) core.CategoryRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.ResolveCategory(t)
}

// Add appends the draft locally and creates it through the gateway. The
// local entry is then replaced by the gateway's copy, or removed when the
// gateway fails.
func (s *Session) Add(ctx context.Context, d core.Draft) (core.Transaction, error) {
	s.mu.Lock()
	local, err := s.ledger.Add(d)
	s.mu.Unlock()
	if err != nil {
		return core.Transaction{}, err
	}
	s.invalidate()

	created, err := s.gw.CreateTransaction(ctx, d)
	if err != nil {
		s.mu.Lock()
		_ = s.ledger.Delete(local.ID)
		s.mu.Unlock()
		s.invalidate()
		s.sl.LogError(ctx, "Create failed, local entry rolled back", err, log.OpCreate,
			log.NewFields().WithTransaction(local))
		return core.Transaction{}, err
	}

	created = s.reconcile(local.ID, created)
	s.sl.LogTransaction(ctx, log.OpCreate, created)
	s.publish(ctx, amqp.EventCreated, created)
	return created, nil
}

// Update patches the entry locally, then through the gateway. A missing id
// leaves the ledger untouched and returns a not-found error. On gateway
// failure the previous value is restored.
func (s *Session) Update(ctx context.Context, id string, p core.Patch) (core.Transaction, error) {
	s.mu.Lock()
	prev, ok := s.ledger.Get(id)
	updated, err := s.ledger.Update(id, p)
	s.mu.Unlock()
	if err != nil {
		return core.Transaction{}, err
	}
	s.invalidate()

	server, err := s.gw.UpdateTransaction(ctx, id, p)
	if err != nil {
		if ok {
			s.mu.Lock()
			_ = s.ledger.Replace(id, prev)
			s.mu.Unlock()
			s.invalidate()
		}
		s.sl.LogError(ctx, "Update failed, local change rolled back", err, log.OpUpdate,
			log.NewFields().WithTransaction(updated))
		return core.Transaction{}, err
	}

	server = s.reconcile(id, server)
	s.sl.LogTransaction(ctx, log.OpUpdate, server)
	s.publish(ctx, amqp.EventUpdated, server)
	return server, nil
}

// Delete removes the entry locally, then through the gateway. Deleting an
// unknown id is not an error. On gateway failure the entry is put back at
// its old position.
func (s *Session) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	index := s.ledger.IndexOf(id)
	prev, ok := s.ledger.Get(id)
	if ok {
		_ = s.ledger.Delete(id)
	}
	s.mu.Unlock()
	s.invalidate()

	if err := s.gw.DeleteTransaction(ctx, id); err != nil {
		if ok {
			s.mu.Lock()
			s.ledger.Insert(index, prev)
			s.mu.Unlock()
			s.invalidate()
		}
		s.sl.LogError(ctx, "Delete failed, entry restored", err, log.OpDelete,
			log.NewFields().WithTransaction(prev))
		return err
	}
	if ok {
		s.sl.LogTransaction(ctx, log.OpDelete, prev)
	}
	return nil
}

// Categorize asks the gateway to categorize the transaction and stores the
// result.
func (s *Session) Categorize(ctx context.Context, id string) (core.Transaction, error) {
	t, err := s.gw.Categorize(ctx, id)
	if err != nil {
		s.sl.LogError(ctx, "Categorize failed", err, log.OpCategorize,
			log.NewFields().WithOperation(log.OpCategorize))
		return core.Transaction{}, err
	}
	t = s.reconcile(id, t)
	s.logger.InfoContext(ctx, "Transaction categorized",
		log.FieldTransactionID, t.ID,
		log.FieldCategoryID, t.CategoryID)
	return t, nil
}

// UploadCSV ingests a file through the gateway and reloads the ledger.
func (s *Session) UploadCSV(ctx context.Context, filename string, r io.Reader) (core.UploadResult, error) {
	res, err := s.gw.Upload(ctx, filename, r)
	if err != nil {
		s.sl.LogError(ctx, "Upload failed", err, log.OpUpload, nil)
		return core.UploadResult{}, err
	}
	s.logger.InfoContext(ctx, "File uploaded",
		log.FieldOperation, log.OpUpload,
		"filename", filename,
		log.FieldCount, res.Count)
	if err := s.Load(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// Summary is the dashboard view of the ledger.
type Summary struct {
	core.Totals
	TransactionCount    int                 `json:"transactionCount"`
	Recent              []core.Transaction  `json:"recentTransactions"`
	CategoryCounts      map[string]int      `json:"categoryCounts"`
	AverageMonthlySpend decimal.Decimal     `json:"averageMonthlySpend"`
	TopCategory         *core.CategoryShare `json:"topCategory,omitempty"`
}

func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := Summary{
		Totals:              s.ledger.Totals(),
		TransactionCount:    s.ledger.Len(),
		Recent:              s.ledger.Recent(RecentCount),
		CategoryCounts:      s.ledger.CategoryCounts(),
		AverageMonthlySpend: s.ledger.AverageMonthlySpend(AverageMonths),
	}
	if sum.Recent == nil {
		sum.Recent = []core.Transaction{}
	}
	if top, ok := s.ledger.TopCategory(); ok {
		sum.TopCategory = &top
	}
	return sum
}

// Analytics returns the gateway's snapshot for period. Snapshots are cached
// per period until the next mutation, and concurrent requests for the same
// period share one gateway call.
func (s *Session) Analytics(ctx context.Context, period string) (core.Snapshot, error) {
	period = normalizePeriod(period)
	if snap, ok := s.snapshots.Get(period); ok {
		return snap, nil
	}

	gen := s.generation.Load()
	key := fmt.Sprintf("%s#%d", period, gen)
	// The shared call outlives any single caller, so it runs detached and
	// bounded by analyticsTimeout. Each caller waits on its own ctx.
	ch := s.flights.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), analyticsTimeout)
		defer cancel()
		snap, err := s.gw.Analytics(fetchCtx, period)
		if err != nil {
			return core.Snapshot{}, err
		}
		if s.generation.Load() == gen {
			s.snapshots.Set(period, snap)
		}
		return snap, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return core.Snapshot{}, core.Network("session.analytics", ctx.Err())
	}
	if res.Err != nil {
		s.sl.LogError(ctx, "Analytics fetch failed", res.Err, log.OpAnalytics,
			log.NewFields().WithOperation(log.OpAnalytics))
		return core.Snapshot{}, res.Err
	}
	s.logger.DebugContext(ctx, "Analytics fetched", log.FieldPeriod, period, "shared", res.Shared)
	return res.Val.(core.Snapshot), nil
}

// LocalSnapshot derives the snapshot from the ledger without the gateway.
func (s *Session) LocalSnapshot(period string) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Snapshot(normalizePeriod(period), s.now())
}

// MonthlySpending returns the expense series of the last months months,
// ending with the current month.
func (s *Session) MonthlySpending(months int) []core.MonthlySpending {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.MonthlySpending(s.now(), months)
}

// CategoryBreakdown covers the whole ledger, or one YYYY-MM month when
// month is set.
func (s *Session) CategoryBreakdown(month string) ([]core.CategoryShare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if month == "" {
		return s.ledger.CategoryBreakdown(), nil
	}
	return s.ledger.MonthBreakdown(month)
}

func (s *Session) TopMerchants(limit int) []core.MerchantTotal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.TopMerchants(limit)
}

func (s *Session) CategoryTrends(months int) []core.CategoryTrend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.CategoryTrends(s.now(), months)
}

// reconcile swaps the local entry id for the gateway's copy, filling in the
// category snapshot when the gateway left it out.
func (s *Session) reconcile(id string, t core.Transaction) core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Category == nil {
		if c, ok := s.ledger.ResolveCategory(t).Get(); ok {
			t.Category = &c
		}
	}
	if err := s.ledger.Replace(id, t); err != nil {
		s.ledger.Upsert(t)
	}
	s.invalidate()
	return t.Clone()
}

func (s *Session) invalidate() {
	s.generation.Add(1)
	s.snapshots.Clear()
}

func (s *Session) publish(ctx context.Context, typ amqp.EventType, t core.Transaction) {
	if s.publisher == nil {
		return
	}
	ev := amqp.NewTransactionEvent(typ, t.ID, t.CategoryID)
	if err := s.publisher.PublishTransactionEvent(ctx, *ev); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish transaction event",
			log.FieldOperation, log.OpPublish,
			log.FieldTransactionID, t.ID,
			log.FieldError, err)
	}
}

func normalizePeriod(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return ledger.Period6Months
	}
	return p
}

func collect(seq iter.Seq[core.Transaction]) []core.Transaction {
	out := slices.Collect(seq)
	if out == nil {
		out = []core.Transaction{}
	}
	return out
}
