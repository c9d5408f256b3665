package session

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spendwise/internal/amqp"
	"spendwise/internal/core"
	"spendwise/internal/gateway/memory"
)

var fixedNow = time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)

// fakeGateway wraps the memory store and fails selected calls.
type fakeGateway struct {
	*memory.Store

	failList   error
	failCreate error
	failUpdate error
	failDelete error
	failChat   error
	chatMillis int64

	analyticsCalls atomic.Int32
	analyticsGate  chan struct{}
}

func newFakeGateway() *fakeGateway {
	clock := func() time.Time { return fixedNow }
	return &fakeGateway{Store: memory.New(memory.MockCategories(fixedNow), memory.MockTransactions(fixedNow), memory.WithClock(clock))}
}

func (f *fakeGateway) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	if f.failList != nil {
		return nil, f.failList
	}
	return f.Store.ListTransactions(ctx)
}

func (f *fakeGateway) CreateTransaction(ctx context.Context, d core.Draft) (core.Transaction, error) {
	if f.failCreate != nil {
		return core.Transaction{}, f.failCreate
	}
	return f.Store.CreateTransaction(ctx, d)
}

func (f *fakeGateway) UpdateTransaction(ctx context.Context, id string, p core.Patch) (core.Transaction, error) {
	if f.failUpdate != nil {
		return core.Transaction{}, f.failUpdate
	}
	return f.Store.UpdateTransaction(ctx, id, p)
}

func (f *fakeGateway) DeleteTransaction(ctx context.Context, id string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.Store.DeleteTransaction(ctx, id)
}

func (f *fakeGateway) Analytics(ctx context.Context, period string) (core.Snapshot, error) {
	f.analyticsCalls.Add(1)
	if f.analyticsGate != nil {
		select {
		case <-f.analyticsGate:
		case <-ctx.Done():
			return core.Snapshot{}, ctx.Err()
		}
	}
	return f.Store.Analytics(ctx, period)
}

func (f *fakeGateway) SendMessage(ctx context.Context, text string) (core.ChatReply, error) {
	if f.failChat != nil {
		return core.ChatReply{}, f.failChat
	}
	reply, err := f.Store.SendMessage(ctx, text)
	if f.chatMillis > 0 {
		reply.ExecutionTimeMs = f.chatMillis
	}
	return reply, err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.TransactionEvent
	err    error
}

func (p *recordingPublisher) PublishTransactionEvent(_ context.Context, ev amqp.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func newLoadedSession(t *testing.T, gw *fakeGateway, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	s := New(gw, opts...)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

var errDown = core.Network("fake", errors.New("connection refused"))

func TestLoad(t *testing.T) {
	s := newLoadedSession(t, newFakeGateway())
	if !s.Loaded() || len(s.Transactions("", "")) != 2 || len(s.Categories()) != 3 {
		t.Fatalf("loaded %d transactions, %d categories", len(s.Transactions("", "")), len(s.Categories()))
	}

	gw := newFakeGateway()
	gw.failList = errDown
	failed := New(gw)
	if err := failed.Load(context.Background()); !errors.Is(err, core.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if failed.Loaded() || len(failed.Transactions("", "")) != 0 {
		t.Fatal("failed load must leave the session empty")
	}
}

func TestAddReconcilesWithGateway(t *testing.T) {
	pub := &recordingPublisher{}
	s := newLoadedSession(t, newFakeGateway(), WithPublisher(pub))

	created, err := s.Add(context.Background(), core.Draft{Date: core.NewDate(2024, 1, 18), Description: "Lunch", Amount: -12, CategoryID: "1"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	txs := s.Transactions("", "")
	if len(txs) != 3 || txs[2].ID != created.ID {
		t.Fatalf("ledger = %+v", txs)
	}
	if created.Category == nil || created.Category.Name != "Food & Dining" {
		t.Fatalf("category snapshot = %+v", created.Category)
	}
	if len(pub.events) != 1 || pub.events[0].Type != amqp.EventCreated || pub.events[0].TransactionID != created.ID {
		t.Fatalf("events = %+v", pub.events)
	}
}

func TestAddRollsBackOnGatewayFailure(t *testing.T) {
	gw := newFakeGateway()
	pub := &recordingPublisher{}
	s := newLoadedSession(t, gw, WithPublisher(pub))
	before := s.Transactions("", "")

	gw.failCreate = errDown
	if _, err := s.Add(context.Background(), core.Draft{Date: core.NewDate(2024, 1, 18), Description: "Lunch", Amount: -12}); !errors.Is(err, core.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	assertSameTransactions(t, before, s.Transactions("", ""))
	if len(pub.events) != 0 {
		t.Fatalf("no event expected, got %+v", pub.events)
	}
}

func TestAddRejectsNonFiniteAmount(t *testing.T) {
	s := newLoadedSession(t, newFakeGateway())
	_, err := s.Add(context.Background(), core.Draft{Date: core.NewDate(2024, 1, 18), Description: "x", Amount: inf()})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(s.Transactions("", "")) != 2 {
		t.Fatal("invalid draft must not be stored")
	}
}

func TestUpdate(t *testing.T) {
	gw := newFakeGateway()
	s := newLoadedSession(t, gw)
	ctx := context.Background()
	id := s.Transactions("", "")[0].ID

	amount := -7.25
	got, err := s.Update(ctx, id, core.Patch{Amount: &amount})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Amount.String() != "-7.25" {
		t.Fatalf("updated = %+v", got)
	}
	if local, _ := s.Get(id); local.Amount.String() != "-7.25" {
		t.Fatalf("ledger not updated: %+v", local)
	}

	before := s.Transactions("", "")
	if _, err := s.Update(ctx, "missing", core.Patch{Amount: &amount}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	assertSameTransactions(t, before, s.Transactions("", ""))

	gw.failUpdate = errDown
	other := -100.0
	if _, err := s.Update(ctx, id, core.Patch{Amount: &other}); !errors.Is(err, core.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	assertSameTransactions(t, before, s.Transactions("", ""))
}

func TestDelete(t *testing.T) {
	gw := newFakeGateway()
	s := newLoadedSession(t, gw)
	ctx := context.Background()
	txs := s.Transactions("", "")

	gw.failDelete = errDown
	if err := s.Delete(ctx, txs[0].ID); !errors.Is(err, core.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	assertSameTransactions(t, txs, s.Transactions("", ""))

	gw.failDelete = nil
	if err := s.Delete(ctx, txs[0].ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, txs[0].ID); err != nil {
		t.Fatalf("repeated Delete should succeed: %v", err)
	}
	if got := s.Transactions("", ""); len(got) != 1 || got[0].ID != txs[1].ID {
		t.Fatalf("remaining = %+v", got)
	}
}

func TestTransactionsFilter(t *testing.T) {
	s := newLoadedSession(t, newFakeGateway())
	if got := s.Transactions("STARBUCKS", ""); len(got) != 1 {
		t.Fatalf("search matched %d", len(got))
	}
	if got := s.Transactions("", "2"); len(got) != 1 || got[0].Merchant != "Shell" {
		t.Fatalf("category filter = %+v", got)
	}
	if got := s.Transactions("nothing", ""); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestCategorizeAndUpload(t *testing.T) {
	s := newLoadedSession(t, newFakeGateway())
	ctx := context.Background()

	res, err := s.UploadCSV(ctx, "jan.csv", strings.NewReader("date,description,amount,merchant\n2024-01-19,Amazon order,-30,Amazon\n"))
	if err != nil {
		t.Fatalf("UploadCSV: %v", err)
	}
	if res.Count != 1 || len(s.Transactions("", "")) != 3 {
		t.Fatalf("upload result %+v, ledger %d", res, len(s.Transactions("", "")))
	}

	created, err := s.Add(ctx, core.Draft{Date: core.NewDate(2024, 1, 19), Description: "Uber to airport", Amount: -25})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, err := s.Categorize(ctx, created.ID)
	if err != nil {
		t.Fatalf("Categorize: %v", err)
	}
	if local, _ := s.Get(created.ID); local.CategoryID != "2" || got.CategoryID != "2" {
		t.Fatalf("categorized = %+v, local = %+v", got, local)
	}

	if _, err := s.UploadCSV(ctx, "bad.csv", strings.NewReader("nope")); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	s := newLoadedSession(t, newFakeGateway())
	sum := s.Summary()
	if sum.TotalSpent.String() != "50.5" || sum.TransactionCount != 2 || len(sum.Recent) != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.CategoryCounts["1"] != 1 || sum.CategoryCounts["2"] != 1 {
		t.Fatalf("counts = %v", sum.CategoryCounts)
	}
	if sum.TopCategory == nil || sum.TopCategory.CategoryID != "2" {
		t.Fatalf("top category = %+v", sum.TopCategory)
	}
	if sum.AverageMonthlySpend.String() != "8.42" {
		t.Fatalf("average = %s", sum.AverageMonthlySpend)
	}

	empty := New(newFakeGateway()).Summary()
	if empty.TransactionCount != 0 || empty.Recent == nil || empty.TopCategory != nil {
		t.Fatalf("empty summary = %+v", empty)
	}
}

func TestAnalyticsCacheAndInvalidation(t *testing.T) {
	gw := newFakeGateway()
	s := newLoadedSession(t, gw)
	ctx := context.Background()

	for range 3 {
		if _, err := s.Analytics(ctx, "6months"); err != nil {
			t.Fatalf("Analytics: %v", err)
		}
	}
	if _, err := s.Analytics(ctx, ""); err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if n := gw.analyticsCalls.Load(); n != 1 {
		t.Fatalf("expected 1 gateway call, got %d", n)
	}

	if _, err := s.Add(ctx, core.Draft{Date: core.NewDate(2024, 1, 18), Description: "Lunch", Amount: -12}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Analytics(ctx, "6months"); err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if n := gw.analyticsCalls.Load(); n != 2 {
		t.Fatalf("mutation should invalidate the cache, got %d calls", n)
	}

	if _, err := s.Analytics(ctx, "decade"); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAnalyticsDeduplicatesConcurrentFetches(t *testing.T) {
	gw := newFakeGateway()
	gw.analyticsGate = make(chan struct{})
	s := newLoadedSession(t, gw)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Analytics(context.Background(), "1year"); err != nil {
				t.Errorf("Analytics: %v", err)
			}
		}()
	}
	// Let the goroutines pile up on the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(gw.analyticsGate)
	wg.Wait()

	if n := gw.analyticsCalls.Load(); n != 1 {
		t.Fatalf("expected one shared gateway call, got %d", n)
	}
}

func TestAnalyticsCallerCancelDoesNotFailSharedFetch(t *testing.T) {
	gw := newFakeGateway()
	gw.analyticsGate = make(chan struct{})
	s := newLoadedSession(t, gw)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Analytics(firstCtx, "1year")
		firstErr <- err
	}()
	for gw.analyticsCalls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	secondErr := make(chan error, 1)
	go func() {
		_, err := s.Analytics(context.Background(), "1year")
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) || !errors.Is(err, core.ErrNetwork) {
		t.Fatalf("canceled caller error = %v", err)
	}

	close(gw.analyticsGate)
	if err := <-secondErr; err != nil {
		t.Fatalf("waiting caller failed: %v", err)
	}
	if n := gw.analyticsCalls.Load(); n != 1 {
		t.Fatalf("expected one shared gateway call, got %d", n)
	}
	if _, ok := s.snapshots.Get("1year"); !ok {
		t.Error("shared result not cached")
	}
}

func TestLocalSnapshot(t *testing.T) {
	s := newLoadedSession(t, newFakeGateway())
	snap, err := s.LocalSnapshot("")
	if err != nil {
		t.Fatalf("LocalSnapshot: %v", err)
	}
	if len(snap.MonthlySpending) != 6 || snap.MonthlySpending[5].Amount.String() != "50.5" {
		t.Fatalf("snapshot = %+v", snap.MonthlySpending)
	}
}

func TestChat(t *testing.T) {
	gw := newFakeGateway()
	s := newLoadedSession(t, gw)
	ctx := context.Background()

	reply, err := s.Chat(ctx, "  how much did I spend?  ")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.QueryType != core.QueryAnalytics {
		t.Fatalf("reply = %+v", reply)
	}
	h := s.History()
	if len(h) != 2 || h[0].Type != RoleUser || h[0].Content != "how much did I spend?" || h[1].Type != RoleAssistant {
		t.Fatalf("history = %+v", h)
	}
	if h[0].ID == h[1].ID {
		t.Fatal("history ids must be unique")
	}

	if _, err := s.Chat(ctx, " "); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	gw.failChat = errDown
	if _, err := s.Chat(ctx, "hello"); !errors.Is(err, core.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if len(s.History()) != 2 {
		t.Fatal("failed exchange must not be recorded")
	}

	if len(s.Suggestions()) == 0 {
		t.Fatal("expected suggestions")
	}
	s.ClearHistory()
	if len(s.History()) != 0 {
		t.Fatal("history not cleared")
	}
}

func TestRecentHistory(t *testing.T) {
	gw := newFakeGateway()
	gw.chatMillis = 42
	s := newLoadedSession(t, gw)
	for _, q := range []string{"total spending", "top merchants", "categories"} {
		if _, err := s.Chat(context.Background(), q); err != nil {
			t.Fatalf("Chat(%q): %v", q, err)
		}
	}

	tests := []struct {
		n         int
		wantLen   int
		wantFirst string
	}{
		{n: 0, wantLen: 6, wantFirst: "total spending"},
		{n: 2, wantLen: 2, wantFirst: "categories"},
		{n: 100, wantLen: 6, wantFirst: "total spending"},
	}
	for _, tt := range tests {
		h := s.RecentHistory(tt.n)
		if len(h) != tt.wantLen || h[0].Content != tt.wantFirst {
			t.Errorf("RecentHistory(%d) = %d messages starting %q", tt.n, len(h), h[0].Content)
		}
	}

	last := s.RecentHistory(1)[0]
	if last.Type != RoleAssistant || last.ExecutionTimeMs != 42 || last.QueryType == "" {
		t.Errorf("assistant message = %+v", last)
	}
	if first := s.RecentHistory(0)[0]; first.ExecutionTimeMs != 0 {
		t.Errorf("user message carries timing: %+v", first)
	}
}

func TestClose(t *testing.T) {
	s := newLoadedSession(t, newFakeGateway())
	s.Close()
	if s.Loaded() || len(s.Transactions("", "")) != 0 || len(s.Categories()) != 0 {
		t.Fatal("Close must empty the session")
	}
}

func assertSameTransactions(t *testing.T, want, got []core.Transaction) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("got %d transactions, want %d", len(got), len(want))
	}
	for i := range want {
		if !want[i].Equal(got[i]) {
			t.Fatalf("transaction %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func inf() float64 {
	return math.Inf(-1)
}

func TestLedgerViews(t *testing.T) {
	s := newLoadedSession(t, newFakeGateway())

	monthly := s.MonthlySpending(3)
	if len(monthly) != 3 || monthly[2].Month != "2024-01" || monthly[2].Amount.String() != "50.5" {
		t.Fatalf("monthly = %+v", monthly)
	}
	if all, err := s.CategoryBreakdown(""); err != nil || len(all) != 2 {
		t.Fatalf("breakdown = %+v, %v", all, err)
	}
	if dec, err := s.CategoryBreakdown("2023-12"); err != nil || len(dec) != 0 {
		t.Fatalf("december breakdown = %+v, %v", dec, err)
	}
	if top := s.TopMerchants(1); len(top) != 1 || top[0].Merchant != "Shell" {
		t.Fatalf("top merchants = %+v", top)
	}
	trends := s.CategoryTrends(2)
	if len(trends) != 2 || trends[1].Categories["Transportation"].String() != "45" {
		t.Fatalf("trends = %+v", trends)
	}
}
