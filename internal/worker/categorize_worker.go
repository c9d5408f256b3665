// Package worker processes transaction events: it categorizes entries that
// arrive without a category and mirrors them to a spreadsheet when one is
// configured.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"spendwise/internal/amqp"
	"spendwise/internal/core"
	"spendwise/internal/gateway"
)

// Store is the part of the gateway the worker needs.
type Store interface {
	gateway.TransactionStore
	gateway.Categorizer
}

// Mirror receives processed transactions, e.g. a spreadsheet export.
type Mirror interface {
	Export(ctx context.Context, txs []core.Transaction, withHeader bool) (int, error)
}

// CategorizeWorker handles transaction events from AMQP.
type CategorizeWorker struct {
	store     Store
	mirror    Mirror
	batchSize int
	logger    *slog.Logger
}

type Option func(*CategorizeWorker)

// WithMirror copies every processed transaction to m.
func WithMirror(m Mirror) Option {
	return func(w *CategorizeWorker) { w.mirror = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *CategorizeWorker) { w.logger = l }
}

func NewCategorizeWorker(store Store, batchSize int, opts ...Option) *CategorizeWorker {
	w := &CategorizeWorker{
		store:     store,
		batchSize: max(batchSize, 1),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleTransactionEvent processes a single event. An event for a
// transaction that no longer exists is acknowledged without work.
func (w *CategorizeWorker) HandleTransactionEvent(ctx context.Context, ev *amqp.TransactionEvent) error {
	w.logger.InfoContext(ctx, "Processing transaction event",
		"type", ev.Type,
		"transaction_id", ev.TransactionID,
		"category_id", ev.CategoryID)

	var (
		tx  core.Transaction
		err error
	)
	if ev.NeedsCategorization() {
		tx, err = w.store.Categorize(ctx, ev.TransactionID)
	} else {
		tx, err = w.find(ctx, ev.TransactionID)
	}
	if errors.Is(err, core.ErrNotFound) {
		w.logger.WarnContext(ctx, "Transaction no longer exists, skipping",
			"transaction_id", ev.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("process transaction %s: %w", ev.TransactionID, err)
	}

	if ev.NeedsCategorization() {
		w.logger.InfoContext(ctx, "Transaction categorized",
			"transaction_id", tx.ID,
			"category_id", tx.CategoryID)
	}
	return w.mirrorOne(ctx, tx)
}

func (w *CategorizeWorker) find(ctx context.Context, id string) (core.Transaction, error) {
	txs, err := w.store.ListTransactions(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	for _, t := range txs {
		if t.ID == id {
			return t, nil
		}
	}
	return core.Transaction{}, core.NotFound("worker.find", fmt.Errorf("transaction %s", id))
}

func (w *CategorizeWorker) mirrorOne(ctx context.Context, tx core.Transaction) error {
	if w.mirror == nil {
		return nil
	}
	if _, err := w.mirror.Export(ctx, []core.Transaction{tx}, false); err != nil {
		return fmt.Errorf("mirror transaction %s: %w", tx.ID, err)
	}
	return nil
}

// ProcessPending categorizes up to batchSize uncategorized transactions.
// It is the backup path for events lost while the worker was down.
func (w *CategorizeWorker) ProcessPending(ctx context.Context) (processed, failed int, err error) {
	txs, err := w.store.ListTransactions(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list transactions: %w", err)
	}

	for _, t := range txs {
		if processed+failed == w.batchSize {
			break
		}
		if t.CategoryID != "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return processed, failed, err
		}
		if _, err := w.store.Categorize(ctx, t.ID); err != nil {
			w.logger.ErrorContext(ctx, "Failed to categorize pending transaction",
				"transaction_id", t.ID, "error", err)
			failed++
			continue
		}
		processed++
	}

	if processed+failed > 0 {
		w.logger.InfoContext(ctx, "Pending transactions processed",
			"categorized", processed,
			"errors", failed)
	} else {
		w.logger.InfoContext(ctx, "No pending transactions found")
	}
	return processed, failed, nil
}
