// Package gateway defines the data gateway the application talks to:
// transaction storage, CSV ingestion, categorization, analytics and chat.
// Implementations live in the subpackages.
package gateway

import (
	"context"
	"io"

	"spendwise/internal/core"
)

// Ports for outbound adapters. Errors are tagged with the core error kinds.
type (
	TransactionStore interface {
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
		CreateTransaction(ctx context.Context, d core.Draft) (core.Transaction, error)
		// UpdateTransaction returns a not-found error for an unknown id.
		UpdateTransaction(ctx context.Context, id string, p core.Patch) (core.Transaction, error)
		// DeleteTransaction succeeds for an unknown id.
		DeleteTransaction(ctx context.Context, id string) error
	}

	Uploader interface {
		// Upload ingests a CSV file. Malformed content is a validation error.
		Upload(ctx context.Context, filename string, r io.Reader) (core.UploadResult, error)
	}

	Categorizer interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
		Categorize(ctx context.Context, id string) (core.Transaction, error)
	}

	AnalyticsReader interface {
		Analytics(ctx context.Context, period string) (core.Snapshot, error)
	}

	Chatter interface {
		SendMessage(ctx context.Context, text string) (core.ChatReply, error)
	}

	Gateway interface {
		TransactionStore
		Uploader
		Categorizer
		AnalyticsReader
		Chatter
	}
)
