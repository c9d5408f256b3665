// Package backend builds the data gateway selected by configuration.
package backend

import (
	"context"
	"slices"
	"time"

	"spendwise/internal/amqp"
	"spendwise/internal/gateway"
)

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// BackendResult contains the gateway and an optional cleanup function.
type BackendResult struct {
	Backend gateway.Gateway
	// Events is set when AMQP is configured and reachable.
	Events  *amqp.Client
	Cleanup CleanupFunc
}

// Close runs Cleanup when present.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation.
type Config struct {
	Type BackendType

	// Memory backend
	DataDirectory string

	// SQLite backend
	SQLiteDBPath string

	// Remote backend
	APIBaseURL string
	APITimeout time.Duration

	// Transaction events, optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType names a gateway implementation.
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	RemoteBackend BackendType = "remote"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	return slices.Contains(GetBackendTypes(), bt)
}

// Local reports whether the gateway runs in this process.
func (bt BackendType) Local() bool {
	return bt == MemoryBackend || bt == SQLiteBackend
}
