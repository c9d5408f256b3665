package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// EventType names what happened to a transaction.
type EventType string

const (
	EventCreated EventType = "transaction.created"
	EventUpdated EventType = "transaction.updated"
)

var ErrInvalidEvent = errors.New("invalid transaction event")

// TransactionEvent is a lightweight notification about a stored transaction.
// The worker fetches whatever else it needs through the gateway.
type TransactionEvent struct {
	Type          EventType `json:"type"`
	TransactionID string    `json:"transactionId"`
	CategoryID    string    `json:"categoryId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionEvent creates an event stamped with the current time
func NewTransactionEvent(typ EventType, transactionID, categoryID string) *TransactionEvent {
	return &TransactionEvent{
		Type:          typ,
		TransactionID: transactionID,
		CategoryID:    categoryID,
		Timestamp:     time.Now().UTC(),
	}
}

// NeedsCategorization reports whether the transaction was stored without a
// category.
func (m *TransactionEvent) NeedsCategorization() bool {
	return m.CategoryID == ""
}

func (m *TransactionEvent) Validate() error {
	if m.TransactionID == "" {
		return ErrInvalidEvent
	}
	switch m.Type {
	case EventCreated, EventUpdated:
		return nil
	default:
		return ErrInvalidEvent
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventFromJSON decodes and validates an event
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
