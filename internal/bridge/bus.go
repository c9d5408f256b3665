// Package bridge is the request/response channel between the application
// and its host shell: file dialogs, the theme preference and version
// information.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"spendwise/internal/core"
)

// Channels served by the host.
const (
	ChannelSelectCSVFile = "select-csv-file"
	ChannelSaveCSVFile   = "save-csv-file"
	ChannelGetTheme      = "get-theme"
	ChannelSetTheme      = "set-theme"
	ChannelGetAppVersion = "get-app-version"
)

var (
	ErrBusClosed      = errors.New("bridge closed")
	ErrUnknownChannel = errors.New("unknown channel")
)

// Request is one call travelling to the host.
type Request struct {
	ID      uint64
	Channel string
	Payload json.RawMessage

	reply chan<- Response
	once  *sync.Once
}

// Response carries either a JSON payload or an error message.
type Response struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	Kind    string          `json:"kind,omitempty"`
}

const kindValidation = "validation"

// Reply answers the request. Only the first call has an effect.
func (r Request) Reply(payload any, err error) {
	r.once.Do(func() {
		var resp Response
		if err != nil {
			resp.Error = err.Error()
			if errors.Is(err, core.ErrValidation) {
				resp.Kind = kindValidation
			}
		} else if payload != nil {
			b, merr := json.Marshal(payload)
			if merr != nil {
				resp.Error = fmt.Sprintf("encode reply: %v", merr)
			} else {
				resp.Payload = b
			}
		}
		r.reply <- resp
	})
}

// Bus is an asynchronous in-process message channel. Any number of
// goroutines may Invoke; one host drains Requests.
type Bus struct {
	requests chan Request
	closed   chan struct{}
	once     sync.Once
	nextID   atomic.Uint64
}

func NewBus(buffer int) *Bus {
	return &Bus{
		requests: make(chan Request, max(buffer, 0)),
		closed:   make(chan struct{}),
	}
}

// Requests is the host side of the bus.
func (b *Bus) Requests() <-chan Request {
	return b.requests
}

// Done is closed by Close.
func (b *Bus) Done() <-chan struct{} {
	return b.closed
}

// Close stops the bus. Pending and future invocations fail with
// ErrBusClosed.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.closed) })
}

// Invoke sends payload on channel and decodes the reply into out (when
// non-nil). It waits for the host, ctx or Close, whichever comes first.
func (b *Bus) Invoke(ctx context.Context, channel string, payload, out any) error {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", channel, err)
		}
		raw = data
	}

	reply := make(chan Response, 1)
	req := Request{ID: b.nextID.Add(1), Channel: channel, Payload: raw, reply: reply, once: &sync.Once{}}

	select {
	case b.requests <- req:
	case <-b.closed:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case resp := <-reply:
		return decodeResponse(channel, resp, out)
	case <-b.closed:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func decodeResponse(channel string, resp Response, out any) error {
	if resp.Error != "" {
		if resp.Kind == kindValidation {
			return core.Validation("bridge."+channel, errors.New(resp.Error))
		}
		return fmt.Errorf("%s: %s", channel, resp.Error)
	}
	if out == nil || len(resp.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Payload, out); err != nil {
		return fmt.Errorf("decode %s reply: %w", channel, err)
	}
	return nil
}
