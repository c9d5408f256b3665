// Package httpapi is the gateway to the remote SpendWise backend over its
// JSON REST API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"spendwise/internal/core"
	"spendwise/internal/gateway"
)

// Ensure interface conformance
var _ gateway.Gateway = (*Client)(nil)

// API paths.
const (
	PathTransactions = "/api/ingest/transactions"
	PathUpload       = "/api/ingest/upload"
	PathCategories   = "/api/categorizer/categories"
	PathCategorize   = "/api/categorizer/categorize"
	PathAnalytics    = "/api/analytics"
	PathChatMessage  = "/api/chat/message"
)

// maxErrorBody bounds how much of an error response is quoted in errors.
const maxErrorBody = 512

type Client struct {
	baseURL *url.URL
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the backend at baseURL. timeout bounds each
// request; zero keeps the default of 30 seconds.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{baseURL: u, http: newHTTPClientWithPooling(timeout)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newHTTPClientWithPooling keeps a small pool of connections to the one
// backend host.
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

func (c *Client) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	var out []core.Transaction
	if err := c.do(ctx, "httpapi.list_transactions", http.MethodGet, PathTransactions, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []core.Transaction{}
	}
	return out, nil
}

func (c *Client) CreateTransaction(ctx context.Context, d core.Draft) (core.Transaction, error) {
	if err := d.Validate(); err != nil {
		return core.Transaction{}, core.Validation("httpapi.create_transaction", err)
	}
	var out core.Transaction
	err := c.do(ctx, "httpapi.create_transaction", http.MethodPost, PathTransactions, d, &out)
	return out, err
}

func (c *Client) UpdateTransaction(ctx context.Context, id string, p core.Patch) (core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return core.Transaction{}, core.Validation("httpapi.update_transaction", err)
	}
	var out core.Transaction
	err := c.do(ctx, "httpapi.update_transaction", http.MethodPut, PathTransactions+"/"+url.PathEscape(id), p, &out)
	return out, err
}

// DeleteTransaction treats a 404 as success: the entry is gone either way.
func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	err := c.do(ctx, "httpapi.delete_transaction", http.MethodDelete, PathTransactions+"/"+url.PathEscape(id), nil, nil)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	return err
}

// Upload sends the file as the "file" part of a multipart form.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (core.UploadResult, error) {
	const op = "httpapi.upload"
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return core.UploadResult{}, fmt.Errorf("%s: create form file: %w", op, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return core.UploadResult{}, fmt.Errorf("%s: read file: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return core.UploadResult{}, fmt.Errorf("%s: close form: %w", op, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, PathUpload, &body)
	if err != nil {
		return core.UploadResult{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out core.UploadResult
	err = c.send(op, req, &out)
	return out, err
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	var out []core.Category
	if err := c.do(ctx, "httpapi.list_categories", http.MethodGet, PathCategories, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []core.Category{}
	}
	return out, nil
}

func (c *Client) Categorize(ctx context.Context, id string) (core.Transaction, error) {
	var out core.Transaction
	err := c.do(ctx, "httpapi.categorize", http.MethodPost, PathCategorize+"/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) Analytics(ctx context.Context, period string) (core.Snapshot, error) {
	path := PathAnalytics
	if period != "" {
		path += "?" + url.Values{"period": {period}}.Encode()
	}
	var out core.Snapshot
	err := c.do(ctx, "httpapi.analytics", http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, text string) (core.ChatReply, error) {
	if strings.TrimSpace(text) == "" {
		return core.ChatReply{}, core.Validation("httpapi.chat", core.ErrEmptyMessage)
	}
	var out core.ChatReply
	err := c.do(ctx, "httpapi.chat", http.MethodPost, PathChatMessage, map[string]string{"message": text}, &out)
	return out, err
}

// do sends in as a JSON body (when non-nil) and decodes the response into
// out (when non-nil).
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(op, req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path: %w", err)
	}
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + ref.Path
	u.RawPath = ""
	if ref.RawPath != "" {
		u.RawPath = strings.TrimRight(c.baseURL.EscapedPath(), "/") + ref.RawPath
	}
	u.RawQuery = ref.RawQuery
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) send(op string, req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return core.Network(op, err)
	}
	defer resp.Body.Close()

	slog.DebugContext(req.Context(), "Backend request completed",
		"operation", op,
		"method", req.Method,
		"path", req.URL.Path,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return core.Upstream(op, errors.New("empty response body"))
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return core.Network(op, err)
		}
		return core.Upstream(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// StatusError carries a non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(b)}
	switch {
	case resp.StatusCode >= 500:
		return core.Network(op, se)
	case resp.StatusCode == http.StatusNotFound:
		return core.NotFound(op, se)
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		return core.Validation(op, se)
	default:
		return core.Upstream(op, se)
	}
}

// errorMessage extracts {"error": ...} or {"message": ...} from a JSON body
// and falls back to the trimmed text.
func errorMessage(b []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(b))
}
