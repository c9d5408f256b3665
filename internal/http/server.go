// Package http serves the session over the JSON API used by the renderer.
// The routes mirror the remote backend, so gateway/httpapi can talk to it.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"spendwise/internal/cache"
	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/middleware/ratelimit"
	"spendwise/internal/middleware/security"
	"spendwise/internal/middleware/trace"
	"spendwise/internal/session"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 10 << 20

	cacheCleanupInterval = 10 * time.Minute
)

// SheetsExporter pushes transactions to a spreadsheet.
type SheetsExporter interface {
	Export(ctx context.Context, txs []core.Transaction, withHeader bool) (int, error)
}

// Options configures NewServer. Zero values pick defaults.
type Options struct {
	Logger         *log.Logger
	TrustedProxies []string
	// RequestsPerMinute limits mutating requests per client.
	RequestsPerMinute int
	Version           string
	Sheets            SheetsExporter
	Now               func() time.Time
}

type Server struct {
	http.Server
	session  *session.Session
	sheets   SheetsExporter
	version  string
	now      func() time.Time
	logger   *log.Logger
	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	caches   *cache.Manager

	shutdownOnce sync.Once
}

func NewServer(addr string, sess *session.Session, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = log.Wrap(slog.Default(), log.ComponentHTTP)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	detector, err := security.NewDetector(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		session:  sess,
		sheets:   opts.Sheets,
		version:  opts.Version,
		now:      opts.Now,
		logger:   logger,
		detector: detector,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		tracer:   trace.NewMiddleware(logger, detector.ExtractClientIP),
		caches:   cache.NewManager(logger.WithComponent(log.ComponentCache).Logger),
	}
	s.caches.Register(sess.SnapshotCache())
	s.caches.StartCleanup(cacheCleanupInterval)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/version", s.handleVersion)

	mux.HandleFunc("GET /api/ingest/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/ingest/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("POST /api/ingest/transactions", s.handleCreateTransaction)
	mux.HandleFunc("PUT /api/ingest/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("PATCH /api/ingest/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/ingest/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("POST /api/ingest/upload", s.handleUpload)

	mux.HandleFunc("GET /api/categorizer/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categorizer/categorize/{id}", s.handleCategorize)

	mux.HandleFunc("GET /api/analytics", s.handleAnalytics)
	mux.HandleFunc("GET /api/analytics/monthly", s.handleMonthlySpending)
	mux.HandleFunc("GET /api/analytics/categories", s.handleCategoryBreakdown)
	mux.HandleFunc("GET /api/analytics/merchants", s.handleTopMerchants)
	mux.HandleFunc("GET /api/analytics/trends", s.handleCategoryTrends)
	mux.HandleFunc("GET /api/analytics/export", s.handleExport)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("POST /api/export/sheets", s.handleExportSheets)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)

	mux.HandleFunc("POST /api/chat/message", s.handleChatMessage)
	mux.HandleFunc("GET /api/chat/suggestions", s.handleChatSuggestions)
	mux.HandleFunc("GET /api/chat/history", s.handleChatHistory)
	mux.HandleFunc("DELETE /api/chat/history", s.handleClearChatHistory)

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	h = s.tracer.Middleware(h)
	return s.recoverer(h)
}

// recoverer turns a handler panic into a 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger.ErrorContext(r.Context(), "Handler panic",
					log.FieldMethod, r.Method,
					log.FieldPath, r.URL.Path,
					"panic", v)
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded, please try again later"})
}

// Shutdown stops background cleanup and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// ListenAndServe treats a graceful shutdown as success.
func (s *Server) ListenAndServe() error {
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready once the ledger has been loaded.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.session.Loaded() {
		http.Error(w, "loading", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}
