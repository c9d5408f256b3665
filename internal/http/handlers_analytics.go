package http

import (
	"bytes"
	"net/http"
	"strconv"

	"spendwise/internal/core"
	"spendwise/internal/export"
	"spendwise/internal/log"
)

// handleAnalytics serves the gateway snapshot, or the one derived from the
// local ledger with ?source=local.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period := q.Get("period")

	var (
		snap core.Snapshot
		err  error
	)
	if q.Get("source") == "local" {
		snap, err = s.session.LocalSnapshot(period)
	} else {
		snap, err = s.session.Analytics(r.Context(), period)
	}
	if err != nil {
		s.writeError(w, r, log.OpAnalytics, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Defaults and bounds of the analytics sub-resources.
const (
	defaultMonths    = 6
	maxMonths        = 120
	defaultMerchants = 10
	maxMerchants     = 100
)

// The sub-resources below are computed from the loaded ledger.

func (s *Server) handleMonthlySpending(w http.ResponseWriter, r *http.Request) {
	months, err := intQuery(r, "http.monthly", "months", defaultMonths, 1, maxMonths)
	if err != nil {
		s.writeError(w, r, log.OpAnalytics, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.MonthlySpending(months))
}

func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	shares, err := s.session.CategoryBreakdown(sanitizeInput(r.URL.Query().Get("month")))
	if err != nil {
		s.writeError(w, r, log.OpAnalytics, err)
		return
	}
	writeJSON(w, http.StatusOK, shares)
}

func (s *Server) handleTopMerchants(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "http.merchants", "limit", defaultMerchants, 1, maxMerchants)
	if err != nil {
		s.writeError(w, r, log.OpAnalytics, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.TopMerchants(limit))
}

func (s *Server) handleCategoryTrends(w http.ResponseWriter, r *http.Request) {
	months, err := intQuery(r, "http.trends", "months", defaultMonths, 1, maxMonths)
	if err != nil {
		s.writeError(w, r, log.OpAnalytics, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.CategoryTrends(months))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Summary())
}

// handleExport downloads the filtered transactions as CSV or JSON.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}
	txs := s.session.Transactions(sanitizeInput(q.Get("search")), sanitizeInput(q.Get("categoryId")))

	var buf bytes.Buffer
	if err := export.Write(&buf, format, txs); err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(format, s.now())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	if s.sheets == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "sheets export is not configured"})
		return
	}
	header := r.URL.Query().Get("header") != "false"
	n, err := s.sheets.Export(r.Context(), s.session.Transactions("", ""), header)
	if err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}
	writeJSON(w, http.StatusOK, core.UploadResult{Message: "Exported " + strconv.Itoa(n) + " rows", Count: n})
}
