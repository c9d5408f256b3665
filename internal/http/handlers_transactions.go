package http

import (
	"errors"
	"fmt"
	"net/http"

	"spendwise/internal/core"
	"spendwise/internal/log"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	txs := s.session.Transactions(sanitizeInput(q.Get("search")), sanitizeInput(q.Get("categoryId")))
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, ok := s.session.Get(id)
	if !ok {
		s.writeError(w, r, log.OpList, core.NotFound("http.get_transaction", fmt.Errorf("transaction %q", id)))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var d core.Draft
	if err := decodeJSON(w, r, "http.create_transaction", &d); err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	d.Description = sanitizeInput(d.Description)
	d.Merchant = sanitizeInput(d.Merchant)

	t, err := s.session.Add(r.Context(), d)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var p core.Patch
	if err := decodeJSON(w, r, "http.update_transaction", &p); err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	if p.Description != nil {
		v := sanitizeInput(*p.Description)
		p.Description = &v
	}
	if p.Merchant != nil {
		v := sanitizeInput(*p.Merchant)
		p.Merchant = &v
	}

	t, err := s.session.Update(r.Context(), r.PathValue("id"), p)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpload accepts a multipart form with the CSV in the "file" part.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = errors.New("file too large")
		}
		s.writeError(w, r, log.OpUpload, core.Validation("http.upload", err))
		return
	}
	defer f.Close()

	res, err := s.session.UploadCSV(r.Context(), hdr.Filename, f)
	if err != nil {
		s.writeError(w, r, log.OpUpload, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Categories())
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	t, err := s.session.Categorize(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, log.OpCategorize, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleRefresh reloads the ledger from the gateway.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Refresh(r.Context()); err != nil {
		s.writeError(w, r, log.OpRefresh, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": len(s.session.Transactions("", ""))})
}
