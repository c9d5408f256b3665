package http

import (
	"net/http"

	"spendwise/internal/log"
	"spendwise/internal/session"
)

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, "http.chat", &req); err != nil {
		s.writeError(w, r, log.OpChat, err)
		return
	}
	reply, err := s.session.Chat(r.Context(), sanitizeInput(req.Message))
	if err != nil {
		s.writeError(w, r, log.OpChat, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleChatSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Suggestions())
}

// defaultHistoryLimit matches the page size the renderer asks for.
const defaultHistoryLimit = 50

// handleChatHistory returns the newest ?limit= messages, oldest first.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "http.chat_history", "limit", defaultHistoryLimit, 1, session.MaxHistory)
	if err != nil {
		s.writeError(w, r, log.OpChat, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.RecentHistory(limit))
}

func (s *Server) handleClearChatHistory(w http.ResponseWriter, r *http.Request) {
	s.session.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}
