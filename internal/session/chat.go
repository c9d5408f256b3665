package session

import (
	"context"
	"strconv"
	"strings"
	"time"

	"spendwise/internal/assistant"
	"spendwise/internal/core"
	"spendwise/internal/log"
)

// MaxHistory bounds the chat history kept in memory.
const MaxHistory = 100

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one side of an exchange. Type is RoleUser or
// RoleAssistant; the query type and timing are set on assistant messages.
type ChatMessage struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Content         string    `json:"content"`
	Timestamp       time.Time `json:"timestamp"`
	QueryType       string    `json:"queryType,omitempty"`
	ExecutionTimeMs int64     `json:"executionTimeMs,omitempty"`
}

// Chat sends message to the gateway and records both sides of the exchange.
// A failed exchange is not recorded.
func (s *Session) Chat(ctx context.Context, message string) (core.ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return core.ChatReply{}, core.Validation("session.chat", core.ErrEmptyMessage)
	}
	asked := s.now()
	reply, err := s.gw.SendMessage(ctx, message)
	if err != nil {
		s.sl.LogError(ctx, "Chat message failed", err, log.OpChat, nil)
		return core.ChatReply{}, err
	}

	s.mu.Lock()
	s.history = append(s.history,
		ChatMessage{ID: s.nextChatID(), Type: RoleUser, Content: message, Timestamp: asked},
		ChatMessage{
			ID:              s.nextChatID(),
			Type:            RoleAssistant,
			Content:         reply.Response,
			Timestamp:       s.now(),
			QueryType:       reply.QueryType,
			ExecutionTimeMs: reply.ExecutionTimeMs,
		},
	)
	if over := len(s.history) - MaxHistory; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "Chat answered",
		log.FieldOperation, log.OpChat,
		"query_type", reply.QueryType,
		"execution_ms", reply.ExecutionTimeMs)
	return reply, nil
}

// History returns the recorded exchange, oldest first.
func (s *Session) History() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatMessage{}, s.history...)
}

// RecentHistory returns the newest n messages, oldest first. n <= 0 means
// the whole history.
func (s *Session) RecentHistory(n int) []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]ChatMessage{}, h...)
}

func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Suggestions returns the canned questions offered to start a chat.
func (s *Session) Suggestions() []string {
	return append([]string{}, assistant.Suggestions...)
}

// nextChatID numbers history entries; callers hold mu.
func (s *Session) nextChatID() string {
	s.chatSeq++
	return "msg_" + strconv.Itoa(s.chatSeq)
}
