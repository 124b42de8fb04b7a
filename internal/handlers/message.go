package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"studypal-ai/internal/contextutil"
	"studypal-ai/internal/conversation"
	"studypal-ai/internal/storage"
)

// MessageHandler handles message exchange within a session.
type MessageHandler struct {
	engine   *conversation.Engine
	sessions storage.SessionStore
	messages storage.MessageStore
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(engine *conversation.Engine, sessions storage.SessionStore, messages storage.MessageStore) *MessageHandler {
	return &MessageHandler{
		engine:   engine,
		sessions: sessions,
		messages: messages,
	}
}

// PostMessageRequest is the user message payload.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// MessageResponse is one stored message. Debug is the retrieval and
// generation trace, present only on assistant messages.
type MessageResponse struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Debug     json.RawMessage `json:"debug,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// PostMessageResponse acknowledges a stored user message. The assistant
// reply arrives asynchronously; clients poll the message list for it.
type PostMessageResponse struct {
	Message MessageResponse `json:"message"`
	Status  string          `json:"status"`
}

// MessageListResponse is a page of messages in conversation order.
type MessageListResponse struct {
	Messages []MessageResponse `json:"messages"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func messageResponse(message *storage.MessageRecord) MessageResponse {
	return MessageResponse{
		ID:        message.ID,
		Role:      message.Role,
		Content:   message.Content,
		Debug:     message.DebugTrace,
		CreatedAt: message.CreatedAt,
	}
}

// Post stores a user message and starts reply generation.
func (h *MessageHandler) Post(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	message, err := h.engine.PostMessage(ctx, userID, chi.URLParam(r, "sessionID"), req.Content)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrEmptyMessage), errors.Is(err, conversation.ErrMessageTooLong):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "Session not found")
		default:
			logger.ErrorContext(ctx, "failed to post message", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to post message")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, PostMessageResponse{
		Message: messageResponse(message),
		Status:  "processing",
	})
}

// List returns the session's messages in conversation order. The read is
// idempotent; polling clients call it repeatedly until the assistant reply
// appears.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.sessions.GetByID(ctx, sessionID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		logger.ErrorContext(ctx, "failed to get session", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	limit, offset := parsePagination(r)
	messages, err := h.messages.ListBySession(ctx, sessionID, limit, offset)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list messages", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}

	resp := MessageListResponse{
		Messages: make([]MessageResponse, 0, len(messages)),
		Limit:    limit,
		Offset:   offset,
	}
	for i := range messages {
		resp.Messages = append(resp.Messages, messageResponse(&messages[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}
