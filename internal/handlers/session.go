package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"studypal-ai/internal/contextutil"
	"studypal-ai/internal/storage"
)

// SessionHandler handles chat session lifecycle requests.
type SessionHandler struct {
	sessions storage.SessionStore
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions storage.SessionStore) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// CreateSessionRequest is the session creation payload. Title is optional.
type CreateSessionRequest struct {
	Title string `json:"title"`
}

// SessionResponse is one chat session.
type SessionResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionListResponse is a page of sessions.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func sessionResponse(session *storage.SessionRecord) SessionResponse {
	return SessionResponse{
		ID:           session.ID,
		Title:        session.Title,
		MessageCount: session.MessageCount,
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
	}
}

// Create creates a chat session. A missing title gets a dated default.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.WarnContext(ctx, "invalid request body", "error", err)
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	title := sanitizeText(req.Title)
	if title == "" {
		title = fmt.Sprintf("Conversation %s", time.Now().UTC().Format("2006-01-02 15:04"))
	}
	if len(title) > maxNameLength {
		writeError(w, http.StatusBadRequest, "Title is too long")
		return
	}

	session := &storage.SessionRecord{
		UserID: userID,
		Title:  title,
	}
	if err := h.sessions.Insert(ctx, session); err != nil {
		logger.ErrorContext(ctx, "failed to insert session", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse(session))
}

// List returns a page of the caller's sessions, most recently active first.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	limit, offset := parsePagination(r)

	sessions, err := h.sessions.List(ctx, userID, limit, offset)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	resp := SessionListResponse{
		Sessions: make([]SessionResponse, 0, len(sessions)),
		Limit:    limit,
		Offset:   offset,
	}
	for i := range sessions {
		resp.Sessions = append(resp.Sessions, sessionResponse(&sessions[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Delete removes a session and its messages.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Delete(ctx, chi.URLParam(r, "sessionID"), userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		logger.ErrorContext(ctx, "failed to delete session", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
