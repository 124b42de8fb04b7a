package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"studypal-ai/internal/storage"
)

func newSessionFixture(t *testing.T) (chi.Router, *storage.SessionRepo, *storage.MessageRepo) {
	t.Helper()
	db := newTestDB(t)
	sessions := storage.NewSessionRepo(db)
	messages := storage.NewMessageRepo(db)

	handler := NewSessionHandler(sessions)
	router := chi.NewRouter()
	router.Post("/api/sessions", handler.Create)
	router.Get("/api/sessions", handler.List)
	router.Delete("/api/sessions/{sessionID}", handler.Delete)
	return router, sessions, messages
}

func TestSessionHandler_Create(t *testing.T) {
	router, _, _ := newSessionFixture(t)

	recorder := doRequest(t, router, http.MethodPost, "/api/sessions", "user-1",
		CreateSessionRequest{Title: "Biology revision"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", recorder.Code, recorder.Body.String())
	}

	var resp SessionResponse
	decodeResponse(t, recorder, &resp)
	if resp.ID == "" || resp.Title != "Biology revision" {
		t.Errorf("session = %+v", resp)
	}
}

func TestSessionHandler_Create_DefaultTitle(t *testing.T) {
	router, _, _ := newSessionFixture(t)

	// No body at all is allowed.
	recorder := doRequest(t, router, http.MethodPost, "/api/sessions", "user-1", nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", recorder.Code, recorder.Body.String())
	}

	var resp SessionResponse
	decodeResponse(t, recorder, &resp)
	if !strings.HasPrefix(resp.Title, "Conversation ") {
		t.Errorf("default title = %q, want dated Conversation title", resp.Title)
	}
}

func TestSessionHandler_Create_TitleTooLong(t *testing.T) {
	router, _, _ := newSessionFixture(t)

	recorder := doRequest(t, router, http.MethodPost, "/api/sessions", "user-1",
		CreateSessionRequest{Title: strings.Repeat("x", maxNameLength+1)})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", recorder.Code)
	}
}

func TestSessionHandler_List(t *testing.T) {
	router, sessions, messages := newSessionFixture(t)
	ctx := context.Background()

	first := &storage.SessionRecord{UserID: "user-1", Title: "First"}
	second := &storage.SessionRecord{UserID: "user-1", Title: "Second"}
	for _, s := range []*storage.SessionRecord{first, second} {
		if err := sessions.Insert(ctx, s); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
	message := &storage.MessageRecord{SessionID: first.ID, Role: storage.RoleUser, Content: "hi"}
	if err := messages.Insert(ctx, message); err != nil {
		t.Fatalf("Insert() message error = %v", err)
	}
	if err := sessions.Touch(ctx, first.ID); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	recorder := doRequest(t, router, http.MethodGet, "/api/sessions", "user-1", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}

	var resp SessionListResponse
	decodeResponse(t, recorder, &resp)
	if len(resp.Sessions) != 2 {
		t.Fatalf("list has %d sessions, want 2", len(resp.Sessions))
	}
	// Touched session is the most recently active.
	if resp.Sessions[0].Title != "First" {
		t.Errorf("first listed session = %q, want First", resp.Sessions[0].Title)
	}
	if resp.Sessions[0].MessageCount != 1 {
		t.Errorf("message count = %d, want 1", resp.Sessions[0].MessageCount)
	}
}

func TestSessionHandler_Delete(t *testing.T) {
	router, sessions, _ := newSessionFixture(t)
	ctx := context.Background()

	session := &storage.SessionRecord{UserID: "user-1", Title: "Doomed"}
	if err := sessions.Insert(ctx, session); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	recorder := doRequest(t, router, http.MethodDelete, "/api/sessions/"+session.ID, "user-2", nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("cross-user delete status = %d, want 404", recorder.Code)
	}

	recorder = doRequest(t, router, http.MethodDelete, "/api/sessions/"+session.ID, "user-1", nil)
	if recorder.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", recorder.Code)
	}

	recorder = doRequest(t, router, http.MethodDelete, "/api/sessions/"+session.ID, "user-1", nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", recorder.Code)
	}
}
