package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionRepo_InsertAndGet(t *testing.T) {
	repo := NewSessionRepo(newTestDB(t))
	ctx := context.Background()

	session := &SessionRecord{UserID: "user-1", Title: "Exam prep"}
	if err := repo.Insert(ctx, session); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if session.ID == "" {
		t.Fatal("Insert() did not generate an ID")
	}

	got, err := repo.GetByID(ctx, session.ID, "user-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Title != "Exam prep" {
		t.Errorf("GetByID() Title = %q, want Exam prep", got.Title)
	}

	if _, err := repo.GetByID(ctx, session.ID, "user-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() for other user error = %v, want ErrNotFound", err)
	}
}

func TestSessionRepo_List_OrderAndCounts(t *testing.T) {
	db := newTestDB(t)
	sessions := NewSessionRepo(db)
	messages := NewMessageRepo(db)
	ctx := context.Background()

	older := &SessionRecord{UserID: "user-1", Title: "Older"}
	newer := &SessionRecord{UserID: "user-1", Title: "Newer"}
	for _, session := range []*SessionRecord{older, newer} {
		if err := sessions.Insert(ctx, session); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		if err := messages.Insert(ctx, &MessageRecord{SessionID: older.ID, Role: RoleUser, Content: "hi"}); err != nil {
			t.Fatalf("Insert() message error = %v", err)
		}
	}

	// Touching the older session moves it to the front.
	time.Sleep(time.Millisecond)
	if err := sessions.Touch(ctx, older.ID); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	list, err := sessions.List(ctx, "user-1", 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d sessions, want 2", len(list))
	}
	if list[0].ID != older.ID {
		t.Errorf("List() first session = %s, want the touched one", list[0].Title)
	}
	if list[0].MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3", list[0].MessageCount)
	}
	if list[1].MessageCount != 0 {
		t.Errorf("empty session MessageCount = %d, want 0", list[1].MessageCount)
	}
}

func TestSessionRepo_Delete_Cascades(t *testing.T) {
	db := newTestDB(t)
	sessions := NewSessionRepo(db)
	messages := NewMessageRepo(db)
	ctx := context.Background()

	session := &SessionRecord{UserID: "user-1", Title: "Doomed"}
	if err := sessions.Insert(ctx, session); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := messages.Insert(ctx, &MessageRecord{SessionID: session.ID, Role: RoleUser, Content: "bye"}); err != nil {
		t.Fatalf("Insert() message error = %v", err)
	}

	if err := sessions.Delete(ctx, session.ID, "user-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := sessions.Delete(ctx, session.ID, "user-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}

	remaining, err := messages.ListBySession(ctx, session.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("messages survived session delete: %d", len(remaining))
	}
}

func TestSessionRepo_Delete_CascadesOnEveryPooledConnection(t *testing.T) {
	db := newTestDB(t)
	sessions := NewSessionRepo(db)
	messages := NewMessageRepo(db)
	ctx := context.Background()

	session := &SessionRecord{UserID: "user-1", Title: "Doomed"}
	if err := sessions.Insert(ctx, session); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := messages.Insert(ctx, &MessageRecord{SessionID: session.ID, Role: RoleUser, Content: "bye"}); err != nil {
		t.Fatalf("Insert() message error = %v", err)
	}

	// Pin the connection that served the inserts so the delete below is
	// forced onto a different pooled connection. Foreign key enforcement
	// must hold there too.
	pinned, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	defer pinned.Close()
	if _, err := pinned.ExecContext(ctx, "SELECT 1"); err != nil {
		t.Fatalf("pin query error = %v", err)
	}

	if err := sessions.Delete(ctx, session.ID, "user-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	remaining, err := messages.ListBySession(ctx, session.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("messages survived session delete on a fresh connection: %d", len(remaining))
	}
}
