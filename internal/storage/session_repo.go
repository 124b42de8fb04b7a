package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_session_store.go -package=mocks studypal-ai/internal/storage SessionStore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStore defines the interface for chat session storage operations.
type SessionStore interface {
	// Insert creates a new session. A UUID is generated when ID is empty.
	Insert(ctx context.Context, session *SessionRecord) error
	// GetByID gets a session owned by userID. Returns ErrNotFound otherwise.
	GetByID(ctx context.Context, id, userID string) (*SessionRecord, error)
	// List returns the owner's sessions, most recently updated first, with
	// message counts populated.
	List(ctx context.Context, userID string, limit, offset int) ([]SessionRecord, error)
	// Delete removes a session and, via cascade, its messages.
	Delete(ctx context.Context, id, userID string) error
	// Touch bumps the session's updated_at, used when messages are appended.
	Touch(ctx context.Context, id string) error
}

// SessionRepo provides methods for session operations.
// It implements the SessionStore interface.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Insert creates a new session.
func (r *SessionRepo) Insert(ctx context.Context, session *SessionRecord) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		session.ID, session.UserID, session.Title,
		encodeTime(session.CreatedAt), encodeTime(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetByID gets a session owned by userID.
func (r *SessionRepo) GetByID(ctx context.Context, id, userID string) (*SessionRecord, error) {
	var session SessionRecord
	var createdAtStr, updatedAtStr string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, title, created_at, updated_at FROM sessions WHERE id = ? AND user_id = ?",
		id, userID,
	).Scan(&session.ID, &session.UserID, &session.Title, &createdAtStr, &updatedAtStr)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if session.CreatedAt, err = decodeTime(createdAtStr); err != nil {
		return nil, err
	}
	if session.UpdatedAt, err = decodeTime(updatedAtStr); err != nil {
		return nil, err
	}
	return &session, nil
}

// List returns the owner's sessions, most recently updated first.
// Message counts are computed in the same query to avoid per-session reads.
func (r *SessionRepo) List(ctx context.Context, userID string, limit, offset int) ([]SessionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.title, s.created_at, s.updated_at,
		        (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id) AS message_count
		 FROM sessions s WHERE s.user_id = ?
		 ORDER BY s.updated_at DESC LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var sessions []SessionRecord
	for rows.Next() {
		var session SessionRecord
		var createdAtStr, updatedAtStr string
		err := rows.Scan(&session.ID, &session.UserID, &session.Title,
			&createdAtStr, &updatedAtStr, &session.MessageCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if session.CreatedAt, err = decodeTime(createdAtStr); err != nil {
			return nil, err
		}
		if session.UpdatedAt, err = decodeTime(updatedAtStr); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return sessions, nil
}

// Delete removes a session and, via cascade, its messages.
func (r *SessionRepo) Delete(ctx context.Context, id, userID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE id = ? AND user_id = ?",
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch bumps the session's updated_at.
func (r *SessionRepo) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE sessions SET updated_at = ? WHERE id = ?",
		encodeTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}
