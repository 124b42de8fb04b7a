package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_message_store.go -package=mocks studypal-ai/internal/storage MessageStore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageStore defines the interface for chat message storage operations.
// Messages are append-only; there are no update or delete operations.
type MessageStore interface {
	// Insert appends a message. A UUID and timestamp are generated when unset.
	Insert(ctx context.Context, message *MessageRecord) error
	// ListBySession returns the session's messages ordered by timestamp
	// ascending. Reads are side-effect free, which the polling protocol
	// depends on.
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]MessageRecord, error)
	// ListRecent returns the session's newest messages in chronological
	// order, for conversation history assembly.
	ListRecent(ctx context.Context, sessionID string, limit int) ([]MessageRecord, error)
}

// MessageRepo provides methods for message operations.
// It implements the MessageStore interface.
type MessageRepo struct {
	db *sql.DB
}

// NewMessageRepo creates a new MessageRepo.
func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Insert appends a message.
func (r *MessageRepo) Insert(ctx context.Context, message *MessageRecord) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	var trace any
	if message.DebugTrace != nil {
		trace = string(message.DebugTrace)
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO messages (id, session_id, role, content, debug_trace, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		message.ID, message.SessionID, message.Role, message.Content, trace,
		encodeTime(message.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// ListBySession returns the session's messages ordered by timestamp ascending.
func (r *MessageRepo) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]MessageRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, debug_trace, created_at
		 FROM messages WHERE session_id = ?
		 ORDER BY created_at, id LIMIT ? OFFSET ?`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return collectMessages(rows)
}

// ListRecent returns the session's newest messages in chronological order.
func (r *MessageRepo) ListRecent(ctx context.Context, sessionID string, limit int) ([]MessageRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, debug_trace, created_at
		 FROM messages WHERE session_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func collectMessages(rows *sql.Rows) ([]MessageRecord, error) {
	defer func() {
		_ = rows.Close()
	}()

	var messages []MessageRecord
	for rows.Next() {
		var message MessageRecord
		var trace sql.NullString
		var createdAtStr string
		err := rows.Scan(&message.ID, &message.SessionID, &message.Role,
			&message.Content, &trace, &createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if trace.Valid {
			message.DebugTrace = []byte(trace.String)
		}
		if message.CreatedAt, err = decodeTime(createdAtStr); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return messages, nil
}
