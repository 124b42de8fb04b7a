package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_content_store.go -package=mocks studypal-ai/internal/storage ContentStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ContentStore defines the interface for content storage operations.
type ContentStore interface {
	// Insert inserts a new content record. A UUID is generated when ID is empty.
	Insert(ctx context.Context, content *ContentRecord) error
	// GetByID gets a non-deleted content owned by userID. Returns ErrNotFound
	// if it does not exist, is deleted, or belongs to another user.
	GetByID(ctx context.Context, id, userID string) (*ContentRecord, error)
	// Get gets a non-deleted content by ID regardless of owner. Used by
	// analysis workers, which run outside any request scope.
	Get(ctx context.Context, id string) (*ContentRecord, error)
	// List returns the owner's non-deleted contents, newest first.
	List(ctx context.Context, userID string, limit, offset int) ([]ContentRecord, error)
	// SoftDelete marks a content deleted. The row is retained for audit.
	SoftDelete(ctx context.Context, id, userID string) error
	// SetAnalysis persists analysis results and marks the content processed.
	SetAnalysis(ctx context.Context, id string, keyConcepts []string, difficulty string, studyTimeMinutes int) error
	// CountProcessed returns the number of the owner's non-deleted, processed contents.
	CountProcessed(ctx context.Context, userID string) (int, error)
}

// ContentRepo provides methods for content operations.
// It implements the ContentStore interface.
type ContentRepo struct {
	db *sql.DB
}

// NewContentRepo creates a new ContentRepo.
func NewContentRepo(db *sql.DB) *ContentRepo {
	return &ContentRepo{db: db}
}

// Insert inserts a new content record.
func (r *ContentRepo) Insert(ctx context.Context, content *ContentRecord) error {
	if content.ID == "" {
		content.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	content.CreatedAt = now
	content.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO contents (id, user_id, name, content, processed, is_deleted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, 0, ?, ?)`,
		content.ID, content.UserID, content.Name, content.Content,
		encodeTime(content.CreatedAt), encodeTime(content.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert content: %w", err)
	}
	return nil
}

// GetByID gets a non-deleted content owned by userID.
func (r *ContentRepo) GetByID(ctx context.Context, id, userID string) (*ContentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, content, processed, key_concepts, difficulty_level,
		        estimated_study_time, is_deleted, created_at, updated_at
		 FROM contents WHERE id = ? AND user_id = ? AND is_deleted = 0`,
		id, userID,
	)
	return scanContent(row)
}

// Get gets a non-deleted content by ID regardless of owner.
func (r *ContentRepo) Get(ctx context.Context, id string) (*ContentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, content, processed, key_concepts, difficulty_level,
		        estimated_study_time, is_deleted, created_at, updated_at
		 FROM contents WHERE id = ? AND is_deleted = 0`,
		id,
	)
	return scanContent(row)
}

// List returns the owner's non-deleted contents, newest first.
func (r *ContentRepo) List(ctx context.Context, userID string, limit, offset int) ([]ContentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, content, processed, key_concepts, difficulty_level,
		        estimated_study_time, is_deleted, created_at, updated_at
		 FROM contents WHERE user_id = ? AND is_deleted = 0
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query contents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var contents []ContentRecord
	for rows.Next() {
		content, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		contents = append(contents, *content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return contents, nil
}

// SoftDelete marks a content deleted.
func (r *ContentRepo) SoftDelete(ctx context.Context, id, userID string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE contents SET is_deleted = 1, updated_at = ? WHERE id = ? AND user_id = ? AND is_deleted = 0",
		encodeTime(time.Now().UTC()), id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to soft-delete content: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check soft-delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAnalysis persists analysis results and marks the content processed.
func (r *ContentRepo) SetAnalysis(ctx context.Context, id string, keyConcepts []string, difficulty string, studyTimeMinutes int) error {
	conceptsJSON, err := json.Marshal(keyConcepts)
	if err != nil {
		return fmt.Errorf("failed to encode key concepts: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE contents SET key_concepts = ?, difficulty_level = ?, estimated_study_time = ?,
		        processed = 1, updated_at = ?
		 WHERE id = ?`,
		string(conceptsJSON), difficulty, studyTimeMinutes, encodeTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update analysis fields: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check analysis update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountProcessed returns the number of the owner's non-deleted, processed contents.
func (r *ContentRepo) CountProcessed(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM contents WHERE user_id = ? AND is_deleted = 0 AND processed = 1",
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count processed contents: %w", err)
	}
	return count, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanContent scans one content row, decoding JSON and timestamp columns.
func scanContent(row rowScanner) (*ContentRecord, error) {
	var content ContentRecord
	var conceptsJSON sql.NullString
	var difficulty sql.NullString
	var studyTime sql.NullInt64
	var createdAtStr, updatedAtStr string

	err := row.Scan(&content.ID, &content.UserID, &content.Name, &content.Content,
		&content.Processed, &conceptsJSON, &difficulty, &studyTime,
		&content.IsDeleted, &createdAtStr, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan content: %w", err)
	}

	if conceptsJSON.Valid && conceptsJSON.String != "" {
		if err := json.Unmarshal([]byte(conceptsJSON.String), &content.KeyConcepts); err != nil {
			return nil, fmt.Errorf("failed to decode key concepts: %w", err)
		}
	}
	if difficulty.Valid {
		content.DifficultyLevel = &difficulty.String
	}
	if studyTime.Valid {
		minutes := int(studyTime.Int64)
		content.EstimatedStudyTime = &minutes
	}

	if content.CreatedAt, err = decodeTime(createdAtStr); err != nil {
		return nil, err
	}
	if content.UpdatedAt, err = decodeTime(updatedAtStr); err != nil {
		return nil, err
	}
	return &content, nil
}
