package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chunk_store.go -package=mocks studypal-ai/internal/storage ChunkStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// ChunkStore defines the interface for chunk storage operations.
type ChunkStore interface {
	// ReplaceForContent atomically replaces the content's chunk set.
	// Chunk IDs must be set (UUID) before calling this method.
	ReplaceForContent(ctx context.Context, contentID string, chunks []ChunkRecord) error
	// ListIDsByContent returns all chunk IDs for a content, ordered by chunk_index.
	ListIDsByContent(ctx context.Context, contentID string) ([]string, error)
	// GetByID gets a chunk by its ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*ChunkRecord, error)
	// SearchCandidates returns chunks of the owner's processed, non-deleted
	// contents whose text or content name matches any of the given terms.
	SearchCandidates(ctx context.Context, userID string, terms []string, limit int) ([]ChunkHit, error)
}

// ChunkRepo provides methods for chunk operations.
// It implements the ChunkStore interface.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceForContent atomically replaces the content's chunk set.
// Prior chunks stay visible to readers until the transaction commits, which
// is what keeps re-analysis from exposing a partially written set.
func (r *ChunkRepo) ReplaceForContent(ctx context.Context, contentID string, chunks []ChunkRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin chunk replace: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE content_id = ?", contentID); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	for i := range chunks {
		chunk := &chunks[i]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, content_id, chunk_index, total_chunks, start_char, end_char, text, point_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			chunk.ID, chunk.ContentID, chunk.ChunkIndex, chunk.TotalChunks,
			chunk.StartChar, chunk.EndChar, chunk.Text, chunk.PointID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk replace: %w", err)
	}
	return nil
}

// ListIDsByContent returns all chunk IDs for a content, ordered by chunk_index.
// Returns an empty slice if no chunks exist (not an error).
// Used to get vector store point IDs for deletion before re-analysis.
func (r *ChunkRepo) ListIDsByContent(ctx context.Context, contentID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM chunks WHERE content_id = ? ORDER BY chunk_index",
		contentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk IDs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}

// GetByID gets a chunk by its ID. Returns ErrNotFound if not found.
func (r *ChunkRepo) GetByID(ctx context.Context, id string) (*ChunkRecord, error) {
	var chunk ChunkRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT id, content_id, chunk_index, total_chunks, start_char, end_char, text, point_id
		 FROM chunks WHERE id = ?`,
		id,
	).Scan(&chunk.ID, &chunk.ContentID, &chunk.ChunkIndex, &chunk.TotalChunks,
		&chunk.StartChar, &chunk.EndChar, &chunk.Text, &chunk.PointID)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk: %w", err)
	}

	return &chunk, nil
}

// SearchCandidates returns chunks of the owner's processed, non-deleted
// contents whose text or content name matches any of the given terms.
// Matching is case-insensitive substring matching; relevance scoring is the
// retrieval engine's job.
func (r *ChunkRepo) SearchCandidates(ctx context.Context, userID string, terms []string, limit int) ([]ChunkHit, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	var conditions []string
	args := []any{userID}
	for _, term := range terms {
		conditions = append(conditions, `(ch.text LIKE ? ESCAPE '\' OR c.name LIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(term) + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT ch.id, ch.content_id, ch.chunk_index, ch.total_chunks, ch.start_char, ch.end_char,
		        ch.text, ch.point_id, c.name, c.key_concepts, c.difficulty_level, c.updated_at
		 FROM chunks ch
		 JOIN contents c ON c.id = ch.content_id
		 WHERE c.user_id = ? AND c.is_deleted = 0 AND c.processed = 1 AND (%s)
		 ORDER BY c.updated_at DESC, ch.chunk_index
		 LIMIT ?`,
		strings.Join(conditions, " OR "),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var hits []ChunkHit
	for rows.Next() {
		var hit ChunkHit
		var conceptsJSON sql.NullString
		var difficulty sql.NullString
		var updatedAtStr string
		err := rows.Scan(&hit.Chunk.ID, &hit.Chunk.ContentID, &hit.Chunk.ChunkIndex,
			&hit.Chunk.TotalChunks, &hit.Chunk.StartChar, &hit.Chunk.EndChar,
			&hit.Chunk.Text, &hit.Chunk.PointID,
			&hit.ContentName, &conceptsJSON, &difficulty, &updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk hit: %w", err)
		}
		if conceptsJSON.Valid && conceptsJSON.String != "" {
			if err := json.Unmarshal([]byte(conceptsJSON.String), &hit.KeyConcepts); err != nil {
				return nil, fmt.Errorf("failed to decode key concepts: %w", err)
			}
		}
		hit.DifficultyLevel = difficulty.String
		if hit.ContentUpdatedAt, err = decodeTime(updatedAtStr); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return hits, nil
}

// escapeLike escapes LIKE wildcards in a user-supplied term.
func escapeLike(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, "%", `\%`)
	return strings.ReplaceAll(term, "_", `\_`)
}
