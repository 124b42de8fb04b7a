// Package analysis runs the asynchronous content analysis pipeline:
// chunking, embedding, vector indexing, and LLM metadata extraction.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"studypal-ai/internal/chunker"
	"studypal-ai/internal/contextutil"
	"studypal-ai/internal/llm"
	"studypal-ai/internal/storage"
	"studypal-ai/internal/vectorstore"
)

// Analyzer executes the full analysis of one content item.
type Analyzer struct {
	contents   storage.ContentStore
	chunks     storage.ChunkStore
	splitter   *chunker.Splitter
	embedder   *llm.EmbeddingsClient
	extractor  *llm.Extractor
	vectors    vectorstore.VectorStore
	collection string
}

// NewAnalyzer creates a new Analyzer.
func NewAnalyzer(
	contents storage.ContentStore,
	chunks storage.ChunkStore,
	splitter *chunker.Splitter,
	embedder *llm.EmbeddingsClient,
	extractor *llm.Extractor,
	vectors vectorstore.VectorStore,
	collection string,
) *Analyzer {
	return &Analyzer{
		contents:   contents,
		chunks:     chunks,
		splitter:   splitter,
		embedder:   embedder,
		extractor:  extractor,
		vectors:    vectors,
		collection: collection,
	}
}

// Analyze chunks, embeds, indexes, and extracts metadata for the content.
// On success the content is marked processed and its previous chunks and
// vector points are replaced. The pipeline is idempotent: rerunning it
// overwrites the prior result.
func (a *Analyzer) Analyze(ctx context.Context, contentID string) error {
	logger := contextutil.LoggerFromContext(ctx)

	content, err := a.contents.Get(ctx, contentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Content was deleted after the job was enqueued.
			return fmt.Errorf("content no longer exists: %w", err)
		}
		return fmt.Errorf("failed to load content: %w", err)
	}

	chunks := a.splitter.Split(content.Content)
	logger.InfoContext(ctx, "content chunked", "content_id", contentID, "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := a.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}

	// Previous point IDs, removed from the index after the new set lands.
	oldPointIDs, err := a.chunks.ListIDsByContent(ctx, contentID)
	if err != nil {
		return fmt.Errorf("failed to list existing chunks: %w", err)
	}

	records := make([]storage.ChunkRecord, len(chunks))
	points := make([]vectorstore.Point, len(chunks))
	for i, chunk := range chunks {
		id := uuid.New().String()
		records[i] = storage.ChunkRecord{
			ID:          id,
			ContentID:   contentID,
			ChunkIndex:  chunk.Index,
			TotalChunks: len(chunks),
			StartChar:   chunk.Start,
			EndChar:     chunk.End,
			Text:        chunk.Text,
			PointID:     id,
		}
		points[i] = vectorstore.Point{
			ID:  id,
			Vec: embeddings[i],
			Meta: map[string]any{
				"content_id":   contentID,
				"user_id":      content.UserID,
				"chunk_id":     id,
				"chunk_index":  chunk.Index,
				"content_name": content.Name,
			},
		}
	}

	// Extraction runs before the upsert: points indexed ahead of a failed
	// extraction would be invisible to ListIDsByContent and never cleaned up.
	concepts, difficulty, minutes, err := a.extractMetadata(ctx, content.Content)
	if err != nil {
		return err
	}

	if err := a.vectors.Upsert(ctx, a.collection, points); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}

	if err := a.chunks.ReplaceForContent(ctx, contentID, records); err != nil {
		a.deleteOrphanedPoints(ctx, records)
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	// From here the chunk rows reference the new points, so a rerun finds
	// them through ListIDsByContent and replaces them.
	if err := a.contents.SetAnalysis(ctx, contentID, concepts, difficulty, minutes); err != nil {
		return fmt.Errorf("failed to store analysis results: %w", err)
	}

	if len(oldPointIDs) > 0 {
		if err := a.vectors.Delete(ctx, a.collection, oldPointIDs); err != nil {
			// The new points are already live; stale points only waste space.
			logger.WarnContext(ctx, "failed to delete stale points", "content_id", contentID, "count", len(oldPointIDs), "error", err)
		}
	}

	logger.InfoContext(ctx, "analysis complete",
		"content_id", contentID,
		"chunks", len(chunks),
		"concepts", len(concepts),
		"difficulty", difficulty,
		"study_minutes", minutes,
	)
	return nil
}

// deleteOrphanedPoints removes points that were upserted before their chunk
// rows could be committed. Best effort: the IDs exist nowhere in sqlite, so
// a failure here leaves points no later run can find.
func (a *Analyzer) deleteOrphanedPoints(ctx context.Context, records []storage.ChunkRecord) {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.PointID
	}
	if err := a.vectors.Delete(ctx, a.collection, ids); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to delete orphaned points", "count", len(ids), "error", err)
	}
}

// extractMetadata runs concept extraction and difficulty classification
// concurrently, then estimates study time from both.
func (a *Analyzer) extractMetadata(ctx context.Context, text string) ([]string, string, int, error) {
	var concepts []string
	var difficulty string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		concepts, err = a.extractor.ExtractKeyConcepts(gctx, text)
		return err
	})
	g.Go(func() error {
		var err error
		difficulty, err = a.extractor.ClassifyDifficulty(gctx, text)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, "", 0, err
	}

	minutes, err := a.extractor.EstimateStudyTime(ctx, text, concepts, difficulty)
	if err != nil {
		return nil, "", 0, err
	}
	return concepts, difficulty, minutes, nil
}

// IsTransient reports whether an analysis failure is worth retrying.
// Rate limits, server errors, and network failures are transient; malformed
// model output and missing rows are not.
func IsTransient(err error) bool {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
