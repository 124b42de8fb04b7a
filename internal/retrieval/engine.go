// Package retrieval implements hybrid search over analyzed content:
// a keyword path against the relational store and a vector path against
// the vector index, fused by weighted normalized scores.
package retrieval

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_searcher.go -package=mocks studypal-ai/internal/retrieval Searcher

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"studypal-ai/internal/contextutil"
	"studypal-ai/internal/llm"
	"studypal-ai/internal/storage"
	"studypal-ai/internal/vectorstore"
)

// candidateLimit bounds how many chunks each path contributes before fusion.
const candidateLimit = 50

// Searcher is the retrieval interface consumed by the conversation engine.
type Searcher interface {
	// Search runs a hybrid search scoped to the user's content. keywords
	// are optional pre-extracted search terms; when empty the raw query
	// is tokenized instead.
	Search(ctx context.Context, userID, query string, keywords []string) (*Result, error)
}

// Engine implements Searcher over the chunk store and the vector index.
type Engine struct {
	chunks        storage.ChunkStore
	contents      storage.ContentStore
	embedder      *llm.EmbeddingsClient
	vectors       vectorstore.VectorStore
	collection    string
	keywordWeight float32
	vectorWeight  float32
	topK          int
}

// NewEngine creates a retrieval engine. Weights are normalized so they
// sum to one.
func NewEngine(
	chunks storage.ChunkStore,
	contents storage.ContentStore,
	embedder *llm.EmbeddingsClient,
	vectors vectorstore.VectorStore,
	collection string,
	keywordWeight, vectorWeight float64,
	topK int,
) *Engine {
	total := keywordWeight + vectorWeight
	return &Engine{
		chunks:        chunks,
		contents:      contents,
		embedder:      embedder,
		vectors:       vectors,
		collection:    collection,
		keywordWeight: float32(keywordWeight / total),
		vectorWeight:  float32(vectorWeight / total),
		topK:          topK,
	}
}

// candidate carries one chunk through scoring and fusion.
type candidate struct {
	passage          Passage
	contentUpdatedAt time.Time
	keywordRaw       float32
	vectorRaw        float32
	fromKeyword      bool
	fromVector       bool
}

// Search runs both paths concurrently and fuses their results. If a path
// fails the other's results are returned alone, with the failure recorded
// in the result for debug traces. Both paths failing yields an empty
// result, not an error, so a chat turn can proceed without context.
func (e *Engine) Search(ctx context.Context, userID, query string, keywords []string) (*Result, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	var (
		keywordHits   []candidate
		vectorHits    []candidate
		keywordErr    error
		vectorErr     error
		keywordMillis int64
		vectorMillis  int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pathStart := time.Now()
		keywordHits, keywordErr = e.keywordSearch(gctx, userID, query, keywords)
		keywordMillis = time.Since(pathStart).Milliseconds()
		return nil
	})
	g.Go(func() error {
		pathStart := time.Now()
		vectorHits, vectorErr = e.vectorSearch(gctx, userID, query)
		vectorMillis = time.Since(pathStart).Milliseconds()
		return nil
	})
	_ = g.Wait()

	result := &Result{
		KeywordMillis:  keywordMillis,
		VectorMillis:   vectorMillis,
		EmbeddingModel: e.embedder.Model,
	}
	switch {
	case keywordErr != nil && vectorErr != nil:
		logger.WarnContext(ctx, "both search paths failed, returning empty result",
			"keyword_error", keywordErr, "vector_error", vectorErr)
		result.SearchError = fmt.Sprintf("keyword search unavailable: %v; vector search unavailable: %v", keywordErr, vectorErr)
	case keywordErr != nil:
		logger.WarnContext(ctx, "keyword search failed, using vector results only", "error", keywordErr)
		result.SearchError = fmt.Sprintf("keyword search unavailable: %v", keywordErr)
	case vectorErr != nil:
		logger.WarnContext(ctx, "vector search failed, using keyword results only", "error", vectorErr)
		result.SearchError = fmt.Sprintf("vector search unavailable: %v", vectorErr)
	}

	result.Passages = fuse(keywordHits, vectorHits, e.keywordWeight, e.vectorWeight, e.topK)

	if total, err := e.contents.CountProcessed(ctx, userID); err == nil {
		result.TotalIndexed = total
	} else {
		logger.WarnContext(ctx, "failed to count indexed contents", "error", err)
	}

	result.TotalMillis = time.Since(start).Milliseconds()
	logger.InfoContext(ctx, "hybrid search completed",
		"keyword_hits", len(keywordHits),
		"vector_hits", len(vectorHits),
		"returned", len(result.Passages),
		"duration_ms", result.TotalMillis,
	)
	return result, nil
}

// keywordSearch scores LIKE-matched chunks by term frequency.
func (e *Engine) keywordSearch(ctx context.Context, userID, query string, keywords []string) ([]candidate, error) {
	terms := keywords
	if len(terms) == 0 {
		terms = filterStopwords(tokenize(query))
	}
	if len(terms) == 0 {
		return nil, nil
	}

	hits, err := e.chunks.SearchCandidates(ctx, userID, terms, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	candidates := make([]candidate, 0, len(hits))
	for _, hit := range hits {
		score := lexicalScore(terms, hit.Chunk.Text, hit.ContentName)
		if score == 0 {
			continue
		}
		candidates = append(candidates, candidate{
			passage: Passage{
				ChunkID:         hit.Chunk.ID,
				ContentID:       hit.Chunk.ContentID,
				ContentName:     hit.ContentName,
				ChunkIndex:      hit.Chunk.ChunkIndex,
				TotalChunks:     hit.Chunk.TotalChunks,
				Text:            hit.Chunk.Text,
				KeyConcepts:     hit.KeyConcepts,
				DifficultyLevel: hit.DifficultyLevel,
			},
			contentUpdatedAt: hit.ContentUpdatedAt,
			keywordRaw:       score,
			fromKeyword:      true,
		})
	}
	return candidates, nil
}

// vectorSearch embeds the query and searches the vector index, resolving
// each hit back to its stored chunk.
func (e *Engine) vectorSearch(ctx context.Context, userID, query string) ([]candidate, error) {
	logger := contextutil.LoggerFromContext(ctx)

	embeddings, err := e.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := e.vectors.Search(ctx, e.collection, embeddings[0], candidateLimit,
		map[string]any{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to search vector index: %w", err)
	}

	candidates := make([]candidate, 0, len(results))
	for _, result := range results {
		chunk, err := e.chunks.GetByID(ctx, result.PointID)
		if err != nil {
			// Point not yet reconciled with the chunk store; skip it.
			logger.WarnContext(ctx, "failed to resolve vector hit", "point_id", result.PointID, "error", err)
			continue
		}
		content, err := e.contents.Get(ctx, chunk.ContentID)
		if err != nil {
			logger.WarnContext(ctx, "failed to resolve hit content", "content_id", chunk.ContentID, "error", err)
			continue
		}

		passage := Passage{
			ChunkID:     chunk.ID,
			ContentID:   chunk.ContentID,
			ContentName: content.Name,
			ChunkIndex:  chunk.ChunkIndex,
			TotalChunks: chunk.TotalChunks,
			Text:        chunk.Text,
			KeyConcepts: content.KeyConcepts,
		}
		if content.DifficultyLevel != nil {
			passage.DifficultyLevel = *content.DifficultyLevel
		}
		candidates = append(candidates, candidate{
			passage:          passage,
			contentUpdatedAt: content.UpdatedAt,
			vectorRaw:        result.Score,
			fromVector:       true,
		})
	}
	return candidates, nil
}

// fuse merges both paths' candidates by chunk, normalizes each path's raw
// scores to [0, 1], combines them by weight, and returns the top k. Ties
// go to the more recently updated content.
func fuse(keywordHits, vectorHits []candidate, keywordWeight, vectorWeight float32, k int) []Passage {
	merged := make(map[string]*candidate, len(keywordHits)+len(vectorHits))
	order := make([]string, 0, len(keywordHits)+len(vectorHits))

	for i := range keywordHits {
		hit := keywordHits[i]
		merged[hit.passage.ChunkID] = &hit
		order = append(order, hit.passage.ChunkID)
	}
	for i := range vectorHits {
		hit := vectorHits[i]
		if existing, ok := merged[hit.passage.ChunkID]; ok {
			existing.vectorRaw = hit.vectorRaw
			existing.fromVector = true
			continue
		}
		merged[hit.passage.ChunkID] = &hit
		order = append(order, hit.passage.ChunkID)
	}

	normalizeKeyword := normalizer(merged, func(c *candidate) (float32, bool) { return c.keywordRaw, c.fromKeyword })
	normalizeVector := normalizer(merged, func(c *candidate) (float32, bool) { return c.vectorRaw, c.fromVector })

	candidates := make([]*candidate, 0, len(order))
	for _, id := range order {
		c := merged[id]
		if c.fromKeyword {
			c.passage.KeywordScore = normalizeKeyword(c.keywordRaw)
		}
		if c.fromVector {
			c.passage.VectorScore = normalizeVector(c.vectorRaw)
		}
		c.passage.Score = c.passage.KeywordScore*keywordWeight + c.passage.VectorScore*vectorWeight
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].passage.Score != candidates[j].passage.Score {
			return candidates[i].passage.Score > candidates[j].passage.Score
		}
		return candidates[i].contentUpdatedAt.After(candidates[j].contentUpdatedAt)
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	passages := make([]Passage, len(candidates))
	for i, c := range candidates {
		passages[i] = c.passage
	}
	return passages
}

// normalizer returns a min-max normalization function over one path's raw
// scores. A path with a single distinct score maps it to 1.
func normalizer(merged map[string]*candidate, extract func(*candidate) (float32, bool)) func(float32) float32 {
	var minScore, maxScore float32
	first := true
	for _, c := range merged {
		raw, ok := extract(c)
		if !ok {
			continue
		}
		if first {
			minScore, maxScore = raw, raw
			first = false
			continue
		}
		if raw < minScore {
			minScore = raw
		}
		if raw > maxScore {
			maxScore = raw
		}
	}

	return func(raw float32) float32 {
		if first {
			return 0
		}
		if maxScore == minScore {
			return 1
		}
		return (raw - minScore) / (maxScore - minScore)
	}
}
