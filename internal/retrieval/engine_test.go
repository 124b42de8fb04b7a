package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"studypal-ai/internal/llm"
	"studypal-ai/internal/storage"
	"studypal-ai/internal/storage/mocks"
	"studypal-ai/internal/vectorstore"
	vecmocks "studypal-ai/internal/vectorstore/mocks"
)

const testVectorSize = 3

func keywordCandidate(chunkID string, score float32, updatedAt time.Time) candidate {
	return candidate{
		passage:          Passage{ChunkID: chunkID, Text: chunkID},
		contentUpdatedAt: updatedAt,
		keywordRaw:       score,
		fromKeyword:      true,
	}
}

func vectorCandidate(chunkID string, score float32, updatedAt time.Time) candidate {
	return candidate{
		passage:          Passage{ChunkID: chunkID, Text: chunkID},
		contentUpdatedAt: updatedAt,
		vectorRaw:        score,
		fromVector:       true,
	}
}

func TestFuse_MergesOverlappingChunks(t *testing.T) {
	now := time.Now()
	keyword := []candidate{
		keywordCandidate("shared", 4.0, now),
		keywordCandidate("kw-only", 2.0, now),
	}
	vector := []candidate{
		vectorCandidate("shared", 0.9, now),
		vectorCandidate("vec-only", 0.5, now),
	}

	passages := fuse(keyword, vector, 0.3, 0.7, 10)
	if len(passages) != 3 {
		t.Fatalf("fuse() returned %d passages, want 3", len(passages))
	}

	byID := make(map[string]Passage, len(passages))
	for _, p := range passages {
		byID[p.ChunkID] = p
	}

	shared := byID["shared"]
	if shared.KeywordScore != 1 || shared.VectorScore != 1 {
		t.Errorf("shared normalized scores = %v/%v, want 1/1", shared.KeywordScore, shared.VectorScore)
	}
	if got := shared.Score; got < 0.99 || got > 1.01 {
		t.Errorf("shared fused score = %v, want 1", got)
	}
	// Best on both paths ranks first.
	if passages[0].ChunkID != "shared" {
		t.Errorf("top passage = %s, want shared", passages[0].ChunkID)
	}

	kwOnly := byID["kw-only"]
	if kwOnly.KeywordScore != 0 {
		t.Errorf("kw-only keyword score = %v, want 0 (path minimum)", kwOnly.KeywordScore)
	}
	if kwOnly.VectorScore != 0 {
		t.Errorf("kw-only vector score = %v, want 0 (not on vector path)", kwOnly.VectorScore)
	}
}

func TestFuse_SingleScorePathNormalizesToOne(t *testing.T) {
	now := time.Now()
	passages := fuse([]candidate{keywordCandidate("only", 0.05, now)}, nil, 0.3, 0.7, 10)
	if len(passages) != 1 {
		t.Fatalf("fuse() returned %d passages, want 1", len(passages))
	}
	if passages[0].KeywordScore != 1 {
		t.Errorf("single-hit keyword score = %v, want 1", passages[0].KeywordScore)
	}
	if got := passages[0].Score; got < 0.29 || got > 0.31 {
		t.Errorf("fused score = %v, want keyword weight 0.3", got)
	}
}

func TestFuse_TruncatesToTopK(t *testing.T) {
	now := time.Now()
	var keyword []candidate
	for i, score := range []float32{5, 4, 3, 2, 1} {
		keyword = append(keyword, keywordCandidate(string(rune('a'+i)), score, now))
	}

	passages := fuse(keyword, nil, 1, 0, 3)
	if len(passages) != 3 {
		t.Fatalf("fuse() returned %d passages, want 3", len(passages))
	}
	if passages[0].ChunkID != "a" || passages[2].ChunkID != "c" {
		t.Errorf("top 3 = %s %s %s, want a b c",
			passages[0].ChunkID, passages[1].ChunkID, passages[2].ChunkID)
	}
}

func TestFuse_TieBreaksOnRecency(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	keyword := []candidate{
		keywordCandidate("old", 2.0, older),
		keywordCandidate("new", 2.0, newer),
	}

	passages := fuse(keyword, nil, 1, 0, 10)
	if passages[0].ChunkID != "new" {
		t.Errorf("tie went to %s, want the more recently updated content", passages[0].ChunkID)
	}
}

func TestFuse_Empty(t *testing.T) {
	if passages := fuse(nil, nil, 0.3, 0.7, 5); len(passages) != 0 {
		t.Errorf("fuse() on empty input returned %d passages", len(passages))
	}
}

// newQueryEmbedServer embeds any input as a fixed vector.
func newQueryEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req llm.EmbeddingsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := llm.EmbeddingsResponse{Data: make([]llm.EmbeddingData, len(req.Input))}
		for i := range req.Input {
			resp.Data[i] = llm.EmbeddingData{Embedding: []float64{0.1, 0.2, 0.3}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func newFailingEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)
	return server
}

type engineMocks struct {
	chunks   *mocks.MockChunkStore
	contents *mocks.MockContentStore
	vectors  *vecmocks.MockVectorStore
}

func newTestEngine(t *testing.T, embedURL string) (*Engine, engineMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := engineMocks{
		chunks:   mocks.NewMockChunkStore(ctrl),
		contents: mocks.NewMockContentStore(ctrl),
		vectors:  vecmocks.NewMockVectorStore(ctrl),
	}
	embedder := llm.NewEmbeddingsClient(embedURL, "test-key", "test-embed", testVectorSize, 0)
	engine := NewEngine(m.chunks, m.contents, embedder, m.vectors, "test-collection", 0.3, 0.7, 5)
	return engine, m
}

func TestEngine_Search(t *testing.T) {
	engine, m := newTestEngine(t, newQueryEmbedServer(t).URL)
	now := time.Now().UTC()
	difficulty := "beginner"

	m.chunks.EXPECT().SearchCandidates(gomock.Any(), "user-1", []string{"osmosis"}, candidateLimit).
		Return([]storage.ChunkHit{
			{
				Chunk:            storage.ChunkRecord{ID: "chunk-1", ContentID: "content-1", TotalChunks: 2, Text: "Osmosis moves water."},
				ContentName:      "Cell Biology",
				KeyConcepts:      []string{"Osmosis"},
				DifficultyLevel:  "beginner",
				ContentUpdatedAt: now,
			},
		}, nil)

	m.vectors.EXPECT().Search(gomock.Any(), "test-collection", gomock.Any(), candidateLimit,
		map[string]any{"user_id": "user-1"}).
		Return([]vectorstore.SearchResult{{PointID: "chunk-2", Score: 0.92}}, nil)
	m.chunks.EXPECT().GetByID(gomock.Any(), "chunk-2").
		Return(&storage.ChunkRecord{ID: "chunk-2", ContentID: "content-1", ChunkIndex: 1, TotalChunks: 2, Text: "Water potential drives osmosis."}, nil)
	m.contents.EXPECT().Get(gomock.Any(), "content-1").
		Return(&storage.ContentRecord{
			ID: "content-1", UserID: "user-1", Name: "Cell Biology",
			KeyConcepts: []string{"Osmosis"}, DifficultyLevel: &difficulty, UpdatedAt: now,
		}, nil)
	m.contents.EXPECT().CountProcessed(gomock.Any(), "user-1").Return(3, nil)

	result, err := engine.Search(context.Background(), "user-1", "what is osmosis", []string{"osmosis"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(result.Passages) != 2 {
		t.Fatalf("Search() returned %d passages, want 2", len(result.Passages))
	}
	if result.TotalIndexed != 3 {
		t.Errorf("TotalIndexed = %d, want 3", result.TotalIndexed)
	}
	if result.SearchError != "" {
		t.Errorf("SearchError = %q, want empty", result.SearchError)
	}
	if result.EmbeddingModel != "test-embed" {
		t.Errorf("EmbeddingModel = %q, want test-embed", result.EmbeddingModel)
	}
	for _, p := range result.Passages {
		if p.ContentName != "Cell Biology" {
			t.Errorf("passage content name = %q", p.ContentName)
		}
		if p.Score <= 0 {
			t.Errorf("passage %s score = %v, want > 0", p.ChunkID, p.Score)
		}
		if p.TotalChunks != 2 {
			t.Errorf("passage %s chunk total = %d, want 2", p.ChunkID, p.TotalChunks)
		}
	}
}

func TestEngine_Search_VectorPathDegrades(t *testing.T) {
	engine, m := newTestEngine(t, newFailingEmbedServer(t).URL)
	now := time.Now().UTC()

	m.chunks.EXPECT().SearchCandidates(gomock.Any(), "user-1", gomock.Any(), candidateLimit).
		Return([]storage.ChunkHit{
			{
				Chunk:            storage.ChunkRecord{ID: "chunk-1", ContentID: "content-1", Text: "Osmosis moves water."},
				ContentName:      "Cell Biology",
				ContentUpdatedAt: now,
			},
		}, nil)
	m.contents.EXPECT().CountProcessed(gomock.Any(), "user-1").Return(1, nil)

	result, err := engine.Search(context.Background(), "user-1", "osmosis", nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Passages) != 1 {
		t.Fatalf("Search() returned %d passages, want 1 from keyword path", len(result.Passages))
	}
	if !strings.Contains(result.SearchError, "vector search unavailable") {
		t.Errorf("SearchError = %q, want vector search unavailable", result.SearchError)
	}
}

func TestEngine_Search_KeywordPathDegrades(t *testing.T) {
	engine, m := newTestEngine(t, newQueryEmbedServer(t).URL)
	now := time.Now().UTC()

	m.chunks.EXPECT().SearchCandidates(gomock.Any(), "user-1", gomock.Any(), candidateLimit).
		Return(nil, context.DeadlineExceeded)

	m.vectors.EXPECT().Search(gomock.Any(), "test-collection", gomock.Any(), candidateLimit, gomock.Any()).
		Return([]vectorstore.SearchResult{{PointID: "chunk-1", Score: 0.8}}, nil)
	m.chunks.EXPECT().GetByID(gomock.Any(), "chunk-1").
		Return(&storage.ChunkRecord{ID: "chunk-1", ContentID: "content-1", Text: "Osmosis."}, nil)
	m.contents.EXPECT().Get(gomock.Any(), "content-1").
		Return(&storage.ContentRecord{ID: "content-1", Name: "Notes", UpdatedAt: now}, nil)
	m.contents.EXPECT().CountProcessed(gomock.Any(), "user-1").Return(1, nil)

	result, err := engine.Search(context.Background(), "user-1", "osmosis", nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Passages) != 1 {
		t.Fatalf("Search() returned %d passages, want 1 from vector path", len(result.Passages))
	}
	if !strings.Contains(result.SearchError, "keyword search unavailable") {
		t.Errorf("SearchError = %q, want keyword search unavailable", result.SearchError)
	}
}

func TestEngine_Search_BothPathsFailReturnsEmptyResult(t *testing.T) {
	engine, m := newTestEngine(t, newFailingEmbedServer(t).URL)

	m.chunks.EXPECT().SearchCandidates(gomock.Any(), "user-1", gomock.Any(), candidateLimit).
		Return(nil, context.DeadlineExceeded)
	m.contents.EXPECT().CountProcessed(gomock.Any(), "user-1").Return(0, nil)

	result, err := engine.Search(context.Background(), "user-1", "osmosis", nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Passages) != 0 {
		t.Errorf("Search() returned %d passages, want 0", len(result.Passages))
	}
	if !strings.Contains(result.SearchError, "keyword search unavailable") ||
		!strings.Contains(result.SearchError, "vector search unavailable") {
		t.Errorf("SearchError = %q, want both path failures recorded", result.SearchError)
	}
}

func TestEngine_Search_UnresolvableVectorHitSkipped(t *testing.T) {
	engine, m := newTestEngine(t, newQueryEmbedServer(t).URL)

	m.chunks.EXPECT().SearchCandidates(gomock.Any(), "user-1", gomock.Any(), candidateLimit).
		Return(nil, nil)
	m.vectors.EXPECT().Search(gomock.Any(), "test-collection", gomock.Any(), candidateLimit, gomock.Any()).
		Return([]vectorstore.SearchResult{{PointID: "orphan", Score: 0.9}}, nil)
	m.chunks.EXPECT().GetByID(gomock.Any(), "orphan").Return(nil, storage.ErrNotFound)
	m.contents.EXPECT().CountProcessed(gomock.Any(), "user-1").Return(0, nil)

	result, err := engine.Search(context.Background(), "user-1", "osmosis", nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Passages) != 0 {
		t.Errorf("Search() returned %d passages, want 0", len(result.Passages))
	}
}
