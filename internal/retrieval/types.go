package retrieval

// Passage is one retrieved chunk with its score breakdown. KeywordScore and
// VectorScore are normalized to [0, 1] within their path; Score is the
// weighted combination used for ranking.
type Passage struct {
	ChunkID         string   `json:"chunk_id"`
	ContentID       string   `json:"content_id"`
	ContentName     string   `json:"content_name"`
	ChunkIndex      int      `json:"chunk_index"`
	TotalChunks     int      `json:"total_chunks"`
	Text            string   `json:"text"`
	KeyConcepts     []string `json:"key_concepts,omitempty"`
	DifficultyLevel string   `json:"difficulty_level,omitempty"`
	KeywordScore    float32  `json:"keyword_score"`
	VectorScore     float32  `json:"vector_score"`
	Score           float32  `json:"score"`
}

// Result is the outcome of a hybrid search, including the timing and
// degradation detail surfaced in debug traces.
type Result struct {
	Passages []Passage

	// TotalIndexed is the number of processed contents searchable for
	// the user.
	TotalIndexed int

	KeywordMillis int64
	VectorMillis  int64
	TotalMillis   int64

	// EmbeddingModel is the model that embedded the query, recorded in
	// debug traces.
	EmbeddingModel string

	// SearchError describes a degraded search: one path failed and results
	// come from the other alone. Empty when both paths succeeded.
	SearchError string
}
