package conversation

// DebugTrace records how an assistant reply was produced. It is stored with
// the message and surfaced to clients for score and timing inspection.
type DebugTrace struct {
	RelevantPassages []TracePassage  `json:"relevant_passages"`
	QueryAnalysis    QueryAnalysis   `json:"query_analysis"`
	ProcessingInfo   *ProcessingInfo `json:"processing_info,omitempty"`
}

// TracePassage is one retrieved passage with its score provenance and the
// analysis metadata of the content it came from.
type TracePassage struct {
	ContentName  string   `json:"content_name"`
	ContentID    string   `json:"content_id"`
	ChunkID      string   `json:"chunk_id"`
	ChunkIndex   int      `json:"chunk_index"`
	TotalChunks  int      `json:"chunk_total"`
	Text         string   `json:"text"`
	Difficulty   string   `json:"difficulty,omitempty"`
	KeyConcepts  []string `json:"key_concepts,omitempty"`
	KeywordScore float32  `json:"keyword_score"`
	VectorScore  float32  `json:"vector_score"`
	Score        float32  `json:"score"`
	UsedInPrompt bool     `json:"used_in_prompt"`
}

// QueryAnalysis records how the query was interpreted and searched.
type QueryAnalysis struct {
	OriginalQuery  string   `json:"original_query"`
	Keywords       []string `json:"keywords"`
	EmbeddingModel string   `json:"embedding_model,omitempty"`
	KeywordMillis  int64    `json:"keyword_search_ms"`
	VectorMillis   int64    `json:"vector_search_ms"`
	TotalMillis    int64    `json:"total_search_ms"`
	TotalIndexed   int      `json:"total_indexed"`
	KeywordWarning string   `json:"keyword_warning,omitempty"`
	SearchError    string   `json:"search_error,omitempty"`
}

// ProcessingInfo records how the reply itself was generated. Nil when
// generation never ran.
type ProcessingInfo struct {
	GenerationMillis int64  `json:"generation_ms"`
	Model            string `json:"model"`
	TokensUsed       int    `json:"tokens_used,omitempty"`
	ContextChars     int    `json:"context_chars"`
	PassagesUsed     int    `json:"passages_used"`
	GenerationError  string `json:"generation_error,omitempty"`
}
