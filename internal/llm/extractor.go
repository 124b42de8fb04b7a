package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxKeyConcepts caps the number of key concepts per content.
	MaxKeyConcepts = 5
	// MinStudyTimeMinutes and MaxStudyTimeMinutes bound study time estimates.
	MinStudyTimeMinutes = 1
	MaxStudyTimeMinutes = 600
	// maxSearchKeywords caps the keywords extracted from a chat query.
	maxSearchKeywords = 10
)

// DifficultyLevels are the valid outputs of difficulty classification.
var DifficultyLevels = []string{"beginner", "intermediate", "advanced", "expert"}

const extractorSystemPrompt = "You are an educational content analyst. " +
	"Respond with JSON only, no prose and no code fences."

const keyConceptsPrompt = `Identify the most important concepts a student must understand in the following educational content.
Return JSON of the form {"concepts": ["...", "..."]} with at most %d concepts, ordered from most to least central.

Content:
%s`

const difficultyPrompt = `Classify the difficulty of the following educational content for a typical student.
Return JSON of the form {"difficulty_level": "..."} where the level is one of: beginner, intermediate, advanced, expert.

Content:
%s`

const studyTimePrompt = `Estimate how many minutes a student needs to study the following educational content thoroughly.
Return JSON of the form {"estimated_minutes": <integer>}.

Approximate token count: %d
Content length: %d characters
Number of key concepts: %d
Key concepts: %s
Difficulty level: %s

Content preview:
%s`

const searchKeywordsPrompt = `Extract the most important keywords and search terms from this query for educational content search.
Include main topics and concepts, technical terms, subject areas, and related synonyms that might appear in educational content.

Query: %s

Return only the keywords as a comma-separated list, no explanation needed.`

// Extractor runs the structured LLM calls used by content analysis and
// chat query processing.
type Extractor struct {
	client        *Client
	analysisModel string
	keywordModel  string
}

// NewExtractor creates a new Extractor. Model names may be empty to use the
// client's default model.
func NewExtractor(client *Client, analysisModel, keywordModel string) *Extractor {
	return &Extractor{
		client:        client,
		analysisModel: analysisModel,
		keywordModel:  keywordModel,
	}
}

// ExtractKeyConcepts returns the content's key concepts, deduplicated
// case-insensitively and capped at MaxKeyConcepts, ordered as returned by
// the model (most relevant first).
func (e *Extractor) ExtractKeyConcepts(ctx context.Context, content string) ([]string, error) {
	prompt := fmt.Sprintf(keyConceptsPrompt, MaxKeyConcepts, content)
	raw, err := e.structuredCall(ctx, e.analysisModel, prompt, 150)
	if err != nil {
		return nil, fmt.Errorf("key concept extraction failed: %w", err)
	}

	var parsed struct {
		Concepts []string `json:"concepts"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse key concepts: %w", err)
	}

	seen := make(map[string]bool, len(parsed.Concepts))
	concepts := make([]string, 0, MaxKeyConcepts)
	for _, concept := range parsed.Concepts {
		concept = strings.TrimSpace(concept)
		if concept == "" {
			continue
		}
		key := strings.ToLower(concept)
		if seen[key] {
			continue
		}
		seen[key] = true
		concepts = append(concepts, concept)
		if len(concepts) == MaxKeyConcepts {
			break
		}
	}
	return concepts, nil
}

// ClassifyDifficulty classifies the content into one of DifficultyLevels.
func (e *Extractor) ClassifyDifficulty(ctx context.Context, content string) (string, error) {
	prompt := fmt.Sprintf(difficultyPrompt, content)
	raw, err := e.structuredCall(ctx, e.analysisModel, prompt, 50)
	if err != nil {
		return "", fmt.Errorf("difficulty classification failed: %w", err)
	}

	var parsed struct {
		DifficultyLevel string `json:"difficulty_level"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse difficulty: %w", err)
	}

	level := strings.ToLower(strings.TrimSpace(parsed.DifficultyLevel))
	for _, valid := range DifficultyLevels {
		if level == valid {
			return level, nil
		}
	}
	return "", fmt.Errorf("model returned unknown difficulty level %q", parsed.DifficultyLevel)
}

// EstimateStudyTime estimates study time in minutes, clamped to
// [MinStudyTimeMinutes, MaxStudyTimeMinutes]. The prompt is fed derived
// features of the content rather than the full text.
func (e *Extractor) EstimateStudyTime(ctx context.Context, content string, keyConcepts []string, difficulty string) (int, error) {
	conceptList := "None"
	if len(keyConcepts) > 0 {
		conceptList = strings.Join(keyConcepts, ", ")
	}
	preview := content
	if len(preview) > 300 {
		// Back off to a rune boundary so the cut never splits a
		// multi-byte character.
		cut := 300
		for cut > 0 && !utf8.RuneStart(preview[cut]) {
			cut--
		}
		preview = preview[:cut] + "..."
	}

	prompt := fmt.Sprintf(studyTimePrompt,
		EstimateTokenCount(content), len(content), len(keyConcepts), conceptList, difficulty, preview)
	raw, err := e.structuredCall(ctx, e.analysisModel, prompt, 100)
	if err != nil {
		return 0, fmt.Errorf("study time estimation failed: %w", err)
	}

	var parsed struct {
		EstimatedMinutes int `json:"estimated_minutes"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse study time: %w", err)
	}

	minutes := parsed.EstimatedMinutes
	if minutes < MinStudyTimeMinutes {
		minutes = MinStudyTimeMinutes
	}
	if minutes > MaxStudyTimeMinutes {
		minutes = MaxStudyTimeMinutes
	}
	return minutes, nil
}

// ExtractSearchKeywords extracts search keywords from a chat query.
// Returns at most maxSearchKeywords keywords; a failed call is not fatal to
// retrieval, so callers may treat an error as "no keywords".
func (e *Extractor) ExtractSearchKeywords(ctx context.Context, query string) ([]string, error) {
	prompt := fmt.Sprintf(searchKeywordsPrompt, query)
	result, err := e.client.ChatWithMessages(ctx,
		[]Message{{Role: "user", Content: prompt}},
		ChatParams{Model: e.keywordModel, MaxTokens: 100},
	)
	if err != nil {
		return nil, fmt.Errorf("keyword extraction failed: %w", err)
	}

	var keywords []string
	for _, part := range strings.Split(result.Content, ",") {
		keyword := strings.TrimSpace(part)
		if keyword == "" {
			continue
		}
		keywords = append(keywords, keyword)
		if len(keywords) == maxSearchKeywords {
			break
		}
	}
	return keywords, nil
}

// structuredCall runs a JSON-producing completion and returns the raw JSON.
func (e *Extractor) structuredCall(ctx context.Context, model, prompt string, maxTokens int) ([]byte, error) {
	result, err := e.client.ChatWithMessages(ctx, []Message{
		{Role: "system", Content: extractorSystemPrompt},
		{Role: "user", Content: prompt},
	}, ChatParams{Model: model, MaxTokens: maxTokens})
	if err != nil {
		return nil, err
	}
	return []byte(stripCodeFences(result.Content)), nil
}

// stripCodeFences removes a surrounding markdown code fence if present.
// Models occasionally wrap JSON output despite instructions not to.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var wordPattern = regexp.MustCompile(`\b\w+\b`)

// EstimateTokenCount approximates token count from word count
// (roughly 1.33 tokens per word).
func EstimateTokenCount(text string) int {
	words := len(wordPattern.FindAllString(text, -1))
	return int(float64(words) * 1.33)
}
