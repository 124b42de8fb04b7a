package retrieval

import (
	"strings"
	"unicode"
)

const lexicalLengthScale = float32(10.0)

var lexicalStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "was": {}, "were": {}, "with": {}, "what": {}, "how": {},
	"why": {}, "when": {}, "where": {}, "does": {}, "do": {},
}

// lexicalScore computes a term-frequency relevance score for a chunk
// relative to a set of query terms, scaled to stay length-independent.
// Scores are only comparable within one search; fusion normalizes them.
func lexicalScore(terms []string, chunkText, contentName string) float32 {
	queryTokens := filterStopwords(tokenizeAll(terms))
	if len(queryTokens) == 0 {
		return 0
	}

	chunkTokens := tokenize(chunkText)
	if len(chunkTokens) == 0 {
		return 0
	}

	chunkFreq := make(map[string]int, len(chunkTokens))
	for _, token := range chunkTokens {
		chunkFreq[token]++
	}

	var rawMatches int
	for _, token := range queryTokens {
		rawMatches += chunkFreq[token]
	}

	score := (float32(rawMatches) / (1 + float32(len(chunkTokens)))) * lexicalLengthScale

	// A title match signals topical relevance beyond the chunk text.
	if contentName != "" {
		nameSet := make(map[string]struct{})
		for _, token := range tokenize(contentName) {
			nameSet[token] = struct{}{}
		}
		for _, token := range queryTokens {
			if _, ok := nameSet[token]; ok {
				score += 0.1
			}
		}
	}

	if score < 0 {
		return 0
	}
	return score
}

// tokenizeAll tokenizes multi-word terms into a flat token list.
func tokenizeAll(terms []string) []string {
	var tokens []string
	for _, term := range terms {
		tokens = append(tokens, tokenize(term)...)
	}
	return tokens
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	tokens := strings.Fields(builder.String())
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

func filterStopwords(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := lexicalStopwords[token]; isStop {
			continue
		}
		result = append(result, token)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
