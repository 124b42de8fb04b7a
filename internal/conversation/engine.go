// Package conversation implements the chat engine: session-scoped message
// exchange where the user message is stored synchronously and the assistant
// reply is generated asynchronously with retrieved study material.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"studypal-ai/internal/contextutil"
	"studypal-ai/internal/llm"
	"studypal-ai/internal/retrieval"
	"studypal-ai/internal/storage"
)

// MaxMessageLength is the longest user message accepted, in characters.
const MaxMessageLength = 10000

var (
	// ErrEmptyMessage is returned for blank user messages.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrMessageTooLong is returned when a message exceeds MaxMessageLength.
	ErrMessageTooLong = fmt.Errorf("message exceeds %d characters", MaxMessageLength)
)

const systemPrompt = "You are a study assistant. Answer using the study material " +
	"provided in the context when it is relevant; when it is not, say you could not " +
	"find the answer in the student's material and answer from general knowledge, " +
	"noting that you did so. Be clear and encouraging."

const fallbackReply = "I ran into a problem while generating a response. " +
	"Please try sending your message again."

// KeywordExtractor extracts search terms from a chat query.
type KeywordExtractor interface {
	ExtractSearchKeywords(ctx context.Context, query string) ([]string, error)
}

// Chatter generates assistant replies.
type Chatter interface {
	ChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams) (llm.ChatResult, error)
}

// Engine drives conversations. PostMessage returns once the user message is
// stored; the assistant reply lands in the session when generation finishes
// and is picked up by the client's next poll.
type Engine struct {
	sessions      storage.SessionStore
	messages      storage.MessageStore
	searcher      retrieval.Searcher
	extractor     KeywordExtractor
	chat          Chatter
	logger        *slog.Logger
	contextBudget int
	historyLimit  int

	// wg tracks in-flight reply generation for clean shutdown.
	wg sync.WaitGroup
}

// NewEngine creates a conversation engine.
func NewEngine(
	sessions storage.SessionStore,
	messages storage.MessageStore,
	searcher retrieval.Searcher,
	extractor KeywordExtractor,
	chat Chatter,
	logger *slog.Logger,
	contextBudget int,
	historyLimit int,
) *Engine {
	return &Engine{
		sessions:      sessions,
		messages:      messages,
		searcher:      searcher,
		extractor:     extractor,
		chat:          chat,
		logger:        logger,
		contextBudget: contextBudget,
		historyLimit:  historyLimit,
	}
}

// PostMessage validates and stores the user's message, then starts reply
// generation in the background. The returned record is the stored user
// message; the assistant reply appears in the session later.
func (e *Engine) PostMessage(ctx context.Context, userID, sessionID, text string) (*storage.MessageRecord, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if len(text) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	session, err := e.sessions.GetByID(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	userMessage := &storage.MessageRecord{
		SessionID: session.ID,
		Role:      storage.RoleUser,
		Content:   text,
	}
	if err := e.messages.Insert(ctx, userMessage); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	if err := e.sessions.Touch(ctx, session.ID); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to touch session", "session_id", session.ID, "error", err)
	}

	// Generation outlives the request; detach from its cancellation but
	// keep request-scoped values like the logger.
	bgCtx := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.generateReply(bgCtx, userID, session.ID, text)
	}()

	return userMessage, nil
}

// Wait blocks until all in-flight reply generation finishes. Used during
// shutdown and in tests.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// generateReply runs retrieval and generation for one turn and stores the
// assistant message. Failures never lose the turn: a fallback reply with
// the error in its trace is stored instead.
func (e *Engine) generateReply(ctx context.Context, userID, sessionID, userText string) {
	logger := contextutil.LoggerFromContext(ctx).With("session_id", sessionID)
	ctx = contextutil.WithLogger(ctx, logger)

	trace := DebugTrace{RelevantPassages: []TracePassage{}}
	trace.QueryAnalysis.OriginalQuery = userText

	keywords, err := e.extractor.ExtractSearchKeywords(ctx, userText)
	if err != nil {
		// Retrieval falls back to tokenizing the raw query.
		logger.WarnContext(ctx, "keyword extraction failed", "error", err)
		trace.QueryAnalysis.KeywordWarning = fmt.Sprintf("keyword extraction unavailable: %v", err)
	}
	trace.QueryAnalysis.Keywords = keywords

	var passages []retrieval.Passage
	result, err := e.searcher.Search(ctx, userID, userText, keywords)
	if err != nil {
		logger.ErrorContext(ctx, "search failed", "error", err)
		trace.QueryAnalysis.SearchError = err.Error()
	} else {
		passages = result.Passages
		trace.QueryAnalysis.EmbeddingModel = result.EmbeddingModel
		trace.QueryAnalysis.KeywordMillis = result.KeywordMillis
		trace.QueryAnalysis.VectorMillis = result.VectorMillis
		trace.QueryAnalysis.TotalMillis = result.TotalMillis
		trace.QueryAnalysis.TotalIndexed = result.TotalIndexed
		trace.QueryAnalysis.SearchError = result.SearchError
	}

	contextText, usedCount := e.buildContext(passages)
	for i, passage := range passages {
		trace.RelevantPassages = append(trace.RelevantPassages, TracePassage{
			ContentName:  passage.ContentName,
			ContentID:    passage.ContentID,
			ChunkID:      passage.ChunkID,
			ChunkIndex:   passage.ChunkIndex,
			TotalChunks:  passage.TotalChunks,
			Text:         passage.Text,
			Difficulty:   passage.DifficultyLevel,
			KeyConcepts:  passage.KeyConcepts,
			KeywordScore: passage.KeywordScore,
			VectorScore:  passage.VectorScore,
			Score:        passage.Score,
			UsedInPrompt: i < usedCount,
		})
	}

	history, err := e.messages.ListRecent(ctx, sessionID, e.historyLimit)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load history", "error", err)
		history = []storage.MessageRecord{{Role: storage.RoleUser, Content: userText}}
	}

	chatMessages := make([]llm.Message, 0, len(history)+2)
	chatMessages = append(chatMessages, llm.Message{Role: "system", Content: systemPrompt})
	if contextText != "" {
		chatMessages = append(chatMessages, llm.Message{
			Role:    "system",
			Content: "Study material context:\n\n" + contextText,
		})
	}
	for _, msg := range history {
		chatMessages = append(chatMessages, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	genStart := time.Now()
	reply, err := e.chat.ChatWithMessages(ctx, chatMessages, llm.ChatParams{Temperature: 0.7})
	info := &ProcessingInfo{
		GenerationMillis: time.Since(genStart).Milliseconds(),
		Model:            reply.Model,
		TokensUsed:       reply.TokensUsed,
		ContextChars:     len(contextText),
		PassagesUsed:     usedCount,
	}
	content := reply.Content
	if err != nil {
		logger.ErrorContext(ctx, "reply generation failed", "error", err)
		info.GenerationError = err.Error()
		content = fallbackReply
	}
	trace.ProcessingInfo = info

	traceJSON, err := json.Marshal(trace)
	if err != nil {
		logger.ErrorContext(ctx, "failed to encode debug trace", "error", err)
		traceJSON = nil
	}

	assistantMessage := &storage.MessageRecord{
		SessionID:  sessionID,
		Role:       storage.RoleAssistant,
		Content:    content,
		DebugTrace: traceJSON,
	}
	if err := e.messages.Insert(ctx, assistantMessage); err != nil {
		logger.ErrorContext(ctx, "failed to store assistant message", "error", err)
		return
	}
	if err := e.sessions.Touch(ctx, sessionID); err != nil {
		logger.WarnContext(ctx, "failed to touch session", "error", err)
	}

	logger.InfoContext(ctx, "reply stored",
		"passages_used", usedCount,
		"generation_ms", info.GenerationMillis,
		"fallback", info.GenerationError != "",
	)
}

// buildContext formats the highest-scored passages into the prompt context,
// stopping at the character budget. Passages arrive sorted by score, so the
// least relevant are the ones dropped.
func (e *Engine) buildContext(passages []retrieval.Passage) (string, int) {
	var builder strings.Builder
	used := 0
	for _, passage := range passages {
		block := fmt.Sprintf("[%s, part %d]\n%s\n\n", passage.ContentName, passage.ChunkIndex+1, passage.Text)
		if builder.Len()+len(block) > e.contextBudget {
			break
		}
		builder.WriteString(block)
		used++
	}
	return strings.TrimSuffix(builder.String(), "\n"), used
}
