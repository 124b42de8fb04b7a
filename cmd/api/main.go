package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studypal-ai/internal/analysis"
	"studypal-ai/internal/chunker"
	"studypal-ai/internal/config"
	"studypal-ai/internal/conversation"
	"studypal-ai/internal/http"
	"studypal-ai/internal/llm"
	"studypal-ai/internal/queue"
	"studypal-ai/internal/retrieval"
	"studypal-ai/internal/storage"
	"studypal-ai/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	// Create repository instances
	contentRepo := storage.NewContentRepo(db)
	chunkRepo := storage.NewChunkRepo(db)
	jobRepo := storage.NewJobRepo(db)
	sessionRepo := storage.NewSessionRepo(db)
	messageRepo := storage.NewMessageRepo(db)

	ctx := context.Background()

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}

	// Ensure collection exists with correct vector size
	if err := vectorStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.QdrantVectorSize); err != nil {
		log.Fatalf("Failed to ensure Qdrant collection: %v", err)
	}
	slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.QdrantVectorSize)

	// Validate embedding client vector size (fail-fast)
	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize, cfg.LLMTimeout)
	testEmbeddings, err := embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	if len(testEmbeddings) == 0 || len(testEmbeddings[0]) != cfg.QdrantVectorSize {
		log.Fatalf("Embedding vector size mismatch: expected %d, got %d", cfg.QdrantVectorSize, len(testEmbeddings[0]))
	}
	slog.Info("Embedding client validated", "vector_size", cfg.QdrantVectorSize)

	// LLM clients
	chatClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.ChatModel, cfg.LLMTimeout)
	extractor := llm.NewExtractor(chatClient, cfg.AnalysisModel, cfg.KeywordModel)

	// Analysis pipeline and worker pool
	jobQueue := queue.New(jobRepo)
	analyzer := analysis.NewAnalyzer(
		contentRepo,
		chunkRepo,
		chunker.NewSplitter(),
		embedder,
		extractor,
		vectorStore,
		cfg.QdrantCollection,
	)
	workers, err := analysis.NewWorkerPool(
		jobQueue,
		jobRepo,
		analyzer,
		logger,
		cfg.WorkerCount,
		cfg.AnalysisMaxAttempts,
		cfg.AnalysisBackoffBase,
	)
	if err != nil {
		log.Fatalf("Failed to create worker pool: %v", err)
	}
	workers.Start(ctx)
	slog.Info("Analysis workers started", "workers", cfg.WorkerCount)

	// Retrieval and conversation engines
	searchEngine := retrieval.NewEngine(
		chunkRepo,
		contentRepo,
		embedder,
		vectorStore,
		cfg.QdrantCollection,
		cfg.SearchKeywordWeight,
		cfg.SearchVectorWeight,
		cfg.SearchTopK,
	)
	chatEngine := conversation.NewEngine(
		sessionRepo,
		messageRepo,
		searchEngine,
		extractor,
		chatClient,
		logger,
		cfg.ChatContextBudget,
		cfg.ChatHistoryLimit,
	)
	slog.Info("Conversation engine initialized")

	// Create router with dependencies
	deps := &http.Deps{
		DB:          db,
		Contents:    contentRepo,
		Sessions:    sessionRepo,
		Messages:    messageRepo,
		Jobs:        jobRepo,
		Queue:       jobQueue,
		Engine:      chatEngine,
		VectorStore: vectorStore,
		Collection:  cfg.QdrantCollection,
	}
	router := http.NewRouter(deps)

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "chat_model", cfg.ChatModel)

	server := &nethttp.Server{Addr: addr, Handler: router}
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	stop, cancelStop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancelStop()

	select {
	case err := <-serverErr:
		log.Fatalf("API server failed: %v", err)
	case <-stop.Done():
	}

	// Drain requests, then stop the workers. Jobs still running after the
	// pool stops are requeued on the next start.
	slog.Info("Shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		slog.Error("Server shutdown failed", "error", err)
	}
	workers.Stop()
	chatEngine.Wait()
	slog.Info("Shutdown complete")
}
