package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	LLMBaseURL         string
	LLMAPIKey          string
	ChatModel          string
	AnalysisModel      string
	KeywordModel       string
	EmbeddingBaseURL   string
	EmbeddingModelName string
	LLMTimeout         time.Duration

	DBPath string

	QdrantURL        string
	QdrantCollection string
	QdrantVectorSize int

	WorkerCount         int
	AnalysisMaxAttempts int
	AnalysisBackoffBase time.Duration

	SearchKeywordWeight float64
	SearchVectorWeight  float64
	SearchTopK          int

	ChatContextBudget int
	ChatHistoryLimit  int

	APIPort   string
	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	// Check current directory first, then walk up to find project root (where go.mod is)
	_ = godotenv.Load() // Try current directory

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	chatModel := getEnv("LLM_MODEL", "gpt-4o")

	cfg := &Config{
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMAPIKey:          getEnv("LLM_API_KEY", "dummy-key"),
		ChatModel:          chatModel,
		AnalysisModel:      getEnv("ANALYSIS_MODEL", chatModel),
		KeywordModel:       getEnv("KEYWORD_MODEL", chatModel),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "text-embedding-3-small"),
		DBPath:             getEnv("DB_PATH", "./data/studypal-ai.db"),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "content_chunks"),
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	var parseErr error
	cfg.LLMTimeout, parseErr = getDuration("LLM_TIMEOUT", 60*time.Second)
	if parseErr != nil {
		return nil, parseErr
	}
	cfg.AnalysisBackoffBase, parseErr = getDuration("ANALYSIS_BACKOFF_BASE", time.Second)
	if parseErr != nil {
		return nil, parseErr
	}

	cfg.WorkerCount, parseErr = getInt("WORKER_COUNT", 4)
	if parseErr != nil {
		return nil, parseErr
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be at least 1")
	}

	cfg.AnalysisMaxAttempts, parseErr = getInt("ANALYSIS_MAX_ATTEMPTS", 3)
	if parseErr != nil {
		return nil, parseErr
	}
	if cfg.AnalysisMaxAttempts < 1 {
		return nil, fmt.Errorf("ANALYSIS_MAX_ATTEMPTS must be at least 1")
	}

	cfg.SearchTopK, parseErr = getInt("SEARCH_TOP_K", 5)
	if parseErr != nil {
		return nil, parseErr
	}
	if cfg.SearchTopK < 1 || cfg.SearchTopK > 20 {
		return nil, fmt.Errorf("SEARCH_TOP_K must be between 1 and 20")
	}

	cfg.ChatContextBudget, parseErr = getInt("CHAT_CONTEXT_BUDGET", 4000)
	if parseErr != nil {
		return nil, parseErr
	}
	cfg.ChatHistoryLimit, parseErr = getInt("CHAT_HISTORY_LIMIT", 10)
	if parseErr != nil {
		return nil, parseErr
	}

	cfg.SearchKeywordWeight, parseErr = getFloat("SEARCH_KEYWORD_WEIGHT", 0.3)
	if parseErr != nil {
		return nil, parseErr
	}
	cfg.SearchVectorWeight, parseErr = getFloat("SEARCH_VECTOR_WEIGHT", 0.7)
	if parseErr != nil {
		return nil, parseErr
	}
	if cfg.SearchKeywordWeight < 0 || cfg.SearchVectorWeight < 0 {
		return nil, fmt.Errorf("search weights must be non-negative")
	}
	if cfg.SearchKeywordWeight+cfg.SearchVectorWeight == 0 {
		return nil, fmt.Errorf("at least one search weight must be positive")
	}

	// Parse QDRANT_VECTOR_SIZE
	// This must match the output vector size of the embeddings model. If the
	// vector size changes, the Qdrant collection must be recreated.
	vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
	}
	cfg.QdrantVectorSize = vectorSize

	switch levelStr := getEnv("LOG_LEVEL", "info"); levelStr {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "info":
		cfg.LogLevel = slog.LevelInfo
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json")
	}

	// Create ./data directory if it doesn't exist (for the DB file)
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt gets an integer environment variable or returns a default value.
func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

// getFloat gets a float environment variable or returns a default value.
func getFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return f, nil
}

// getDuration gets a duration environment variable or returns a default value.
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return d, nil
}
