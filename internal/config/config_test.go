package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setEnv sets an environment variable, ignoring errors (for test setup)
func setEnv(key, value string) {
	_ = os.Setenv(key, value)
}

// unsetEnv unsets an environment variable, ignoring errors (for test cleanup)
func unsetEnv(key string) {
	_ = os.Unsetenv(key)
}

func TestLoad(t *testing.T) {
	// Save original env vars
	originalEnv := make(map[string]string)
	envVars := []string{
		"QDRANT_VECTOR_SIZE", "LLM_BASE_URL", "LLM_API_KEY", "LLM_MODEL",
		"ANALYSIS_MODEL", "KEYWORD_MODEL", "EMBEDDING_BASE_URL",
		"EMBEDDING_MODEL_NAME", "LLM_TIMEOUT", "DB_PATH", "QDRANT_URL",
		"QDRANT_COLLECTION", "API_PORT", "WORKER_COUNT",
		"ANALYSIS_MAX_ATTEMPTS", "ANALYSIS_BACKOFF_BASE",
		"SEARCH_KEYWORD_WEIGHT", "SEARCH_VECTOR_WEIGHT", "SEARCH_TOP_K",
		"CHAT_CONTEXT_BUDGET", "CHAT_HISTORY_LIMIT", "LOG_LEVEL", "LOG_FORMAT",
	}
	for _, key := range envVars {
		originalEnv[key] = os.Getenv(key)
		unsetEnv(key)
	}
	defer func() {
		for key, value := range originalEnv {
			if value != "" {
				setEnv(key, value)
			} else {
				unsetEnv(key)
			}
		}
	}()

	tests := []struct {
		name        string
		setupEnv    func(*testing.T)
		wantErr     bool
		checkConfig func(*Config) bool
	}{
		{
			name: "valid config with defaults",
			setupEnv: func(t *testing.T) {
				setEnv("QDRANT_VECTOR_SIZE", "768")
				setEnv("DB_PATH", filepath.Join(t.TempDir(), "data", "test.db"))
			},
			wantErr: false,
			checkConfig: func(cfg *Config) bool {
				return cfg.QdrantVectorSize == 768 &&
					cfg.WorkerCount == 4 &&
					cfg.AnalysisMaxAttempts == 3 &&
					cfg.AnalysisBackoffBase == time.Second &&
					cfg.SearchKeywordWeight == 0.3 &&
					cfg.SearchVectorWeight == 0.7 &&
					cfg.SearchTopK == 5 &&
					cfg.ChatContextBudget == 4000 &&
					cfg.ChatHistoryLimit == 10 &&
					cfg.LogLevel == slog.LevelInfo &&
					cfg.LogFormat == "text"
			},
		},
		{
			name: "model fallbacks follow chat model",
			setupEnv: func(t *testing.T) {
				setEnv("QDRANT_VECTOR_SIZE", "768")
				setEnv("DB_PATH", filepath.Join(t.TempDir(), "data", "test.db"))
				setEnv("LLM_MODEL", "gpt-4o-mini")
			},
			wantErr: false,
			checkConfig: func(cfg *Config) bool {
				return cfg.ChatModel == "gpt-4o-mini" &&
					cfg.AnalysisModel == "gpt-4o-mini" &&
					cfg.KeywordModel == "gpt-4o-mini"
			},
		},
		{
			name: "dedicated analysis model overrides fallback",
			setupEnv: func(t *testing.T) {
				setEnv("QDRANT_VECTOR_SIZE", "768")
				setEnv("DB_PATH", filepath.Join(t.TempDir(), "data", "test.db"))
				setEnv("LLM_MODEL", "gpt-4o")
				setEnv("ANALYSIS_MODEL", "gpt-4o-mini")
			},
			wantErr: false,
			checkConfig: func(cfg *Config) bool {
				return cfg.ChatModel == "gpt-4o" && cfg.AnalysisModel == "gpt-4o-mini"
			},
		},
		{
			name: "missing QDRANT_VECTOR_SIZE",
			setupEnv: func(t *testing.T) {
				setEnv("DB_PATH", filepath.Join(t.TempDir(), "data", "test.db"))
			},
			wantErr: true,
		},
		{
			name: "invalid QDRANT_VECTOR_SIZE",
			setupEnv: func(t *testing.T) {
				setEnv("QDRANT_VECTOR_SIZE", "not-a-number")
				setEnv("DB_PATH", filepath.Join(t.TempDir(), "data", "test.db"))
			},
			wantErr: true,
		},
		{
			name: "zero QDRANT_VECTOR_SIZE",
			setupEnv: func(t *testing.T) {
				setEnv("QDRANT_VECTOR_SIZE", "0")
				setEnv("DB_PATH", filepath.Join(t.TempDir(), "data", "test.db"))
			},
			wantErr: true,
		},
		{
			name: "worker count below minimum",
			setupEnv: func(t *testing.T) {
				setEnv("QDRANT_VECTOR_SIZE", "768")
				setEnv("DB_PATH", filepath.Join(t.TempDir(), "data", "test.db"))
				setEnv("WORKER_COUNT", "0")
			},
			wantErr: true,
		},
		{
			name: "top k out of range",
			setupEnv: func(t *testing.T) {
				setEnv("QDRANT_VECTOR_SIZE", "768")
				setEnv("DB_PATH", filepath.Join(t.TempDir(), "data", "test.db"))
				setEnv("SEARCH_TOP_K", "50")
			},
			wantErr: true,
		},
		{
			name: "negative search weight",
			setupEnv: func(t *testing.T) {
				setEnv("QDRANT_VECTOR_SIZE", "768")
				setEnv("DB_PATH", filepath.Join(t.TempDir(), "data", "test.db"))
				setEnv("SEARCH_KEYWORD_WEIGHT", "-0.5")
			},
			wantErr: true,
		},
		{
			name: "both search weights zero",
			setupEnv: func(t *testing.T) {
				setEnv("QDRANT_VECTOR_SIZE", "768")
				setEnv("DB_PATH", filepath.Join(t.TempDir(), "data", "test.db"))
				setEnv("SEARCH_KEYWORD_WEIGHT", "0")
				setEnv("SEARCH_VECTOR_WEIGHT", "0")
			},
			wantErr: true,
		},
		{
			name: "invalid backoff duration",
			setupEnv: func(t *testing.T) {
				setEnv("QDRANT_VECTOR_SIZE", "768")
				setEnv("DB_PATH", filepath.Join(t.TempDir(), "data", "test.db"))
				setEnv("ANALYSIS_BACKOFF_BASE", "soon")
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			setupEnv: func(t *testing.T) {
				setEnv("QDRANT_VECTOR_SIZE", "768")
				setEnv("DB_PATH", filepath.Join(t.TempDir(), "data", "test.db"))
				setEnv("LOG_LEVEL", "verbose")
			},
			wantErr: true,
		},
		{
			name: "invalid log format",
			setupEnv: func(t *testing.T) {
				setEnv("QDRANT_VECTOR_SIZE", "768")
				setEnv("DB_PATH", filepath.Join(t.TempDir(), "data", "test.db"))
				setEnv("LOG_FORMAT", "xml")
			},
			wantErr: true,
		},
		{
			name: "explicit overrides",
			setupEnv: func(t *testing.T) {
				setEnv("QDRANT_VECTOR_SIZE", "1536")
				setEnv("DB_PATH", filepath.Join(t.TempDir(), "data", "test.db"))
				setEnv("WORKER_COUNT", "8")
				setEnv("ANALYSIS_BACKOFF_BASE", "5s")
				setEnv("LLM_TIMEOUT", "2m")
				setEnv("LOG_LEVEL", "debug")
				setEnv("LOG_FORMAT", "json")
			},
			wantErr: false,
			checkConfig: func(cfg *Config) bool {
				return cfg.QdrantVectorSize == 1536 &&
					cfg.WorkerCount == 8 &&
					cfg.AnalysisBackoffBase == 5*time.Second &&
					cfg.LLMTimeout == 2*time.Minute &&
					cfg.LogLevel == slog.LevelDebug &&
					cfg.LogFormat == "json"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range envVars {
				unsetEnv(key)
			}
			tt.setupEnv(t)

			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Load() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if tt.checkConfig != nil && !tt.checkConfig(cfg) {
				t.Errorf("Load() config check failed: %+v", cfg)
			}
		})
	}
}

func TestLoad_CreatesDataDirectory(t *testing.T) {
	origSize := os.Getenv("QDRANT_VECTOR_SIZE")
	origPath := os.Getenv("DB_PATH")
	defer func() {
		setEnv("QDRANT_VECTOR_SIZE", origSize)
		setEnv("DB_PATH", origPath)
	}()

	dataDir := filepath.Join(t.TempDir(), "nested", "data")
	setEnv("QDRANT_VECTOR_SIZE", "768")
	setEnv("DB_PATH", filepath.Join(dataDir, "app.db"))

	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	info, err := os.Stat(dataDir)
	if err != nil {
		t.Fatalf("data directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("data path is not a directory")
	}
}
