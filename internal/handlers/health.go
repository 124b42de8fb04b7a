package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"studypal-ai/internal/contextutil"
	"studypal-ai/internal/queue"
	"studypal-ai/internal/vectorstore"
)

// HealthHandler reports the health of the service and its dependencies.
type HealthHandler struct {
	db                 *sql.DB
	vectorStore        *vectorstore.QdrantStore
	collection         string
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db *sql.DB, vectorStore *vectorstore.QdrantStore, collection string) *HealthHandler {
	return &HealthHandler{
		db:                 db,
		vectorStore:        vectorStore,
		collection:         collection,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Issues    []string          `json:"issues,omitempty"`
}

// ServeHTTP handles health check requests. Returns 200 when healthy,
// 503 otherwise.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	var issues []string

	if err := h.db.PingContext(checkCtx); err != nil {
		logger.WarnContext(ctx, "database health check failed", "error", err)
		checks["database"] = "error"
		issues = append(issues, "database_unavailable")
	} else {
		checks["database"] = "ok"
	}

	exists, err := h.vectorStore.CollectionExists(checkCtx, h.collection)
	switch {
	case err != nil:
		logger.WarnContext(ctx, "vector store health check failed", "error", err)
		checks["vector_store"] = "error"
		issues = append(issues, "vector_store_unavailable")
	case !exists:
		logger.WarnContext(ctx, "vector store collection missing", "collection", h.collection)
		checks["vector_store"] = "error"
		issues = append(issues, "collection_missing")
	default:
		checks["vector_store"] = "ok"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if len(issues) > 0 {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Issues:    issues,
	})
}

// QueueStatsHandler reports analysis job counts by status.
type QueueStatsHandler struct {
	queue *queue.Queue
}

// NewQueueStatsHandler creates a new QueueStatsHandler.
func NewQueueStatsHandler(q *queue.Queue) *QueueStatsHandler {
	return &QueueStatsHandler{queue: q}
}

// ServeHTTP handles queue stats requests.
func (h *QueueStatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	stats, err := h.queue.Stats(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to read queue stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read queue stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
