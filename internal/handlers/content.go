package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"studypal-ai/internal/contextutil"
	"studypal-ai/internal/queue"
	"studypal-ai/internal/storage"
)

// ContentHandler handles content upload and lifecycle requests.
type ContentHandler struct {
	contents storage.ContentStore
	jobs     storage.JobStore
	queue    *queue.Queue
}

// NewContentHandler creates a new ContentHandler.
func NewContentHandler(contents storage.ContentStore, jobs storage.JobStore, q *queue.Queue) *ContentHandler {
	return &ContentHandler{
		contents: contents,
		jobs:     jobs,
		queue:    q,
	}
}

// CreateContentRequest is the upload payload.
type CreateContentRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ContentResponse is one content item. Analysis fields are null until a
// worker finishes.
type ContentResponse struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Processed          bool      `json:"processed"`
	KeyConcepts        []string  `json:"key_concepts,omitempty"`
	DifficultyLevel    *string   `json:"difficulty_level"`
	EstimatedStudyTime *int      `json:"estimated_study_time"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CreateContentResponse acknowledges an upload with its analysis job.
type CreateContentResponse struct {
	Content ContentResponse `json:"content"`
	JobID   string          `json:"job_id"`
	Status  string          `json:"status"`
}

// ContentListResponse is a page of content items.
type ContentListResponse struct {
	Contents []ContentResponse `json:"contents"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// ContentStatusResponse reports analysis progress for polling clients.
// Analysis fields are set once the status is completed, so a poller does
// not need a second request for the results.
type ContentStatusResponse struct {
	ContentID          string   `json:"content_id"`
	Status             string   `json:"status"`
	Attempts           int      `json:"attempts,omitempty"`
	LastError          string   `json:"last_error,omitempty"`
	KeyConcepts        []string `json:"key_concepts,omitempty"`
	DifficultyLevel    *string  `json:"difficulty_level,omitempty"`
	EstimatedStudyTime *int     `json:"estimated_study_time,omitempty"`
}

func contentResponse(content *storage.ContentRecord) ContentResponse {
	return ContentResponse{
		ID:                 content.ID,
		Name:               content.Name,
		Processed:          content.Processed,
		KeyConcepts:        content.KeyConcepts,
		DifficultyLevel:    content.DifficultyLevel,
		EstimatedStudyTime: content.EstimatedStudyTime,
		CreatedAt:          content.CreatedAt,
		UpdatedAt:          content.UpdatedAt,
	}
}

// Create stores uploaded content and enqueues its analysis job.
func (h *ContentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req CreateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	name := sanitizeText(req.Name)
	text := sanitizeText(req.Content)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Name must not be empty")
		return
	}
	if len(name) > maxNameLength {
		writeError(w, http.StatusBadRequest, "Name is too long")
		return
	}
	if text == "" {
		writeError(w, http.StatusBadRequest, "Content must not be empty")
		return
	}

	content := &storage.ContentRecord{
		UserID:  userID,
		Name:    name,
		Content: text,
	}
	if err := h.contents.Insert(ctx, content); err != nil {
		logger.ErrorContext(ctx, "failed to insert content", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to store content")
		return
	}

	job, err := h.queue.Enqueue(ctx, content.ID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to enqueue analysis", "content_id", content.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to schedule analysis")
		return
	}

	writeJSON(w, http.StatusAccepted, CreateContentResponse{
		Content: contentResponse(content),
		JobID:   job.ID,
		Status:  job.Status,
	})
}

// List returns a page of the caller's contents, newest first.
func (h *ContentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	limit, offset := parsePagination(r)

	contents, err := h.contents.List(ctx, userID, limit, offset)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list contents", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list contents")
		return
	}

	resp := ContentListResponse{
		Contents: make([]ContentResponse, 0, len(contents)),
		Limit:    limit,
		Offset:   offset,
	}
	for i := range contents {
		resp.Contents = append(resp.Contents, contentResponse(&contents[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns one content item.
func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	content, err := h.contents.GetByID(ctx, chi.URLParam(r, "contentID"), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Content not found")
			return
		}
		logger.ErrorContext(ctx, "failed to get content", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get content")
		return
	}
	writeJSON(w, http.StatusOK, contentResponse(content))
}

// Delete soft-deletes a content item. Its chunks leave the search scope
// immediately because search filters on deletion.
func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.contents.SoftDelete(ctx, chi.URLParam(r, "contentID"), userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Content not found")
			return
		}
		logger.ErrorContext(ctx, "failed to delete content", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete content")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status reports analysis progress: processing, completed, or failed.
func (h *ContentHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	contentID := chi.URLParam(r, "contentID")
	content, err := h.contents.GetByID(ctx, contentID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Content not found")
			return
		}
		logger.ErrorContext(ctx, "failed to get content", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get content")
		return
	}

	resp := ContentStatusResponse{ContentID: content.ID}
	job, err := h.jobs.GetLatestByContent(ctx, contentID)
	switch {
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		logger.ErrorContext(ctx, "failed to get job", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get analysis status")
		return
	case err != nil:
		// No job recorded; the content alone decides.
		if content.Processed {
			resp.Status = "completed"
		} else {
			resp.Status = "processing"
		}
	default:
		resp.Attempts = job.Attempts
		switch job.Status {
		case storage.JobFailed:
			resp.Status = "failed"
			resp.LastError = job.LastError
		case storage.JobSucceeded:
			resp.Status = "completed"
		default:
			resp.Status = "processing"
		}
	}
	if resp.Status == "completed" {
		resp.KeyConcepts = content.KeyConcepts
		resp.DifficultyLevel = content.DifficultyLevel
		resp.EstimatedStudyTime = content.EstimatedStudyTime
	}
	writeJSON(w, http.StatusOK, resp)
}

// Reanalyze queues a fresh analysis run for already-stored content.
// Conflicts with an in-flight job are rejected.
func (h *ContentHandler) Reanalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	contentID := chi.URLParam(r, "contentID")
	if _, err := h.contents.GetByID(ctx, contentID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Content not found")
			return
		}
		logger.ErrorContext(ctx, "failed to get content", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get content")
		return
	}

	job, err := h.queue.Enqueue(ctx, contentID)
	if err != nil {
		if errors.Is(err, queue.ErrJobInFlight) {
			writeError(w, http.StatusConflict, "Analysis already in progress")
			return
		}
		logger.ErrorContext(ctx, "failed to enqueue analysis", "content_id", contentID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to schedule analysis")
		return
	}

	writeJSON(w, http.StatusAccepted, ContentStatusResponse{
		ContentID: contentID,
		Status:    "processing",
		Attempts:  job.Attempts,
	})
}
