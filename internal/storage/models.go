package storage

import "time"

// Difficulty levels assigned by content analysis.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
	DifficultyExpert       = "expert"
)

// Analysis job states. Queued jobs may be claimed by a worker; succeeded
// and failed are terminal.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentRecord represents a piece of submitted educational content.
// Analysis fields (KeyConcepts, DifficultyLevel, EstimatedStudyTime) are
// nil until a worker completes analysis and sets Processed.
type ContentRecord struct {
	ID                 string // UUID
	UserID             string // Opaque owner identifier
	Name               string
	Content            string
	Processed          bool
	KeyConcepts        []string // At most 5, deduplicated
	DifficultyLevel    *string
	EstimatedStudyTime *int // Minutes
	IsDeleted          bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ChunkRecord represents a span of a content's text, embedded and indexed
// for retrieval. Chunks are immutable; re-analysis replaces the whole set.
type ChunkRecord struct {
	ID          string // UUID
	ContentID   string
	ChunkIndex  int // Position within content (starts at 0)
	TotalChunks int
	StartChar   int // Rune offsets into the original text
	EndChar     int
	Text        string
	PointID     string // Vector index point key (same UUID as ID)
}

// ChunkHit is a chunk joined with the owning content's metadata, as
// returned by keyword candidate search.
type ChunkHit struct {
	Chunk            ChunkRecord
	ContentName      string
	KeyConcepts      []string
	DifficultyLevel  string
	ContentUpdatedAt time.Time
}

// JobRecord represents one unit of asynchronous analysis work.
type JobRecord struct {
	ID        string // UUID
	ContentID string
	Status    string
	Attempts  int
	LastError string
	RunAfter  time.Time // Earliest time the job may be claimed (backoff)
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionRecord represents a chat session.
type SessionRecord struct {
	ID           string // UUID
	UserID       string
	Title        string
	MessageCount int // Populated by List, zero elsewhere
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MessageRecord represents a single chat message. Messages are append-only
// and immutable once written. DebugTrace holds the serialized retrieval
// trace for assistant messages, nil otherwise.
type MessageRecord struct {
	ID         string // UUID
	SessionID  string
	Role       string
	Content    string
	DebugTrace []byte // JSON, nil when absent
	CreatedAt  time.Time
}
