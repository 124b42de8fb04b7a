package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an insert violates a uniqueness constraint,
	// such as creating a second actionable job for the same content.
	ErrConflict = errors.New("record conflict")
)

// timeFormat is the canonical timestamp encoding: RFC3339 with fixed-width
// nanoseconds, so encoded values sort lexicographically. Message ordering
// relies on that. RFC3339Nano would trim trailing zeros and break it.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	// Connection options go in the DSN so every pooled connection gets
	// them; a PRAGMA issued with db.Exec only reaches one connection.
	// WAL and the busy timeout keep concurrent worker and request
	// writers from surfacing SQLITE_BUSY.
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS contents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			content TEXT NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0,
			key_concepts TEXT,
			difficulty_level TEXT,
			estimated_study_time INTEGER,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_contents_user ON contents(user_id, is_deleted, created_at);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			content_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			total_chunks INTEGER NOT NULL,
			start_char INTEGER NOT NULL,
			end_char INTEGER NOT NULL,
			text TEXT NOT NULL,
			point_id TEXT NOT NULL,
			FOREIGN KEY (content_id) REFERENCES contents(id) ON DELETE CASCADE,
			UNIQUE (content_id, chunk_index)
		);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			content_id TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			run_after TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (content_id) REFERENCES contents(id) ON DELETE CASCADE
		);`,
		// At most one actionable job per content. This is the per-entity
		// lease that keeps two workers from writing chunks for the same
		// content concurrently.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_active
			ON jobs(content_id) WHERE status IN ('queued', 'running');`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, run_after, created_at);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, updated_at);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			debug_trace TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// encodeTime encodes a timestamp for storage.
func encodeTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// decodeTime decodes a stored timestamp, tolerating the SQLite DATETIME
// format for rows written by older builds.
func decodeTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
