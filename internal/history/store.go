// Package history provides the durable SQLite log of submitted messages and
// their terminal status. Rows are written ahead at enqueue time so a crash
// never silently loses a message that was already spoken; after a message
// reaches a terminal state its row is immutable.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/speakuplabs/speakupd/internal/config"
	"github.com/speakuplabs/speakupd/internal/message"
	_ "modernc.org/sqlite"
)

// PersistenceError wraps a failed history write. Writes are retried once
// before this surfaces; losing history silently is worse than a slight delay.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrFinalized reports an attempt to rewrite a row that already reached a
// terminal status. Terminal rows are immutable.
var ErrFinalized = errors.New("message already finalized")

// Record is the persisted projection of a message.
type Record struct {
	ID          int64                `json:"id"`
	Project     string               `json:"project"`
	Text        string               `json:"text"`
	Tone        message.Tone         `json:"tone"`
	Speed       float64              `json:"speed"`
	Announce    message.AnnounceMode `json:"announce"`
	Interrupt   bool                 `json:"interrupt"`
	Truncated   bool                 `json:"truncated,omitempty"`
	Status      message.Status       `json:"status"`
	SubmittedAt time.Time            `json:"submitted_at"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	FinishedAt  *time.Time           `json:"finished_at,omitempty"`
	DurationMS  float64              `json:"duration_ms,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// Store wraps the SQLite-backed message log.
type Store struct {
	db    *sql.DB
	cfg   config.HistoryConfig
	log   *slog.Logger
	clock func() time.Time
}

const writeRetryDelay = 50 * time.Millisecond

// Open initializes the history store, recovering rows a crashed process left
// in a non-terminal state and applying retention.
func Open(ctx context.Context, cfg config.HistoryConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log.With(slog.String("component", "history")), clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if n, err := s.RecoverInterrupted(ctx); err != nil {
		s.log.Warn("recovery of interrupted rows failed", slog.String("error", err.Error()))
	} else if n > 0 {
		s.log.Info("recovered interrupted messages from previous run", slog.Int64("count", n))
	}

	if err := s.Prune(ctx); err != nil {
		s.log.Warn("history prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project TEXT NOT NULL,
    text TEXT NOT NULL,
    spoken_text TEXT NOT NULL,
    announce TEXT NOT NULL,
    tone TEXT NOT NULL,
    speed REAL NOT NULL,
    interrupt INTEGER NOT NULL DEFAULT 0,
    truncated INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'queued',
    submitted_at TEXT NOT NULL,
    started_at TEXT,
    finished_at TEXT,
    duration_ms REAL,
    error TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_submitted ON messages(submitted_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert writes the write-ahead row for a freshly validated message and
// returns its assigned id. Ids come from AUTOINCREMENT so they are monotonic
// and never reused.
func (s *Store) Insert(ctx context.Context, m message.Message) (int64, error) {
	var id int64
	err := s.withRetry("insert", func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO messages(project, text, spoken_text, announce, tone, speed, interrupt, truncated, status, submitted_at)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.Project, m.Text, m.SpokenText, string(m.Announce), string(m.Tone), m.Speed,
			boolInt(m.Interrupt), boolInt(m.Truncated), string(message.StatusQueued),
			formatTime(m.SubmittedAt))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// MarkPlaying records the playback start.
func (s *Store) MarkPlaying(ctx context.Context, id int64, startedAt time.Time) error {
	return s.withRetry("mark playing", func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE messages SET status = ?, started_at = ? WHERE id = ?`,
			string(message.StatusPlaying), formatTime(startedAt), id)
		return err
	})
}

// MarkTerminal finalizes a message row. cause is stored only for failures.
// The status guard on the UPDATE enforces immutability in the database
// itself: a row that is already terminal is never rewritten, whatever the
// caller believes.
func (s *Store) MarkTerminal(ctx context.Context, id int64, status message.Status, finishedAt time.Time, durationMS float64, cause string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	return s.withRetry("mark terminal", func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE messages SET status = ?, finished_at = ?, duration_ms = ?, error = ?
			 WHERE id = ? AND status IN (?, ?)`,
			string(status), formatTime(finishedAt), durationMS, cause, id,
			string(message.StatusQueued), string(message.StatusPlaying))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrFinalized
		}
		return nil
	})
}

// Recent returns the most recent limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project, text, announce, tone, speed, interrupt, truncated, status,
		        submitted_at, started_at, finished_at, duration_ms, error
		 FROM messages ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r                    Record
			interrupt, truncated int
			submitted            string
			started, finished    sql.NullString
			duration             sql.NullFloat64
			cause                sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Project, &r.Text, &r.Announce, &r.Tone, &r.Speed,
			&interrupt, &truncated, &r.Status, &submitted, &started, &finished, &duration, &cause); err != nil {
			return nil, err
		}
		r.Interrupt = interrupt != 0
		r.Truncated = truncated != 0
		r.SubmittedAt = parseTime(submitted)
		if started.Valid {
			t := parseTime(started.String)
			r.StartedAt = &t
		}
		if finished.Valid {
			t := parseTime(finished.String)
			r.FinishedAt = &t
		}
		if duration.Valid {
			r.DurationMS = duration.Float64
		}
		if cause.Valid {
			r.Error = cause.String
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// RecoverInterrupted marks rows stuck in queued/playing from a crashed
// process as skipped, so history never shows a phantom in-flight message.
func (s *Store) RecoverInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ?, finished_at = ? WHERE status IN (?, ?)`,
		string(message.StatusSkipped), formatTime(s.clock()),
		string(message.StatusQueued), string(message.StatusPlaying))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Prune applies configured retention; 0 days keeps everything.
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionDays <= 0 {
		return nil
	}
	cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE submitted_at < ?`, formatTime(cutoff))
	return err
}

// withRetry runs a write, retrying once before giving up with a
// PersistenceError. ErrFinalized is not retried; a second attempt cannot
// un-finalize a row.
func (s *Store) withRetry(op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrFinalized) {
		return &PersistenceError{Op: op, Err: err}
	}
	s.log.Warn("history write failed, retrying once",
		slog.String("op", op), slog.String("error", err.Error()))
	time.Sleep(writeRetryDelay)
	if err = fn(); err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
