package resume

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shadowdrill/drill-core/internal/config"
	_ "modernc.org/sqlite"
)

// DefaultTargetCount is how many full runs a lesson takes to count as
// mastered when the caller does not say otherwise.
const DefaultTargetCount = 4

// Progress is the per-lesson record the playback boundary reads and writes:
// where the learner left off and how many full runs they have finished.
type Progress struct {
	ResumeID        string
	LastLineIndex   int
	CompletionCount int
	TargetCount     int
	UpdatedAt       time.Time
}

// Mastered reports whether the lesson has been completed target-count times.
func (p Progress) Mastered() bool {
	return p.TargetCount > 0 && p.CompletionCount >= p.TargetCount
}

// Store keeps lesson progress in SQLite. Ephemeral retention keeps nothing:
// every read comes back zeroed, every write is dropped.
type Store struct {
	db     *sql.DB
	cfg    config.ResumeConfig
	target int
	log    *slog.Logger
	clock  func() time.Time
}

// Open initializes the progress store according to config. targetCount is the
// mastery target stamped on new lesson records; zero or negative falls back
// to DefaultTargetCount.
func Open(ctx context.Context, cfg config.ResumeConfig, targetCount int, log *slog.Logger) (*Store, error) {
	if targetCount <= 0 {
		targetCount = DefaultTargetCount
	}
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, target: targetCount, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, target: targetCount, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("progress store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("progress store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS lessons (
    resume_id TEXT PRIMARY KEY,
    last_line_index INTEGER NOT NULL DEFAULT 0,
    completion_count INTEGER NOT NULL DEFAULT 0,
    target_count INTEGER NOT NULL DEFAULT 4,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lessons_updated ON lessons(updated_at);
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

// Get returns the stored progress for a lesson, or a zeroed record with the
// configured target count when none exists.
func (s *Store) Get(ctx context.Context, resumeID string) (Progress, error) {
	p := Progress{ResumeID: resumeID, TargetCount: s.target}
	if s.db == nil {
		return p, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT last_line_index, completion_count, target_count, updated_at
		 FROM lessons WHERE resume_id = ?`, resumeID)
	var updated string
	err := row.Scan(&p.LastLineIndex, &p.CompletionCount, &p.TargetCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		p.UpdatedAt = ts
	}
	return p, nil
}

// SetLastLineIndex records where a stopped session left off. Completion
// counters are preserved.
func (s *Store) SetLastLineIndex(ctx context.Context, resumeID string, lastLineIndex int) error {
	if s.db == nil {
		return nil
	}
	if lastLineIndex < 0 {
		lastLineIndex = 0
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lessons(resume_id, last_line_index, completion_count, target_count, updated_at)
		 VALUES(?, ?, 0, ?, ?)
		 ON CONFLICT(resume_id) DO UPDATE SET
		   last_line_index = excluded.last_line_index,
		   updated_at = excluded.updated_at`,
		resumeID, lastLineIndex, s.target, s.clock().UTC().Format(time.RFC3339Nano))
	return err
}

// MarkCompleted increments the completion count for a finished run and resets
// the resume position. Returns the updated progress.
func (s *Store) MarkCompleted(ctx context.Context, resumeID string) (Progress, error) {
	if s.db == nil {
		return Progress{ResumeID: resumeID, CompletionCount: 1, TargetCount: s.target}, nil
	}
	now := s.clock().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lessons(resume_id, last_line_index, completion_count, target_count, updated_at)
		 VALUES(?, 0, 1, ?, ?)
		 ON CONFLICT(resume_id) DO UPDATE SET
		   last_line_index = 0,
		   completion_count = lessons.completion_count + 1,
		   updated_at = excluded.updated_at`,
		resumeID, s.target, now)
	if err != nil {
		return Progress{}, err
	}
	return s.Get(ctx, resumeID)
}

// Prune applies configured retention: drop records older than the retention
// window and cap the table at max_lessons, keeping the most recent.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM lessons WHERE updated_at < ?`,
			cutoff.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	if s.cfg.MaxLessons > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM lessons WHERE resume_id IN (
			SELECT resume_id FROM lessons ORDER BY updated_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxLessons)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
