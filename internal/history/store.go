package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"whspr/internal/domain"

	_ "modernc.org/sqlite"
)

// DefaultMaxRuns bounds how many rows are kept after pruning.
const DefaultMaxRuns = 500

// Store persists one row per finished run in SQLite.
type Store struct {
	db      *sql.DB
	log     *slog.Logger
	clock   func() time.Time
	maxRuns int
}

// Open creates the database file and schema if needed.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log, clock: time.Now, maxRuns: DefaultMaxRuns}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    stage TEXT NOT NULL,
    audio_seconds INTEGER NOT NULL DEFAULT 0,
    model TEXT,
    final_text TEXT,
    error_code TEXT,
    error_message TEXT,
    backup_path TEXT,
    saved_audio_path TEXT,
    cost_usd REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts or replaces the row for entry.RunID and prunes old rows.
func (s *Store) Record(ctx context.Context, entry domain.HistoryEntry) error {
	if entry.StartedAt.IsZero() {
		entry.StartedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, started_at, finished_at, stage, audio_seconds, model, final_text,
		                  error_code, error_message, backup_path, saved_audio_path, cost_usd)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   finished_at=excluded.finished_at, stage=excluded.stage, final_text=excluded.final_text,
		   error_code=excluded.error_code, error_message=excluded.error_message,
		   backup_path=excluded.backup_path, saved_audio_path=excluded.saved_audio_path,
		   cost_usd=excluded.cost_usd`,
		entry.RunID,
		entry.StartedAt.UTC().Format(time.RFC3339Nano),
		s.clock().UTC().Format(time.RFC3339Nano),
		string(entry.Stage),
		entry.AudioSeconds,
		entry.Model,
		entry.FinalText,
		string(entry.ErrorCode),
		entry.ErrorMessage,
		entry.BackupPath,
		entry.SavedAudioPath,
		entry.CostUSD,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err := s.prune(ctx); err != nil {
		s.log.Warn("history prune failed", slog.String("error", err.Error()))
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, stage, audio_seconds, model, final_text, error_code,
		        error_message, backup_path, saved_audio_path, cost_usd
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var (
			e                    domain.HistoryEntry
			started, stage, code string
			model, text, msg     sql.NullString
			backup, savedAudio   sql.NullString
		)
		if err := rows.Scan(&e.RunID, &started, &stage, &e.AudioSeconds, &model, &text, &code,
			&msg, &backup, &savedAudio, &e.CostUSD); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, started); err == nil {
			e.StartedAt = ts
		}
		e.Stage = domain.Stage(stage)
		e.ErrorCode = domain.ErrorCode(code)
		e.Model = model.String
		e.FinalText = text.String
		e.ErrorMessage = msg.String
		e.BackupPath = backup.String
		e.SavedAudioPath = savedAudio.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) prune(ctx context.Context) error {
	if s.maxRuns <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id IN (
		SELECT run_id FROM runs ORDER BY started_at DESC LIMIT -1 OFFSET ?
	)`, s.maxRuns)
	return err
}
