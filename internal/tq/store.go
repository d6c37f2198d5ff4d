package tq

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, no cgo

	"github.com/pulsefm/pulsefm/internal/xerrors"
)

// Store persists Tasks in a local sqlite database. One row per
// deterministic task id: a duplicate Enqueue is a silent no-op, which is
// how the queue tolerates duplicate-delivered TQ callbacks (spec.md §5).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, xerrors.Unavailable("tq_open_failed", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Unavailable("tq_ping_failed", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, xerrors.Unavailable("tq_migrate_failed", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		run_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending'
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(status, run_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Enqueue inserts t if its id is not already present. ok is false when the
// task was already enqueued (duplicate suppression).
func (s *Store) Enqueue(ctx context.Context, t Task) (ok bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, kind, payload, run_at, created_at, attempts, status)
		VALUES (?, ?, ?, ?, ?, 0, 'pending')
		ON CONFLICT(id) DO NOTHING
	`, t.ID, string(t.Kind), string(t.Payload), t.RunAt.UnixMilli(), t.CreatedAt.UnixMilli())
	if err != nil {
		return false, xerrors.Unavailable("tq_enqueue_failed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, xerrors.Unavailable("tq_enqueue_failed", err)
	}
	return n > 0, nil
}

// Due returns pending tasks whose run_at has passed, oldest first, capped
// at limit.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, payload, run_at, created_at, attempts, status
		FROM tasks
		WHERE status = 'pending' AND run_at <= ?
		ORDER BY run_at ASC
		LIMIT ?
	`, now.UnixMilli(), limit)
	if err != nil {
		return nil, xerrors.Unavailable("tq_query_due_failed", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Task
	for rows.Next() {
		var t Task
		var kind, payload, status string
		var runAtMs, createdAtMs int64
		if err := rows.Scan(&t.ID, &kind, &payload, &runAtMs, &createdAtMs, &t.Attempts, &status); err != nil {
			return nil, xerrors.Unavailable("tq_scan_failed", err)
		}
		t.Kind = Kind(kind)
		t.Payload = []byte(payload)
		t.RunAt = time.UnixMilli(runAtMs).UTC()
		t.CreatedAt = time.UnixMilli(createdAtMs).UTC()
		t.Status = Status(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkDone marks a task as successfully dispatched.
func (s *Store) MarkDone(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = 'done' WHERE id = ?`, id)
	if err != nil {
		return xerrors.Unavailable("tq_mark_done_failed", err)
	}
	return nil
}

// MarkRetry increments attempts and reschedules run_at for a later retry.
func (s *Store) MarkRetry(ctx context.Context, id string, nextRunAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET attempts = attempts + 1, run_at = ? WHERE id = ?
	`, nextRunAt.UnixMilli(), id)
	if err != nil {
		return xerrors.Unavailable("tq_mark_retry_failed", err)
	}
	return nil
}

// MarkFailed marks a task as permanently failed (retries exhausted).
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = 'failed' WHERE id = ?`, id)
	if err != nil {
		return xerrors.Unavailable("tq_mark_failed_failed", err)
	}
	return nil
}
