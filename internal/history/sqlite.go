//go:build sqlite
// +build sqlite

package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "thermopool/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const (
	pruneEvery = 500
	pruneKeep  = 10000
)

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount atomic.Uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Append(ctx context.Context, r Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_history(task_id, kind, priority, worker_id, queued_at, started_at, queue_delay_ms, duration_ms, outcome, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.TaskID, r.Kind, r.Priority, r.WorkerID,
		r.QueuedAt.Format(time.RFC3339Nano), nullTime(r.Started),
		r.QueueDelay.Milliseconds(), r.Duration.Milliseconds(),
		r.Outcome, nullStr(r.Error),
	)
	if err != nil {
		return err
	}

	if s.opCount.Add(1)%pruneEvery == 0 {
		s.prune(ctx)
	}
	return nil
}

func (s *sqliteStore) prune(ctx context.Context) {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM task_history WHERE id NOT IN
		 (SELECT id FROM task_history ORDER BY id DESC LIMIT ?)`, pruneKeep)
	if err != nil && !s.log.IsZero() {
		s.log.Debug("history prune failed", logx.Err(err))
	}
}

func (s *sqliteStore) Recent(ctx context.Context, n int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if n <= 0 {
		n = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, kind, priority, worker_id, queued_at, started_at, queue_delay_ms, duration_ms, outcome, err
		 FROM task_history ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var queuedAt string
		var startedAt, errStr sql.NullString
		var delayMS, durMS int64
		if err := rows.Scan(&r.TaskID, &r.Kind, &r.Priority, &r.WorkerID, &queuedAt, &startedAt, &delayMS, &durMS, &r.Outcome, &errStr); err != nil {
			return nil, err
		}
		r.QueuedAt, _ = time.Parse(time.RFC3339Nano, queuedAt)
		if startedAt.Valid {
			r.Started, _ = time.Parse(time.RFC3339Nano, startedAt.String)
		}
		r.QueueDelay = time.Duration(delayMS) * time.Millisecond
		r.Duration = time.Duration(durMS) * time.Millisecond
		r.Error = errStr.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
