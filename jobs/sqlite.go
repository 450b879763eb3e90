// Copyright 2026 The JazzPetri Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jobs

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jazzpetri/popsafe/clock"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationTable = "schema_migrations"

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db    *sql.DB
	clock clock.Clock
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// OpenSQLite opens the database at path and applies the embedded
// migrations. A nil clock uses the wall clock.
func OpenSQLite(path string, c clock.Clock) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if c == nil {
		c = clock.NewReal()
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer keeps sequence allocation inside Append serialized
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(db, migrations, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db, clock: c}, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create registers a new pending job.
func (s *SQLiteStore) Create(ctx context.Context) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	now := s.clock.Now().UTC().Truncate(time.Millisecond)
	job := Job{ID: uuid.NewString(), Status: StatusPending, Created: now, Updated: now}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		job.ID, string(job.Status), toMillis(now), toMillis(now))
	if err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// status reads the status of id inside tx.
func status(ctx context.Context, tx *sql.Tx, id string) (Status, error) {
	var st string
	err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read job %s: %w", id, err)
	}
	return Status(st), nil
}

// inTx runs fn in a transaction on a job that has not ended.
func (s *SQLiteStore) inTx(ctx context.Context, id string, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	st, err := status(ctx, tx, id)
	if err == nil && st.Terminal() {
		err = fmt.Errorf("job %s: %w", id, ErrFinished)
	}
	if err == nil {
		err = fn(tx)
	}
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Start marks a pending job running.
func (s *SQLiteStore) Start(ctx context.Context, id string) error {
	return s.inTx(ctx, id, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
			string(StatusRunning), toMillis(s.clock.Now()), id)
		if err != nil {
			return fmt.Errorf("start job: %w", err)
		}
		return nil
	})
}

// Append adds an update to a job that has not ended.
func (s *SQLiteStore) Append(ctx context.Context, id string, kind Kind, message string) (Update, error) {
	u := Update{Kind: kind, Message: message, Time: s.clock.Now().UTC().Truncate(time.Millisecond)}
	err := s.inTx(ctx, id, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM job_updates WHERE job_id = ?`, id).Scan(&u.Seq)
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO job_updates (job_id, seq, kind, message, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, u.Seq, string(kind), message, toMillis(u.Time)); err != nil {
			return fmt.Errorf("append update: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET updated_at = ? WHERE id = ?`, toMillis(u.Time), id); err != nil {
			return fmt.Errorf("touch job: %w", err)
		}
		return nil
	})
	if err != nil {
		return Update{}, err
	}
	return u, nil
}

// Finish ends the job.
func (s *SQLiteStore) Finish(ctx context.Context, id string, st Status, result *Result) error {
	if !st.Terminal() {
		return fmt.Errorf("finish job %s as %q: %w", id, st, ErrInvalidStatus)
	}
	return s.inTx(ctx, id, func(tx *sql.Tx) error {
		now := toMillis(s.clock.Now())
		if result == nil {
			_, err := tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, updated_at = ?, finished_at = ? WHERE id = ?`,
				string(st), now, now, id)
			if err != nil {
				return fmt.Errorf("finish job: %w", err)
			}
			return nil
		}
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ?, finished_at = ?, result = ? WHERE id = ?`,
			string(st), now, now, string(data), id)
		if err != nil {
			return fmt.Errorf("finish job: %w", err)
		}
		return nil
	})
}

// Get returns the job.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	var (
		job              Job
		st               string
		created, updated int64
		finished         sql.NullInt64
		result           sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, created_at, updated_at, finished_at, result FROM jobs WHERE id = ?`, id).
		Scan(&job.ID, &st, &created, &updated, &finished, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}

	job.Status = Status(st)
	job.Created = fromMillis(created)
	job.Updated = fromMillis(updated)
	if finished.Valid {
		job.Finished = fromMillis(finished.Int64)
	}
	if result.Valid {
		job.Result = new(Result)
		if err := json.Unmarshal([]byte(result.String), job.Result); err != nil {
			return Job{}, fmt.Errorf("decode result of job %s: %w", id, err)
		}
	}
	return job, nil
}

// Updates returns the job's updates after since, in sequence order.
func (s *SQLiteStore) Updates(ctx context.Context, id string, since int64) ([]Update, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, kind, message, created_at FROM job_updates
		  WHERE job_id = ? AND seq > ?
		  ORDER BY seq`, id, since)
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	defer rows.Close()

	updates := make([]Update, 0)
	for rows.Next() {
		var (
			u    Update
			kind string
			at   int64
		)
		if err := rows.Scan(&u.Seq, &kind, &u.Message, &at); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		u.Kind = Kind(kind)
		u.Time = fromMillis(at)
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	return updates, nil
}

// Evict deletes ended jobs that finished before cutoff. Their updates go
// with them.
func (s *SQLiteStore) Evict(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE finished_at IS NOT NULL AND finished_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("evict jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("evict jobs: %w", err)
	}
	return int(n), nil
}

// migrate applies each .sql file under root at most once, in name order.
// Only the "-- +migrate Up" section of a file is executed.
func migrate(db *sql.DB, fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range files {
		var found int
		err := db.QueryRow(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`, name).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", name, err)
		}

		content, err := fs.ReadFile(fsys, root+"/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(upSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
			name, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	i := strings.Index(content, up)
	if i == -1 {
		return content
	}
	content = content[i+len(up):]
	if j := strings.Index(content, down); j != -1 {
		content = content[:j]
	}
	return content
}

var _ Store = (*SQLiteStore)(nil)
