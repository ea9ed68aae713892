package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS state (
	bucket TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLiteSnapshotter persists state buckets as JSON blobs in a single SQLite table.
type SQLiteSnapshotter struct {
	db      *sqlx.DB
	path    string
	digests digestCache
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteSnapshotter, error) {
	if path == "" {
		path = "tycoon.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &SQLiteSnapshotter{db: db, path: path}, nil
}

type stateRow struct {
	Bucket  string `db:"bucket"`
	Payload []byte `db:"payload"`
}

func (s *SQLiteSnapshotter) Load(ctx context.Context) (*State, error) {
	var rows []stateRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT bucket, payload FROM state`); err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	payloads := make(map[string][]byte, len(rows))
	for _, r := range rows {
		payloads[r.Bucket] = r.Payload
	}
	st, err := DecodeBuckets(payloads)
	if err != nil {
		return nil, err
	}
	sums := digestCache{}
	s.digests.remember(sums.changed(payloads))
	return st, nil
}

func (s *SQLiteSnapshotter) Save(ctx context.Context, st *State, changed []string) (retErr error) {
	if len(changed) == 0 {
		return nil
	}
	payloads, err := EncodeBuckets(st, changed...)
	if err != nil {
		return err
	}
	sums := s.digests.changed(payloads)
	if len(sums) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for name := range sums {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO state(bucket, payload, updated_at) VALUES(?, ?, ?)
			 ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
			name, payloads[name], now,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.digests.remember(sums)
	return nil
}

func (s *SQLiteSnapshotter) Path() string { return s.path }

func (s *SQLiteSnapshotter) Close() error { return s.db.Close() }
