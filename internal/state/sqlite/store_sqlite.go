package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// Store implements state.Store and state.BlobStore on a single sqlite file.
type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return err
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (key TEXT PRIMARY KEY, taken_at_ms INTEGER NOT NULL, data BLOB NOT NULL)`)
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *Store) PutBlob(ctx context.Context, key string, data []byte, takenAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (key, taken_at_ms, data) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET taken_at_ms = excluded.taken_at_ms, data = excluded.data`,
		key, takenAt.UnixMilli(), data)
	return err
}

func (s *Store) GetBlob(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	var (
		data    []byte
		takenMS int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT data, taken_at_ms FROM snapshots WHERE key = ?`, key).Scan(&data, &takenMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, err
	}
	return data, time.UnixMilli(takenMS).UTC(), true, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
