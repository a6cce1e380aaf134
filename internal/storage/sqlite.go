package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/reqlab/reqlab/internal/errdef"
)

const stateSchema = `
CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// SQLiteBackend persists state rows in a single-file database. One writer at
// a time is enough for a single-user local tool.
type SQLiteBackend struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errdef.Wrap(errdef.CodeFilesystem, err, "create state dir")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "open state db %s", path)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(stateSchema); err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return nil, errdef.Wrap(errdef.CodeStorage, err, "init state schema")
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Get(key string) ([]byte, bool, error) {
	var value string
	err := b.db.QueryRow(`SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errdef.Wrap(errdef.CodeStorage, err, "read state %q", key)
	}
	return []byte(value), true, nil
}

func (b *SQLiteBackend) Set(key string, value []byte) error {
	_, err := b.db.Exec(
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(value),
	)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "write state %q", key)
	}
	return nil
}

func (b *SQLiteBackend) Delete(key string) error {
	if _, err := b.db.Exec(`DELETE FROM state WHERE key = ?`, key); err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "delete state %q", key)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
