package archive

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the default archive backend, a single-file SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS archive (
	category   TEXT NOT NULL,
	identity   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (category, identity)
);
`

// NewSQLite opens (creating if needed) the archive database at path and
// configures WAL mode.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "archive: create directory")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "archive: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "archive: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "archive: migrate")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Seen(ctx context.Context, category, identity string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM archive WHERE category = ? AND identity = ?`,
		category, identity,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "archive: seen")
	}
	return true, nil
}

func (s *SQLiteStore) Record(ctx context.Context, category, identity string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO archive (category, identity) VALUES (?, ?)`,
		category, identity,
	)
	return eris.Wrap(err, "archive: record")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
