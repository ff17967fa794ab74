// Package sqliterecorder persists stream offsets in a local SQLite database:
// file-grade durability without hand-rolled fsync discipline, and several
// consumers can share one database file.
package sqliterecorder

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS stream_offsets (
	consumer TEXT PRIMARY KEY,
	stream_offset TEXT NOT NULL,
	updated_at_utc_ns INTEGER NOT NULL DEFAULT 0
);
`

// Recorder stores the offset in a stream_offsets row keyed by consumer name.
type Recorder struct {
	db       *sql.DB
	consumer string
}

// New opens (creating if needed) the database at path.
func New(path, consumer string) (*Recorder, error) {
	if consumer == "" {
		return nil, errors.New("consumer name is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create offset db dir: %w", err)
	}
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create offsets table: %w", err)
	}
	return &Recorder{db: db, consumer: consumer}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func (r *Recorder) ReadOffset() (string, error) {
	var offset string
	err := r.db.QueryRow(
		`SELECT stream_offset FROM stream_offsets WHERE consumer=?`,
		r.consumer,
	).Scan(&offset)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read offset for %q: %w", r.consumer, err)
	}
	return offset, nil
}

func (r *Recorder) WriteOffset(offset string) error {
	_, err := r.db.Exec(`
INSERT INTO stream_offsets (consumer, stream_offset, updated_at_utc_ns)
VALUES (?, ?, strftime('%s','now') * 1000000000)
ON CONFLICT (consumer) DO UPDATE SET
	stream_offset = excluded.stream_offset,
	updated_at_utc_ns = excluded.updated_at_utc_ns
`, r.consumer, offset)
	if err != nil {
		return fmt.Errorf("write offset for %q: %w", r.consumer, err)
	}
	return nil
}

func (r *Recorder) Close() error {
	return r.db.Close()
}
