// Package pgrecorder persists stream offsets in PostgreSQL, one row per
// consumer name.
package pgrecorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const opTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS stream_offsets (
	consumer TEXT PRIMARY KEY,
	stream_offset TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Recorder stores the offset in the stream_offsets table, keyed by consumer
// name so several consumers can share one database.
type Recorder struct {
	pool     *pgxpool.Pool
	consumer string
	owned    bool
}

// New connects to Postgres and creates the offsets table if missing.
func New(ctx context.Context, connString, consumer string) (*Recorder, error) {
	if consumer == "" {
		return nil, errors.New("consumer name is required")
	}
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	r := &Recorder{pool: pool, consumer: consumer, owned: true}
	if err := r.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// NewWithPool reuses an existing pool; the caller keeps ownership of it.
func NewWithPool(ctx context.Context, pool *pgxpool.Pool, consumer string) (*Recorder, error) {
	if consumer == "" {
		return nil, errors.New("consumer name is required")
	}
	r := &Recorder{pool: pool, consumer: consumer}
	if err := r.init(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) init(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create offsets table: %w", err)
	}
	return nil
}

func (r *Recorder) ReadOffset() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	var offset string
	err := r.pool.QueryRow(ctx,
		`SELECT stream_offset FROM stream_offsets WHERE consumer = $1`,
		r.consumer,
	).Scan(&offset)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read offset for %q: %w", r.consumer, err)
	}
	return offset, nil
}

func (r *Recorder) WriteOffset(offset string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO stream_offsets (consumer, stream_offset, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (consumer) DO UPDATE SET
			stream_offset = EXCLUDED.stream_offset,
			updated_at = NOW()
	`, r.consumer, offset)
	if err != nil {
		return fmt.Errorf("write offset for %q: %w", r.consumer, err)
	}
	return nil
}

// Close releases the pool when the recorder owns it.
func (r *Recorder) Close() {
	if r.owned {
		r.pool.Close()
	}
}
