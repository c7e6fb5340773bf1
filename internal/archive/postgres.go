package archive

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// pgPool is the subset of pgxpool.Pool the archive needs; pgxmock satisfies
// it in tests.
type pgPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresStore backs the archive with a shared Postgres database, for
// setups where several machines download against one dedup table.
type PostgresStore struct {
	pool pgPool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS archive (
	category   TEXT NOT NULL,
	identity   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (category, identity)
)`

// NewPostgres connects to the archive database and ensures the schema.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "archive: parse postgres config")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "archive: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "archive: ping")
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "archive: migrate")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Seen(ctx context.Context, category, identity string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM archive WHERE category = $1 AND identity = $2`,
		category, identity,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "archive: seen")
	}
	return true, nil
}

func (s *PostgresStore) Record(ctx context.Context, category, identity string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO archive (category, identity) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		category, identity,
	)
	return eris.Wrap(err, "archive: record")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
