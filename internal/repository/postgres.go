package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS travelers (
		id TEXT PRIMARY KEY,
		push_token TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		traveler_id TEXT NOT NULL REFERENCES travelers(id) ON DELETE CASCADE,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		pages_known INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_locations_traveler ON locations(traveler_id);
	CREATE TABLE IF NOT EXISTS photos (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
		remote_id BIGINT NOT NULL,
		remote_url TEXT NOT NULL DEFAULT '',
		local_cache_path TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_photos_location ON photos(location_id);
	CREATE TABLE IF NOT EXISTS map_regions (
		traveler_id TEXT PRIMARY KEY REFERENCES travelers(id) ON DELETE CASCADE,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		latitude_delta DOUBLE PRECISION NOT NULL,
		longitude_delta DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
`

// pgxQuerier is implemented by both *pgxpool.Pool and pgx.Tx
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxExecutor struct {
	q pgxQuerier
}

func (e pgxExecutor) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := e.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (e pgxExecutor) queryRow(ctx context.Context, query string, args ...any) row {
	return e.q.QueryRow(ctx, query, args...)
}

func (e pgxExecutor) query(ctx context.Context, query string, args ...any) (rowIterator, error) {
	return e.q.Query(ctx, query, args...)
}

// PostgresStore is the PostgreSQL record store
type PostgresStore struct {
	*queries
	db *pgxpool.Pool
}

var _ RecordStore = (*PostgresStore)(nil)

// NewPostgres connects to PostgreSQL and migrates the schema
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &PostgresStore{
		queries: &queries{x: pgxExecutor{q: db}},
		db:      db,
	}, nil
}

// InTx runs fn inside a transaction
func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&queries{x: pgxExecutor{q: tx}})
	})
}

// DatabaseType returns the database backend name
func (s *PostgresStore) DatabaseType() string {
	return "PostgreSQL"
}

// Ping checks the connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the pool
func (s *PostgresStore) Close() {
	s.db.Close()
}
