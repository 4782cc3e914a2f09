package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS travelers (
		id TEXT PRIMARY KEY,
		push_token TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		traveler_id TEXT NOT NULL REFERENCES travelers(id) ON DELETE CASCADE,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		pages_known INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_locations_traveler ON locations(traveler_id);
	CREATE TABLE IF NOT EXISTS photos (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
		remote_id INTEGER NOT NULL,
		remote_url TEXT NOT NULL DEFAULT '',
		local_cache_path TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_photos_location ON photos(location_id);
	CREATE TABLE IF NOT EXISTS map_regions (
		traveler_id TEXT PRIMARY KEY REFERENCES travelers(id) ON DELETE CASCADE,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		latitude_delta REAL NOT NULL,
		longitude_delta REAL NOT NULL,
		updated_at DATETIME NOT NULL
	);
`

// sqlQuerier is implemented by both *sql.DB and *sql.Tx
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rebind turns $n placeholders into SQLite's ?n form
func rebind(query string) string {
	return strings.ReplaceAll(query, "$", "?")
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}

type sqlExecutor struct {
	q sqlQuerier
}

func (e sqlExecutor) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := e.q.ExecContext(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (e sqlExecutor) queryRow(ctx context.Context, query string, args ...any) row {
	return e.q.QueryRowContext(ctx, rebind(query), args...)
}

func (e sqlExecutor) query(ctx context.Context, query string, args ...any) (rowIterator, error) {
	rows, err := e.q.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{Rows: rows}, nil
}

// SQLiteStore is the embedded record store. It keeps a single connection so
// the store has exactly one writer.
type SQLiteStore struct {
	*queries
	conn *sql.DB
}

var _ RecordStore = (*SQLiteStore)(nil)

// NewSQLite opens (or creates) a SQLite database. Use ":memory:" for a
// throwaway store.
func NewSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if path != ":memory:" {
		// Enable WAL mode for better concurrency.
		if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set wal mode: %w", err)
		}
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{
		queries: &queries{x: sqlExecutor{q: conn}},
		conn:    conn,
	}, nil
}

// InTx runs fn inside a transaction. fn must only use the Queries it is given.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&queries{x: sqlExecutor{q: tx}}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// DatabaseType returns the database backend name
func (s *SQLiteStore) DatabaseType() string {
	return "SQLite"
}

// Ping checks the connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteStore) Close() {
	_ = s.conn.Close()
}
