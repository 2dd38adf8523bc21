package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

// Dialect holds the statements that differ between SQL engines.
type Dialect struct {
	Name   string
	Driver string
	Create string
	Upsert string
	Select string
}

// snapshotKey names the single row holding the document.
const snapshotKey = "places"

var (
	// SQLite is the modernc.org/sqlite dialect.
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite",
		Create: `CREATE TABLE IF NOT EXISTS place_snapshot (
		id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		taken_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
		Upsert: `INSERT INTO place_snapshot (id, payload, taken_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, taken_at = excluded.taken_at`,
		Select: `SELECT payload FROM place_snapshot WHERE id = ?`,
	}

	// Postgres is the pgx stdlib dialect.
	Postgres = Dialect{
		Name:   "postgres",
		Driver: "pgx",
		Create: `CREATE TABLE IF NOT EXISTS place_snapshot (
		id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		taken_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
		Upsert: `INSERT INTO place_snapshot (id, payload, taken_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, taken_at = EXCLUDED.taken_at`,
		Select: `SELECT payload FROM place_snapshot WHERE id = $1`,
	}
)

// SQLStore keeps the document in one row of the place_snapshot table.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLStore opens the database for dialect and ensures the table exists.
// For SQLite the DSN is a file path whose directory is created if missing.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	if dialect.Driver == SQLite.Driver {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	store, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database and ensures the table exists.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, dialect.Create); err != nil {
		return nil, fmt.Errorf("ensure snapshot table: %w", err)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

func (s *SQLStore) Name() string { return s.dialect.Name }

func (s *SQLStore) Save(ctx context.Context, data []byte) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Upsert, snapshotKey, string(data)); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, s.dialect.Select, snapshotKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	return []byte(payload), nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
