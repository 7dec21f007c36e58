package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/metropath/internal/common/logger"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

type DB struct {
	conn    *sql.DB
	dialect Dialect
	logger  logger.Logger
}

// New opens a Postgres connection.
func New(connStr string, logger logger.Logger) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return open(conn, Postgres, logger)
}

// NewSQLite opens (creating if needed) a SQLite database file.
func NewSQLite(path string, logger logger.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer at a time.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(time.Hour)
	return open(conn, SQLite, logger)
}

func open(conn *sql.DB, dialect Dialect, logger logger.Logger) (*DB, error) {
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("Database connection established", "dialect", dialect)

	return &DB{
		conn:    conn,
		dialect: dialect,
		logger:  logger,
	}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, nil)
}

// DB returns the underlying connection pool
func (db *DB) DB() *sql.DB {
	return db.conn
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Placeholder returns the bind parameter for the n-th (1-based) argument.
func (db *DB) Placeholder(n int) string {
	if db.dialect == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Migrate creates the snapshot tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	tsType := "TIMESTAMP"
	if db.dialect == Postgres {
		tsType = "TIMESTAMPTZ"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS snapshots (
			snapshot_id     TEXT PRIMARY KEY,
			created_at      %s NOT NULL,
			is_active       BOOLEAN NOT NULL DEFAULT FALSE,
			source          TEXT NOT NULL,
			policy          TEXT NOT NULL,
			catalog_version TEXT NOT NULL,
			station_count   INTEGER NOT NULL,
			edge_count      INTEGER NOT NULL
		)`, tsType),
		`CREATE TABLE IF NOT EXISTS stations (
			snapshot_id   TEXT NOT NULL,
			seq           INTEGER NOT NULL,
			station_id    TEXT NOT NULL,
			name          TEXT NOT NULL,
			lat           DOUBLE PRECISION NOT NULL,
			lng           DOUBLE PRECISION NOT NULL,
			line_id       TEXT NOT NULL,
			line_name     TEXT NOT NULL,
			line_color    TEXT NOT NULL,
			station_order INTEGER NOT NULL,
			PRIMARY KEY (snapshot_id, station_id)
		)`,
		`CREATE TABLE IF NOT EXISTS edges (
			snapshot_id     TEXT NOT NULL,
			seq             INTEGER NOT NULL,
			from_station_id TEXT NOT NULL,
			to_station_id   TEXT NOT NULL,
			edge_class      TEXT NOT NULL,
			PRIMARY KEY (snapshot_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS snapshots_active_idx ON snapshots (is_active)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating schema: %w", err)
		}
	}
	db.logger.Debug("Schema ready", "dialect", db.dialect)
	return nil
}
