package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// schemaSQL is the single source of truth for the database schema,
// embedded at compile time from schema.sql.
//
//go:embed schema.sql
var schemaSQL string

// DB wraps a SQLite database connection with write serialization.
// SQLite supports a single writer at a time; all mutating operations
// take writeMu so concurrent components (collector, aggregator, alert
// engine, resolve sweep) never overlap transactions.
type DB struct {
	conn    *sql.DB
	writeMu sync.Mutex
	logger  zerolog.Logger
}

// Open opens the SQLite database with WAL mode enabled.
func Open(dbPath string, logger zerolog.Logger) (*DB, error) {
	dsn := dbPath + "?_journal=WAL&_fk=1&_busy_timeout=5000"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection plus the write mutex prevents "cannot start a
	// transaction within a transaction" errors when the resolve sweep
	// runs concurrently with a collection cycle.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 10000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.Warn().Err(err).Str("pragma", pragma).Msg("failed to set pragma")
		}
	}

	logger.Info().Str("path", dbPath).Msg("connected to sqlite database")
	return &DB{conn: conn, logger: logger}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// EnsureSchema creates tables if they don't exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
