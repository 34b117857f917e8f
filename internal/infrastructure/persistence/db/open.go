package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Config selects and tunes the storage backend. The choice is static:
// Postgres when a DSN is configured, otherwise the embedded SQLite file.
type Config struct {
	// PostgresDSN selects the networked backend when non-empty
	PostgresDSN string

	// SQLitePath is the embedded database file (default handoff.db)
	SQLitePath string

	// Networked pool bounds; ignored for SQLite
	MaxOpenConns int
	MaxIdleConns int
}

// DefaultConfig returns the shipped backend configuration.
func DefaultConfig() Config {
	return Config{
		SQLitePath:   "handoff.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}
}

// Open connects to the configured backend and verifies the connection.
func Open(cfg Config) (*Handle, error) {
	if cfg.PostgresDSN != "" {
		return openPostgres(cfg)
	}
	return openSQLite(cfg)
}

func openPostgres(cfg Config) (*Handle, error) {
	pool, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	pool.SetMaxOpenConns(maxOpen)
	pool.SetMaxIdleConns(maxIdle)
	pool.SetConnMaxLifetime(time.Hour)

	if err := ping(pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Handle{db: pool, dialect: postgresDialect{}}, nil
}

func openSQLite(cfg Config) (*Handle, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "handoff.db"
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	pool, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single serializable handle; SQLite does its own file locking
	pool.SetMaxOpenConns(1)

	if err := ping(pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Handle{db: pool, dialect: sqliteDialect{}}, nil
}

// OpenMemory opens a throwaway in-memory SQLite database. Test helper.
func OpenMemory() (*Handle, error) {
	pool, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory sqlite: %w", err)
	}
	pool.SetMaxOpenConns(1)
	return &Handle{db: pool, dialect: sqliteDialect{}}, nil
}

func ping(pool *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return pool.PingContext(ctx)
}
