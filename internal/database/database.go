package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the memhub record store: memory entries, their optional
// process lessons, and workflow push audits. Entries are append-only;
// there is no update or delete path.
type Database struct {
	db       *sql.DB
	postgres bool
}

// New creates a SQLite-backed database and applies all pending migrations.
func New(dbPath string) (*Database, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	d := &Database{db: db}

	if err := d.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return d, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// rebind converts ? placeholders to $1, $2, ... when running on PostgreSQL.
func (d *Database) rebind(query string) string {
	if !d.postgres {
		return query
	}
	return rebindPostgres(query)
}
