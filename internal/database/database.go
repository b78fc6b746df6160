// Package database opens the SQLite file that backs plugin state and keeps
// its schema current with goose.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Pragmas applied to every connection. WAL lets API reads run alongside
// state writes.
const pragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

// DB is an open SQLite database with an attached migration provider.
type DB struct {
	conn     *sql.DB
	path     string
	provider *goose.Provider
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path+"?"+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// single writer
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database %s: %w", path, err)
	}

	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		conn.Close()
		return nil, err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, sub)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	return &DB{conn: conn, path: path, provider: provider}, nil
}

func (db *DB) Conn() *sql.DB { return db.conn }

func (db *DB) Path() string { return db.path }

func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Migrate applies pending migrations and returns the versions it applied.
func (db *DB) Migrate(ctx context.Context) ([]int64, error) {
	results, err := db.provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}

// Rollback reverts the most recent migration.
func (db *DB) Rollback(ctx context.Context) error {
	if _, err := db.provider.Down(ctx); err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	return nil
}

// Version reports the current schema version.
func (db *DB) Version(ctx context.Context) (int64, error) {
	return db.provider.GetDBVersion(ctx)
}
