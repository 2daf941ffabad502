// Package sqlitestore implements store.Store and store.QueryStore on SQLite.
//
// The schema is created and upgraded by golang-migrate from SQL files
// embedded in the binary. Node links, custom values and group payloads are
// stored as JSON columns: they are always read and written together with
// their node and are never queried on their own.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/vk/workgraph/internal/ctxlog"
	"github.com/vk/workgraph/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DB is a SQLite-backed store.
type DB struct {
	conn *sql.DB
}

var (
	_ store.Store      = (*DB)(nil)
	_ store.QueryStore = (*DB)(nil)
)

// Open opens or creates the database at path and runs pending migrations.
// The parent directory is created when missing.
func Open(ctx context.Context, path string) (*DB, error) {
	logger := ctxlog.FromContext(ctx)

	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// ":memory:" databases exist per connection.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Debug("Opened workflow database", "path", path)
	return &DB{conn: conn}, nil
}

func runMigrations(conn *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	drv, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	// m.Close is not called: it would close conn.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
