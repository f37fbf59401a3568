package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/sirupsen/logrus"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements storage using SQLite (for local/development)
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore creates a new SQLite storage and applies the schema.
func NewSQLiteStore(ctx context.Context, path string, logger logrus.FieldLogger) (*SQLiteStore, error) {
	dsn := path
	if path != MemoryPath {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = "file:" + path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	} else {
		dsn = "file::memory:?_foreign_keys=on"
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}
	// SQLite allows a single writer; an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		sqlStore: &sqlStore{
			db:      db,
			dialect: DialectSQLite,
			logger:  logging.OrDiscard(logger).WithField("component", "sqlite"),
		},
	}

	// Initialize schema
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}
