package storage

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/sirupsen/logrus"
)

// Postgres driver names accepted by NewPostgresStore.
const (
	DriverPgx = "pgx"
	DriverPq  = "postgres"
)

// PostgresStore implements storage using PostgreSQL
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore creates a new PostgreSQL storage. driver is "pgx"
// (default) or "postgres" for lib/pq.
func NewPostgresStore(ctx context.Context, dsn, driver string, logger logrus.FieldLogger) (*PostgresStore, error) {
	if driver == "" {
		driver = DriverPgx
	}
	if driver != DriverPgx && driver != DriverPq {
		return nil, fmt.Errorf("unsupported postgres driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{
		sqlStore: &sqlStore{
			db:      db,
			dialect: DialectPostgres,
			logger:  logging.OrDiscard(logger).WithField("component", "postgres"),
		},
	}, nil
}
