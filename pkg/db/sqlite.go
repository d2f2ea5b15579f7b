// pkg/db/sqlite.go
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver, registered as "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// NewSQLiteDB opens an embedded SQLite database at path (":memory:" for a
// private in-memory database). SQLite allows a single writer, so the pool is
// pinned to one connection; this also keeps an in-memory database alive for
// the lifetime of the handle.
func NewSQLiteDB(path string) (*sqlx.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)&_time_format=sqlite"
	}

	db, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return db, nil
}
