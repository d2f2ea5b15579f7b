// internal/repository/sqlstore/dialect.go
package sqlstore

import (
	"context"
	"fmt"

	"mentor-points/internal/repository"
	"mentor-points/pkg/db"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Name      string
	forUpdate string
	schema    []string
}

// Postgres is the production dialect.
var Postgres = Dialect{
	Name:      db.DriverPostgres,
	forUpdate: " FOR UPDATE",
	schema:    postgresSchema,
}

// SQLite serializes writers at the database level, so it needs no row locks.
var SQLite = Dialect{
	Name:   db.DriverSQLite,
	schema: sqliteSchema,
}

// DialectFor returns the dialect matching a pkg/db driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case db.DriverPostgres, "":
		return Postgres, nil
	case db.DriverSQLite:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("no SQL dialect for driver %q", driver)
	}
}

// Migrate applies the dialect's schema. Every statement is idempotent.
func (d Dialect) Migrate(ctx context.Context, q repository.DBExecutor) error {
	for i, stmt := range d.schema {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", i, d.Name, err)
		}
	}
	return nil
}
