// internal/repository/sqlstore/test_helpers.go
package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"mentor-points/pkg/db"
)

// NewMemoryDB opens a private, migrated in-memory SQLite database.
// It backs the repository and service tests and local experiments.
func NewMemoryDB(ctx context.Context) (*sqlx.DB, error) {
	database, err := db.NewSQLiteDB(":memory:")
	if err != nil {
		return nil, err
	}
	if err := SQLite.Migrate(ctx, database); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to migrate in-memory database: %w", err)
	}
	return database, nil
}
