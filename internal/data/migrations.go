package data

import (
	"context"
	"database/sql"

	"github.com/target/mmk-pipeline/internal/migrate"
)

// RunMigrations applies the embedded schema migrations and returns the versions applied.
func RunMigrations(ctx context.Context, db *sql.DB) ([]string, error) {
	return migrate.Run(ctx, db)
}
