// Package postgres provides PostgreSQL implementations of the graph source and
// result store interfaces.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/scrypster/relgraph/internal/storage"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrate brings the schema up to the latest embedded migration.
func migrate(ctx context.Context, db *sql.DB) error {
	files, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	mgr, err := storage.NewMigrationManager(ctx, db, files, "$1")
	if err != nil {
		return err
	}
	if _, err := mgr.Up(ctx); err != nil {
		return fmt.Errorf("postgres: failed to migrate schema: %w", err)
	}
	return nil
}

// MigrationPgvector adds a vector column for entity embeddings. It is only
// applied when the vector extension is available and is safe to run more
// than once.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'entities' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE entities ADD COLUMN embedding_vec vector;
    END IF;
END
$$;
`
