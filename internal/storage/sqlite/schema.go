// Package sqlite provides a SQLite implementation of the graph source and
// result store interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/scrypster/relgraph/internal/storage"
)

// Entities and edges are written by the ingestion pipeline (or
// UpsertEntities / UpsertEdges for fixtures); introduction_paths and
// network_insights are written by the engine.
//
//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrate brings the schema up to the latest embedded migration.
func migrate(ctx context.Context, db *sql.DB) error {
	files, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	mgr, err := storage.NewMigrationManager(ctx, db, files, "?")
	if err != nil {
		return err
	}
	if _, err := mgr.Up(ctx); err != nil {
		return fmt.Errorf("sqlite: failed to migrate schema: %w", err)
	}
	return nil
}
