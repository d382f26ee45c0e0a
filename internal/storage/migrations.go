package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

// ErrNoMigration indicates no migration has been applied yet.
var ErrNoMigration = errors.New("no migration")

// MigrationManager applies versioned SQL migrations read from an fs.FS
// (usually an embed.FS shipped with the store). Files are named
// NNN_name.up.sql and NNN_name.down.sql; the applied version is tracked in a
// schema_migrations table.
type MigrationManager struct {
	db          *sql.DB
	files       fs.FS
	placeholder string
}

// migration is a single up/down migration pair.
type migration struct {
	version  uint
	name     string
	upFile   string
	downFile string
}

// NewMigrationManager creates a MigrationManager. placeholder is the bind
// parameter syntax of the driver ("?" for SQLite, "$1" for PostgreSQL).
func NewMigrationManager(ctx context.Context, db *sql.DB, files fs.FS, placeholder string) (*MigrationManager, error) {
	if db == nil {
		return nil, fmt.Errorf("migrations: database connection is required")
	}
	if files == nil {
		return nil, fmt.Errorf("migrations: migration files are required")
	}

	mgr := &MigrationManager{db: db, files: files, placeholder: placeholder}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return nil, fmt.Errorf("migrations: failed to create schema table: %w", err)
	}
	return mgr, nil
}

// Up applies all pending migrations in ascending version order, each in its
// own transaction. It returns the number of migrations applied.
func (mgr *MigrationManager) Up(ctx context.Context) (int, error) {
	migrations, err := mgr.loadMigrations()
	if err != nil {
		return 0, err
	}

	current, err := mgr.Version(ctx)
	if err != nil && !errors.Is(err, ErrNoMigration) {
		return 0, err
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := mgr.apply(ctx, m.upFile, "INSERT INTO schema_migrations (version) VALUES ("+mgr.placeholder+")", m.version); err != nil {
			return applied, fmt.Errorf("migrations: version %d (%s): %w", m.version, m.name, err)
		}
		applied++
	}
	return applied, nil
}

// Down rolls back all applied migrations in descending version order.
func (mgr *MigrationManager) Down(ctx context.Context) error {
	migrations, err := mgr.loadMigrations()
	if err != nil {
		return err
	}

	current, err := mgr.Version(ctx)
	if errors.Is(err, ErrNoMigration) {
		return nil
	}
	if err != nil {
		return err
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		if m.version > current {
			continue
		}
		if m.downFile == "" {
			return fmt.Errorf("migrations: version %d (%s) has no down file", m.version, m.name)
		}
		if err := mgr.apply(ctx, m.downFile, "DELETE FROM schema_migrations WHERE version = "+mgr.placeholder, m.version); err != nil {
			return fmt.Errorf("migrations: roll back version %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

// Version returns the highest applied migration version, or ErrNoMigration.
func (mgr *MigrationManager) Version(ctx context.Context) (uint, error) {
	var version uint
	err := mgr.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("migrations: failed to query version: %w", err)
	}
	if version == 0 {
		return 0, ErrNoMigration
	}
	return version, nil
}

// apply runs the statements of file and the bookkeeping statement in one
// transaction.
func (mgr *MigrationManager) apply(ctx context.Context, file, record string, version uint) error {
	body, err := fs.ReadFile(mgr.files, file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	tx, err := mgr.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, record, version); err != nil {
		return err
	}
	return tx.Commit()
}

// loadMigrations lists NNN_name.up.sql / NNN_name.down.sql files at the root
// of mgr.files, sorted by version ascending. Entries without an up file are
// skipped.
func (mgr *MigrationManager) loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(mgr.files, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: failed to read migration files: %w", err)
	}

	byVersion := make(map[uint]*migration)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil || v == 0 {
			continue
		}
		version := uint(v)

		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version}
			byVersion[version] = m
		}
		switch {
		case strings.HasSuffix(rest, ".up.sql"):
			m.name = strings.TrimSuffix(rest, ".up.sql")
			m.upFile = name
		case strings.HasSuffix(rest, ".down.sql"):
			m.downFile = name
		}
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.upFile != "" {
			migrations = append(migrations, *m)
		}
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}
