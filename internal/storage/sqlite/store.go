package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/relgraph/internal/storage"
	"github.com/scrypster/relgraph/pkg/types"
)

// Store implements storage.GraphSource, storage.GraphWriter and
// storage.ResultStore using SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ storage.GraphSource = (*Store)(nil)
	_ storage.GraphWriter = (*Store)(nil)
	_ storage.ResultStore = (*Store)(nil)
)

// NewStore opens (or creates) a SQLite database and applies the schema.
// If the initial open fails due to stale WAL files left behind by a crashed
// process, it verifies no other process holds them and retries once after
// removing them.
func NewStore(dsn string) (*Store, error) {
	store, err := openStore(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := openStore(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("sqlite: failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	slog.Warn("sqlite: recovered from stale WAL files", "path", dbPath)
	return store, nil
}

func openStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer; a single connection also
	// keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close flushes the WAL into the main database file and releases resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		slog.Warn("sqlite: WAL checkpoint on close failed", "error", err)
	}
	return s.db.Close()
}

// ListEntities returns one page of entities ordered by id.
func (s *Store) ListEntities(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Entity], error) {
	opts.Normalize()
	where, args := entityWhere(opts.Filter)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count entities: %w", err)
	}

	query := `
		SELECT id, name, type, is_internal, is_portfolio, is_pipeline, importance,
		       embedding, enrichment, metadata
		FROM entities` + where + " ORDER BY id LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list entities: %w", err)
	}
	defer rows.Close()

	entities := make([]types.Entity, 0, opts.Limit)
	for rows.Next() {
		var e types.Entity
		var entityType string
		var embedding, enrichment, metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.Name, &entityType, &e.IsInternal, &e.IsPortfolio, &e.IsPipeline,
			&e.Importance, &embedding, &enrichment, &metadata); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan entity: %w", err)
		}
		e.Type = types.EntityType(entityType)
		if err := decodeJSON(embedding, &e.Embedding); err != nil {
			return nil, fmt.Errorf("sqlite: entity %s embedding: %w", e.ID, err)
		}
		if err := decodeJSON(enrichment, &e.Enrichment); err != nil {
			return nil, fmt.Errorf("sqlite: entity %s enrichment: %w", e.ID, err)
		}
		if err := decodeJSON(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: entity %s metadata: %w", e.ID, err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating entities: %w", err)
	}

	return &storage.PaginatedResult[types.Entity]{
		Items:    entities,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(entities) < total,
	}, nil
}

// ListEdges returns one page of edges ordered by (source_id, target_id, kind).
func (s *Store) ListEdges(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Edge], error) {
	opts.Normalize()
	where, args := edgeWhere(opts.Filter)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM edges"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count edges: %w", err)
	}

	query := `
		SELECT source_id, target_id, kind, id, strength_score, interaction_count, confidence_score
		FROM edges` + where + " ORDER BY source_id, target_id, kind LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list edges: %w", err)
	}
	defer rows.Close()

	edges := make([]types.Edge, 0, opts.Limit)
	for rows.Next() {
		var (
			e                    types.Edge
			kind                 string
			id                   sql.NullString
			strength, confidence sql.NullFloat64
		)
		if err := rows.Scan(&e.Source, &e.Target, &kind, &id, &strength, &e.InteractionCount, &confidence); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan edge: %w", err)
		}
		e.Kind = types.EdgeKind(kind)
		e.ID = id.String
		if strength.Valid {
			e.StrengthScore = types.Score(strength.Float64)
		}
		if confidence.Valid {
			e.ConfidenceScore = types.Score(confidence.Float64)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating edges: %w", err)
	}

	return &storage.PaginatedResult[types.Edge]{
		Items:    edges,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(edges) < total,
	}, nil
}

// UpsertEntities creates or replaces entities in one transaction.
func (s *Store) UpsertEntities(ctx context.Context, entities []types.Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (id, name, type, is_internal, is_portfolio, is_pipeline, importance,
		                      embedding, enrichment, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			is_internal = excluded.is_internal,
			is_portfolio = excluded.is_portfolio,
			is_pipeline = excluded.is_pipeline,
			importance = excluded.importance,
			embedding = excluded.embedding,
			enrichment = excluded.enrichment,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare entity upsert: %w", err)
	}
	defer stmt.Close()

	for i := range entities {
		e := &entities[i]
		if e.ID == "" {
			return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
		}
		embedding, err := encodeJSON(e.Embedding, len(e.Embedding) > 0)
		if err != nil {
			return fmt.Errorf("sqlite: entity %s embedding: %w", e.ID, err)
		}
		enrichment, err := encodeJSON(e.Enrichment, e.Enrichment != nil)
		if err != nil {
			return fmt.Errorf("sqlite: entity %s enrichment: %w", e.ID, err)
		}
		metadata, err := encodeJSON(e.Metadata, len(e.Metadata) > 0)
		if err != nil {
			return fmt.Errorf("sqlite: entity %s metadata: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Name, string(e.Type), e.IsInternal, e.IsPortfolio, e.IsPipeline,
			e.Importance, embedding, enrichment, metadata); err != nil {
			return fmt.Errorf("sqlite: failed to upsert entity %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit entities: %w", err)
	}
	return nil
}

// UpsertEdges creates or replaces edges keyed by (source, target, kind).
func (s *Store) UpsertEdges(ctx context.Context, edges []types.Edge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (source_id, target_id, kind, id, strength_score, interaction_count, confidence_score, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(source_id, target_id, kind) DO UPDATE SET
			id = excluded.id,
			strength_score = excluded.strength_score,
			interaction_count = excluded.interaction_count,
			confidence_score = excluded.confidence_score,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare edge upsert: %w", err)
	}
	defer stmt.Close()

	for i := range edges {
		e := &edges[i]
		if e.Source == "" || e.Target == "" {
			return fmt.Errorf("%w: edge endpoints are required", storage.ErrInvalidInput)
		}
		if _, err := stmt.ExecContext(ctx, e.Source, e.Target, string(e.Kind), nullableString(e.ID),
			nullableFloat(e.StrengthScore), e.InteractionCount, nullableFloat(e.ConfidenceScore)); err != nil {
			return fmt.Errorf("sqlite: failed to upsert edge %s->%s: %w", e.Source, e.Target, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit edges: %w", err)
	}
	return nil
}

func entityWhere(f storage.Filter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	if f.InternalOnly {
		conditions = append(conditions, "is_internal = 1")
	}
	if len(f.EntityTypes) > 0 {
		conditions = append(conditions, "type IN ("+placeholders(len(f.EntityTypes))+")")
		for _, t := range f.EntityTypes {
			args = append(args, string(t))
		}
	}
	return whereClause(conditions), args
}

func edgeWhere(f storage.Filter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	if len(f.EdgeKinds) > 0 {
		conditions = append(conditions, "kind IN ("+placeholders(len(f.EdgeKinds))+")")
		for _, k := range f.EdgeKinds {
			args = append(args, string(k))
		}
	}
	if f.MinStrength > 0 {
		conditions = append(conditions, "(strength_score IS NULL OR strength_score >= ?)")
		args = append(args, f.MinStrength)
	}
	return whereClause(conditions), args
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func encodeJSON(v interface{}, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeJSON(s sql.NullString, dst interface{}) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN.
// Returns empty string for in-memory databases or unparseable DSNs.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" {
			return ""
		}
		return path
	}

	return dsn
}

// isRecoverableWALError reports whether err looks like it was caused by stale
// WAL files.
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale reports whether -shm/-wal files exist for dbPath and no process
// holds them open. Returns false if lsof is unavailable.
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"
	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	output, err := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath).Output()
	if err != nil {
		// lsof exits 1 when no process has the files open.
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("sqlite: failed to remove stale WAL file", "path", path, "error", err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
