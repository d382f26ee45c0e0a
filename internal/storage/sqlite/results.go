package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/relgraph/internal/storage"
)

// UpsertIntroductionPath stores the best path for (source, target),
// replacing any earlier record.
func (s *Store) UpsertIntroductionPath(ctx context.Context, rec storage.IntroductionPathRecord) error {
	if rec.SourceEntityID == "" || rec.TargetEntityID == "" {
		return fmt.Errorf("%w: source and target are required", storage.ErrInvalidInput)
	}
	if rec.ComputedAt.IsZero() {
		rec.ComputedAt = time.Now()
	}

	pathJSON, err := json.Marshal(rec.Path)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal path: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO introduction_paths (source_entity_id, target_entity_id, path, score, hops, strategy, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_entity_id, target_entity_id) DO UPDATE SET
			path = excluded.path,
			score = excluded.score,
			hops = excluded.hops,
			strategy = excluded.strategy,
			computed_at = excluded.computed_at`,
		rec.SourceEntityID, rec.TargetEntityID, string(pathJSON), rec.Score, rec.Path.Hops,
		string(rec.Path.Strategy), rec.ComputedAt.UTC())
	if err != nil {
		return fmt.Errorf("sqlite: failed to upsert introduction path: %w", err)
	}
	return nil
}

// GetIntroductionPath returns the stored path for (source, target).
func (s *Store) GetIntroductionPath(ctx context.Context, sourceID, targetID string) (*storage.IntroductionPathRecord, error) {
	var (
		pathJSON string
		rec      = storage.IntroductionPathRecord{SourceEntityID: sourceID, TargetEntityID: targetID}
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT path, score, computed_at FROM introduction_paths
		WHERE source_entity_id = ? AND target_entity_id = ?`,
		sourceID, targetID).Scan(&pathJSON, &rec.Score, &rec.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get introduction path: %w", err)
	}
	if err := json.Unmarshal([]byte(pathJSON), &rec.Path); err != nil {
		return nil, fmt.Errorf("sqlite: failed to unmarshal path: %w", err)
	}
	return &rec, nil
}

// SaveNetworkInsights replaces the singleton insights record.
func (s *Store) SaveNetworkInsights(ctx context.Context, id string, payload []byte) error {
	if id == "" || !json.Valid(payload) {
		return fmt.Errorf("%w: insights id and JSON payload are required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM network_insights"); err != nil {
		return fmt.Errorf("sqlite: failed to clear network insights: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO network_insights (id, payload, computed_at) VALUES (?, ?, ?)",
		id, string(payload), time.Now().UTC()); err != nil {
		return fmt.Errorf("sqlite: failed to save network insights: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit network insights: %w", err)
	}
	return nil
}

// GetNetworkInsights returns the stored insights payload.
func (s *Store) GetNetworkInsights(ctx context.Context) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM network_insights ORDER BY computed_at DESC LIMIT 1").Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get network insights: %w", err)
	}
	return []byte(payload), nil
}
