// Package report persists engine outputs: the best introduction path per
// (source, target) pair and the network insights record.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/scrypster/relgraph/internal/influence"
	"github.com/scrypster/relgraph/internal/scoring"
	"github.com/scrypster/relgraph/internal/storage"
	"github.com/scrypster/relgraph/pkg/types"
)

// Publisher writes results to a ResultStore. Writes are idempotent upserts, so
// publishing the same result twice leaves the store unchanged.
type Publisher struct {
	store  storage.ResultStore
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a Publisher.
func NewPublisher(store storage.ResultStore, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{store: store, logger: logger.With("component", "report"), now: time.Now}
}

// PublishIntroductions upserts the best path of every (source, target) pair
// among paths that end at targetID. Paths ending elsewhere are ignored. It
// returns the number of records written.
func (p *Publisher) PublishIntroductions(ctx context.Context, targetID string, paths []types.Path) (int, error) {
	best := make(map[string]*types.Path)
	var order []string
	for i := range paths {
		path := &paths[i]
		if len(path.Nodes) == 0 || path.Target() != targetID {
			continue
		}
		src := path.Source()
		cur, ok := best[src]
		if !ok {
			order = append(order, src)
			best[src] = path
			continue
		}
		if scoring.Better(path, cur) {
			best[src] = path
		}
	}

	computedAt := p.now().UTC()
	written := 0
	for _, src := range order {
		path := best[src]
		rec := storage.IntroductionPathRecord{
			SourceEntityID: src,
			TargetEntityID: targetID,
			Path:           path.Clone(),
			Score:          path.Score,
			ComputedAt:     computedAt,
		}
		if err := p.store.UpsertIntroductionPath(ctx, rec); err != nil {
			return written, fmt.Errorf("report: PublishIntroductions: %s->%s: %w", src, targetID, err)
		}
		written++
	}

	p.logger.Info("introductions published", "target", targetID, "records", written)
	return written, nil
}

// PublishInsights replaces the stored network insights.
func (p *Publisher) PublishInsights(ctx context.Context, ins *influence.NetworkInsights) error {
	if ins == nil {
		return fmt.Errorf("report: PublishInsights: %w: nil insights", storage.ErrInvalidInput)
	}
	payload, err := json.Marshal(ins)
	if err != nil {
		return fmt.Errorf("report: PublishInsights: marshal: %w", err)
	}
	if err := p.store.SaveNetworkInsights(ctx, ins.ID, payload); err != nil {
		return fmt.Errorf("report: PublishInsights: %w", err)
	}
	p.logger.Info("network insights published", "id", ins.ID, "snapshot", ins.SnapshotVersion)
	return nil
}
