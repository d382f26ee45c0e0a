package intro

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/scrypster/relgraph/internal/metrics"
	"github.com/scrypster/relgraph/internal/scoring"
	"github.com/scrypster/relgraph/pkg/types"
)

// WarmOptions tune a warm introduction query. Zero values take the service
// defaults.
type WarmOptions struct {
	// MaxResults is the number of introductions returned.
	MaxResults int

	// MaxHops bounds each seed->target path (default: 3).
	MaxHops int

	// MinPathStrength drops weaker paths. Nil takes the service default.
	MinPathStrength *float64

	// Strategies run per seed (default: shortest and strongest).
	Strategies []types.Strategy

	// Seeds overrides the default seed pool of internal persons.
	Seeds []string

	// MaxSeeds keeps only the most influential seeds when > 0.
	MaxSeeds int

	// Query enables the semantic bonus.
	Query string
}

// SeedError records a seed whose search failed.
type SeedError struct {
	Seed  string `json:"seed"`
	Error string `json:"error"`
}

// Diagnostics explains an empty or partial warm introduction result.
type Diagnostics struct {
	UnknownTarget       bool        `json:"unknown_target,omitempty"`
	EmptySeedSet        bool        `json:"empty_seed_set,omitempty"`
	SeedsConsidered     int         `json:"seeds_considered"`
	SeedsWithPaths      int         `json:"seeds_with_paths"`
	SeedErrors          []SeedError `json:"seed_errors,omitempty"`
	Truncated           bool        `json:"truncated,omitempty"`
	SemanticUnavailable bool        `json:"semantic_unavailable,omitempty"`
}

// WarmResult holds ranked warm introductions for one target. Every path
// starts at a seed and ends at the target.
type WarmResult struct {
	Target          string       `json:"target"`
	Introductions   []types.Path `json:"introductions"`
	SnapshotVersion string       `json:"snapshot_version"`
	Diagnostics     Diagnostics  `json:"diagnostics"`
}

// FindWarmIntroductions searches from every seed toward target, scores all
// paths with the canonical scorer, merges paths that share the same
// introduction route (the path after its seed) keeping the higher score, and
// returns the top MaxResults.
func (s *Service) FindWarmIntroductions(ctx context.Context, targetID string, opts WarmOptions) (*WarmResult, error) {
	ctx, span := tracer.Start(ctx, "intro.FindWarmIntroductions", trace.WithAttributes(attribute.String("target", targetID)))
	defer span.End()
	start := time.Now()

	sess, err := s.Session()
	if err != nil {
		return nil, err
	}
	res := s.warm(ctx, sess, targetID, opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metrics.ObserveQuery(opWarmIntroductions, time.Since(start), len(res.Introductions), res.Diagnostics.Truncated)
	span.SetAttributes(
		attribute.Int("seeds", res.Diagnostics.SeedsConsidered),
		attribute.Int("introductions", len(res.Introductions)),
	)
	s.logger.Debug("warm introductions",
		"snapshot", sess.Version,
		"target", targetID,
		"seeds", res.Diagnostics.SeedsConsidered,
		"seeds_with_paths", res.Diagnostics.SeedsWithPaths,
		"paths", len(res.Introductions),
		"elapsed", time.Since(start))
	return res, nil
}

func (s *Service) warm(ctx context.Context, sess *Session, targetID string, opts WarmOptions) *WarmResult {
	if opts.MaxResults < 1 {
		opts.MaxResults = s.cfg.WarmMaxResults
	}
	if opts.MaxHops < 1 {
		opts.MaxHops = s.cfg.WarmMaxHops
	}
	opts.MinPathStrength = Strength(strengthOr(opts.MinPathStrength, s.cfg.WarmMinPathStrength))
	if len(opts.Strategies) == 0 {
		opts.Strategies = []types.Strategy{types.StrategyShortest, types.StrategyStrongest}
	}

	res := &WarmResult{
		Target:          targetID,
		Introductions:   []types.Path{},
		SnapshotVersion: sess.Version,
	}
	if !sess.Index.Has(targetID) {
		res.Diagnostics.UnknownTarget = true
		return res
	}

	seeds := s.seeds(sess, targetID, opts)
	res.Diagnostics.SeedsConsidered = len(seeds)
	if len(seeds) == 0 {
		res.Diagnostics.EmptySeedSet = true
		s.logger.Info("no seeds for warm introductions", "target", targetID, "snapshot", sess.Version)
		return res
	}

	query := s.embedQuery(ctx, opts.Query)
	if query != nil && query.unavailable {
		res.Diagnostics.SemanticUnavailable = true
	}

	pathOpts := PathOptions{
		Strategies:      opts.Strategies,
		MaxHops:         opts.MaxHops,
		MinPathStrength: opts.MinPathStrength,
		Query:           opts.Query,
	}

	var all []types.Path
	for _, seed := range seeds {
		if ctx.Err() != nil {
			break
		}
		pr, err := s.seedPaths(ctx, sess, seed, targetID, pathOpts, query)
		if err != nil {
			res.Diagnostics.SeedErrors = append(res.Diagnostics.SeedErrors, SeedError{Seed: seed, Error: err.Error()})
			s.logger.Warn("seed search failed", "seed", seed, "target", targetID, "error", err)
			continue
		}
		if pr.Truncated {
			res.Diagnostics.Truncated = true
		}
		if len(pr.Paths) > 0 {
			res.Diagnostics.SeedsWithPaths++
		}
		for _, p := range pr.Paths {
			all = append(all, p.Clone())
		}
	}

	merged := scoring.Dedup(all, routeKey)
	scoring.SortPaths(merged)
	if len(merged) > opts.MaxResults {
		merged = merged[:opts.MaxResults]
	}
	res.Introductions = merged
	return res
}

// seedPaths isolates one seed's search so a failure only drops that seed.
func (s *Service) seedPaths(ctx context.Context, sess *Session, seed, targetID string, opts PathOptions, query *queryVector) (pr *PathResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("seed %s: %v", seed, r)
		}
	}()
	pr, _ = s.pathsFor(ctx, sess, opWarmIntroductions, seed, targetID, opts, query)
	return pr, nil
}

// seeds returns the seed pool ranked by influence: opts.Seeds when given,
// otherwise every internal person. The target is never a seed.
func (s *Service) seeds(sess *Session, targetID string, opts WarmOptions) []string {
	var pool []string
	if len(opts.Seeds) > 0 {
		pool = opts.Seeds
	} else {
		for _, e := range sess.Index.Entities() {
			if e.IsInternal && e.IsPerson() {
				pool = append(pool, e.ID)
			}
		}
	}

	ranked := sess.Analyzer.RankSeeds(pool)
	out := ranked[:0]
	for _, id := range ranked {
		if id != targetID {
			out = append(out, id)
		}
	}
	if opts.MaxSeeds > 0 && len(out) > opts.MaxSeeds {
		out = out[:opts.MaxSeeds]
	}
	return out
}

// routeKey identifies the introduction route of a path: everything after the
// seed. Direct seed->target links keep their full key so that different
// seeds' direct links stay distinct.
func routeKey(p *types.Path) string {
	if len(p.Nodes) <= 2 {
		return "direct\x1e" + p.Key()
	}
	return "via\x1e" + strings.Join(p.Nodes[1:], "\x1f")
}

// BatchItem is the warm introduction result of one target in a batch.
type BatchItem struct {
	Target string      `json:"target"`
	Result *WarmResult `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// FindWarmIntroductionsBatch runs FindWarmIntroductions for several targets
// concurrently against one session. A failing target is recorded in its own
// item and never aborts the batch. Items keep the order of targets.
func (s *Service) FindWarmIntroductionsBatch(ctx context.Context, targets []string, opts WarmOptions) ([]BatchItem, error) {
	ctx, span := tracer.Start(ctx, "intro.FindWarmIntroductionsBatch", trace.WithAttributes(attribute.Int("targets", len(targets))))
	defer span.End()

	sess, err := s.Session()
	if err != nil {
		return nil, err
	}

	items := make([]BatchItem, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchParallel)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			items[i] = s.batchItem(gctx, sess, target, opts)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) batchItem(ctx context.Context, sess *Session, target string, opts WarmOptions) (item BatchItem) {
	item.Target = target
	defer func() {
		if r := recover(); r != nil {
			item.Result = nil
			item.Error = fmt.Sprintf("target %s: %v", target, r)
			s.logger.Error("warm introduction target failed", "target", target, "error", item.Error)
		}
	}()
	item.Result = s.warm(ctx, sess, target, opts)
	return item
}
