// Package intro is the introduction path service: it owns the current
// analysis session and exposes path queries, warm introductions,
// connectivity summaries and network insights over it.
//
// Only a missing snapshot (storage.ErrSnapshotUnavailable) and context
// cancellation are returned as errors. Unknown entities, empty seed sets and
// traversal bounds degrade to empty or partial results with diagnostics.
package intro

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scrypster/relgraph/internal/cache"
	"github.com/scrypster/relgraph/internal/embedding"
	"github.com/scrypster/relgraph/internal/influence"
	"github.com/scrypster/relgraph/internal/metrics"
	"github.com/scrypster/relgraph/internal/pathfinder"
	"github.com/scrypster/relgraph/internal/scoring"
	"github.com/scrypster/relgraph/internal/snapshot"
	"github.com/scrypster/relgraph/internal/storage"
	"github.com/scrypster/relgraph/pkg/types"
)

var tracer = otel.Tracer("relgraph.intro")

// Operation names used for cache keys, metrics and spans.
const (
	opIntroductionPaths = "introduction_paths"
	opOptimalPaths      = "optimal_paths"
	opWarmIntroductions = "warm_introductions"
)

// SnapshotLoader loads graph snapshots.
type SnapshotLoader interface {
	Load(ctx context.Context, filter storage.Filter) (*snapshot.Snapshot, error)
}

// Config holds the service defaults.
type Config struct {
	// Paths bounds every traversal.
	Paths pathfinder.Options

	// Scoring configures the path scorer.
	Scoring scoring.Config

	// Influence configures seed ranking and classification thresholds.
	Influence influence.Config

	// MinPathStrength drops paths whose cumulative strength is lower, for
	// path queries that do not set their own threshold.
	MinPathStrength float64

	// CacheCapacity is the number of path results kept per session.
	CacheCapacity int

	// WarmMaxHops bounds warm introduction paths (default: 3).
	WarmMaxHops int

	// WarmMaxResults is the default number of warm introductions (default: 10).
	WarmMaxResults int

	// WarmMinPathStrength drops weaker warm introduction paths.
	WarmMinPathStrength float64

	// InsightsTopK is the default top influencer count (default: 10).
	InsightsTopK int

	// BatchParallel bounds concurrent targets in batch queries (default: 4).
	BatchParallel int

	// Filter restricts which entities and edges a snapshot contains.
	Filter storage.Filter
}

func (c *Config) normalize() {
	c.Paths.Normalize()
	c.Scoring.Normalize()
	c.Influence.Normalize()
	if c.CacheCapacity < 1 {
		c.CacheCapacity = cache.DefaultCapacity
	}
	if c.WarmMaxHops < 1 {
		c.WarmMaxHops = 3
	}
	if c.WarmMaxResults < 1 {
		c.WarmMaxResults = 10
	}
	if c.InsightsTopK < 1 {
		c.InsightsTopK = 10
	}
	if c.BatchParallel < 1 {
		c.BatchParallel = 4
	}
}

// Service answers introduction and connectivity queries against the current
// session.
//
// Thread Safety: a Service is safe for concurrent use. Reload swaps the
// session atomically; queries already running finish on the old one.
// Reloads run one at a time, so the last one started is the one that stays.
type Service struct {
	loader   SnapshotLoader
	scorer   *scoring.Scorer
	embedder embedding.Provider
	cfg      Config
	logger   *slog.Logger

	reloadMu sync.Mutex
	current  atomic.Pointer[Session]
}

// Option configures a Service.
type Option func(*Service)

// WithEmbedder enables semantic scoring for queries that carry text.
func WithEmbedder(p embedding.Provider) Option {
	return func(s *Service) { s.embedder = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a Service. The loader may be nil when sessions are
// supplied with UseSnapshot only.
func NewService(loader SnapshotLoader, cfg Config, opts ...Option) *Service {
	cfg.normalize()
	s := &Service{
		loader: loader,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "intro")
	s.scorer = scoring.New(cfg.Scoring)
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Reload loads a fresh snapshot and makes it the current session. On
// failure the previous session stays active and the error wraps
// storage.ErrSnapshotUnavailable.
func (s *Service) Reload(ctx context.Context) (*Session, error) {
	ctx, span := tracer.Start(ctx, "intro.Reload")
	defer span.End()

	if s.loader == nil {
		err := fmt.Errorf("intro: Reload: %w: no loader configured", storage.ErrSnapshotUnavailable)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	snap, err := s.loader.Load(ctx, s.cfg.Filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reload failed")
		return nil, fmt.Errorf("intro: Reload: %w", err)
	}
	return s.UseSnapshot(snap), nil
}

// UseSnapshot indexes an already loaded snapshot and makes it current.
func (s *Service) UseSnapshot(snap *snapshot.Snapshot) *Session {
	sess := NewSession(snap, s.cfg, s.logger)
	if prev := s.current.Swap(sess); prev != nil {
		s.logger.Info("session replaced", "snapshot", sess.Version, "previous", prev.Version)
	}
	return sess
}

// Session returns the current session.
func (s *Service) Session() (*Session, error) {
	sess := s.current.Load()
	if sess == nil {
		return nil, fmt.Errorf("intro: %w: no snapshot loaded", storage.ErrSnapshotUnavailable)
	}
	return sess, nil
}

// PathOptions tune a single-pair path query. Zero values take the service
// defaults; a nil MinPathStrength does too, so an explicit 0 disables the
// configured threshold.
type PathOptions struct {
	Strategies      []types.Strategy
	MaxHops         int
	MaxPaths        int
	MinPathStrength *float64
	Query           string
}

// Strength returns a pointer to v, for setting MinPathStrength.
func Strength(v float64) *float64 {
	return &v
}

// strengthOr dereferences p, or returns def when p is nil.
func strengthOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// PathResult is the ranked, deduplicated output of a path query. Cached
// results are shared between callers and must not be modified.
type PathResult struct {
	Source              string       `json:"source"`
	Target              string       `json:"target"`
	Paths               []types.Path `json:"paths"`
	Strategies          []string     `json:"strategies"`
	SnapshotVersion     string       `json:"snapshot_version"`
	UnknownEntity       bool         `json:"unknown_entity,omitempty"`
	Truncated           bool         `json:"truncated,omitempty"`
	SemanticUnavailable bool         `json:"semantic_unavailable,omitempty"`
	Cached              bool         `json:"cached"`
}

// FindIntroductionPaths ranks introduction paths for one (source, target)
// pair. The default strategy mix is shortest, strongest and hub-mediated.
func (s *Service) FindIntroductionPaths(ctx context.Context, sourceID, targetID string, opts PathOptions) (*PathResult, error) {
	if len(opts.Strategies) == 0 {
		opts.Strategies = []types.Strategy{types.StrategyShortest, types.StrategyStrongest, types.StrategyHub}
	}
	return s.query(ctx, opIntroductionPaths, sourceID, targetID, opts)
}

// FindOptimalPaths ranks paths for a general A->B query. The default
// strategy mix is every strategy.
func (s *Service) FindOptimalPaths(ctx context.Context, sourceID, targetID string, opts PathOptions) (*PathResult, error) {
	if len(opts.Strategies) == 0 {
		opts.Strategies = types.AllStrategies
	}
	return s.query(ctx, opOptimalPaths, sourceID, targetID, opts)
}

func (s *Service) query(ctx context.Context, op, sourceID, targetID string, opts PathOptions) (*PathResult, error) {
	ctx, span := tracer.Start(ctx, "intro."+op, trace.WithAttributes(
		attribute.String("source", sourceID),
		attribute.String("target", targetID),
	))
	defer span.End()
	start := time.Now()

	sess, err := s.Session()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	opts.MinPathStrength = Strength(strengthOr(opts.MinPathStrength, s.cfg.MinPathStrength))
	res, hit := s.pathsFor(ctx, sess, op, sourceID, targetID, opts, nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metrics.ObserveCache(op, hit)
	metrics.ObserveQuery(op, time.Since(start), len(res.Paths), res.Truncated)
	span.SetAttributes(attribute.Int("paths", len(res.Paths)), attribute.Bool("cached", hit))
	s.logger.Debug("path query",
		"operation", op,
		"snapshot", sess.Version,
		"source", sourceID,
		"target", targetID,
		"paths", len(res.Paths),
		"cached", hit,
		"elapsed", time.Since(start))

	out := *res
	out.Cached = hit
	return &out, nil
}

// pathsFor runs the finder and scorer for one pair through the session
// cache. A non-nil query embedding replaces the embedding of opts.Query.
func (s *Service) pathsFor(ctx context.Context, sess *Session, op, sourceID, targetID string, opts PathOptions, query *queryVector) (*PathResult, bool) {
	fo := s.cfg.Paths
	if opts.MaxHops > 0 {
		fo.MaxHops = opts.MaxHops
	}
	if opts.MaxPaths > 0 {
		fo.MaxPaths = opts.MaxPaths
	}
	fo.Normalize()
	strategies := pathfinder.CanonicalStrategies(opts.Strategies)
	minStrength := strengthOr(opts.MinPathStrength, 0)

	names := make([]string, len(strategies))
	for i, st := range strategies {
		names[i] = string(st)
	}

	if !sess.Index.Has(sourceID) || !sess.Index.Has(targetID) {
		return &PathResult{
			Source:          sourceID,
			Target:          targetID,
			Paths:           []types.Path{},
			Strategies:      names,
			SnapshotVersion: sess.Version,
			UnknownEntity:   true,
		}, false
	}

	key := cache.Key{
		Operation:   op,
		Source:      sourceID,
		Target:      targetID,
		Strategies:  strategies,
		MaxHops:     fo.MaxHops,
		MaxPaths:    fo.MaxPaths,
		MinStrength: minStrength,
		Query:       opts.Query,
	}

	res, hit, _ := sess.paths.GetOrCompute(key, func() (*PathResult, bool, error) {
		q := query
		if q == nil {
			q = s.embedQuery(ctx, opts.Query)
		}

		found := sess.Finder.Find(ctx, sourceID, targetID, strategies, fo)
		kept := found.Paths[:0:0]
		for _, p := range found.Paths {
			if p.CumulativeStrength >= minStrength {
				kept = append(kept, p)
			}
		}

		r := &PathResult{
			Source:              sourceID,
			Target:              targetID,
			Paths:               s.scorer.Rank(kept, fo.MaxPaths, q.semantic(sess)),
			Strategies:          names,
			SnapshotVersion:     sess.Version,
			Truncated:           found.Truncated,
			SemanticUnavailable: q != nil && q.unavailable,
		}
		cacheable := !r.Truncated && !r.SemanticUnavailable && ctx.Err() == nil
		return r, cacheable, nil
	})
	return res, hit
}

// queryVector is the embedded query of one request.
type queryVector struct {
	vec         []float32
	unavailable bool
}

func (q *queryVector) semantic(sess *Session) *scoring.Semantic {
	if q == nil || len(q.vec) == 0 {
		return nil
	}
	return &scoring.Semantic{
		Query: q.vec,
		Embedding: func(id string) []float32 {
			if e, ok := sess.Index.Entity(id); ok {
				return e.Embedding
			}
			return nil
		},
	}
}

// embedQuery embeds text. Failures are logged and reported through the
// unavailable flag; scoring then proceeds without the semantic bonus.
func (s *Service) embedQuery(ctx context.Context, text string) *queryVector {
	if text == "" {
		return nil
	}
	if s.embedder == nil {
		return &queryVector{unavailable: true}
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		metrics.ObserveEmbeddingFailure()
		s.logger.Warn("query embedding failed, scoring without semantic bonus",
			"model", s.embedder.GetModel(), "error", err)
		return &queryVector{unavailable: true}
	}
	return &queryVector{vec: vec}
}

// AnalyzeConnectivity returns the connectivity summary of an entity, or nil
// when the entity is unknown.
func (s *Service) AnalyzeConnectivity(ctx context.Context, entityID string) (*influence.ConnectivitySummary, error) {
	_, span := tracer.Start(ctx, "intro.AnalyzeConnectivity", trace.WithAttributes(attribute.String("entity", entityID)))
	defer span.End()

	sess, err := s.Session()
	if err != nil {
		return nil, err
	}
	summary, ok := sess.Analyzer.Analyze(entityID)
	if !ok {
		return nil, nil
	}
	return summary, nil
}

// ComputeNetworkInsights returns the aggregate report of the current
// session. topK < 1 uses the configured default.
func (s *Service) ComputeNetworkInsights(ctx context.Context, topK int) (*influence.NetworkInsights, error) {
	_, span := tracer.Start(ctx, "intro.ComputeNetworkInsights")
	defer span.End()

	sess, err := s.Session()
	if err != nil {
		return nil, err
	}
	if topK < 1 {
		topK = s.cfg.InsightsTopK
	}
	ins := sess.Analyzer.Insights(topK)
	return &ins, nil
}
