package intro

import (
	"log/slog"
	"time"

	"github.com/scrypster/relgraph/internal/cache"
	"github.com/scrypster/relgraph/internal/influence"
	"github.com/scrypster/relgraph/internal/metrics"
	"github.com/scrypster/relgraph/internal/network"
	"github.com/scrypster/relgraph/internal/pathfinder"
	"github.com/scrypster/relgraph/internal/snapshot"
)

// Session is one analysis session: the index built from one snapshot and
// everything derived from it. A Session is never updated in place; a reload
// builds a new one.
type Session struct {
	Version  string
	LoadedAt time.Time

	Index    *network.Index
	Finder   *pathfinder.Finder
	Analyzer *influence.Analyzer

	paths *cache.Cache[*PathResult]
}

// Info summarizes a session for health and status reporting.
type Info struct {
	Version     string              `json:"version"`
	LoadedAt    time.Time           `json:"loaded_at"`
	Entities    int                 `json:"entities"`
	Edges       int                 `json:"edges"`
	Diagnostics network.Diagnostics `json:"diagnostics"`
	Cache       cache.Stats         `json:"cache"`
}

// NewSession indexes snap. The snapshot is not retained.
func NewSession(snap *snapshot.Snapshot, cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	idx := network.Build(snap.Entities, snap.Edges)

	s := &Session{
		Version:  snap.Version,
		LoadedAt: snap.LoadedAt,
		Index:    idx,
		Finder:   pathfinder.New(idx),
		Analyzer: influence.NewAnalyzer(idx, snap.Version, cfg.Influence, logger),
		paths:    cache.New[*PathResult](snap.Version, cfg.CacheCapacity),
	}

	d := idx.Diagnostics()
	metrics.SetSnapshotSize(idx.EntityCount(), idx.EdgeCount(), d.DroppedEdges())
	logger.Info("network index built",
		"component", "intro",
		"snapshot", snap.Version,
		"entities", idx.EntityCount(),
		"edges", idx.EdgeCount(),
		"dropped_edges", d.DroppedEdges(),
		"skipped_entities", d.SkippedEntities,
		"elapsed", time.Since(start))
	return s
}

// Info returns a summary of the session.
func (s *Session) Info() Info {
	return Info{
		Version:     s.Version,
		LoadedAt:    s.LoadedAt,
		Entities:    s.Index.EntityCount(),
		Edges:       s.Index.EdgeCount(),
		Diagnostics: s.Index.Diagnostics(),
		Cache:       s.paths.Stats(),
	}
}

// ClearCache drops every memoized result of the session.
func (s *Session) ClearCache() {
	s.paths.Clear()
}
