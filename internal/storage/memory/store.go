// Package memory provides an in-memory graph source and result store, plus a
// loader for YAML and JSON fixture graphs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/scrypster/relgraph/internal/storage"
	"github.com/scrypster/relgraph/pkg/types"
)

// Store keeps entities, edges and published results in memory.
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	entities map[string]types.Entity
	edges    map[edgeKey]types.Edge
	paths    map[[2]string]storage.IntroductionPathRecord
	insights []byte
}

type edgeKey struct {
	source, target string
	kind           types.EdgeKind
}

var (
	_ storage.GraphSource = (*Store)(nil)
	_ storage.GraphWriter = (*Store)(nil)
	_ storage.ResultStore = (*Store)(nil)
)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		entities: make(map[string]types.Entity),
		edges:    make(map[edgeKey]types.Edge),
		paths:    make(map[[2]string]storage.IntroductionPathRecord),
	}
}

// ListEntities returns one page of entities ordered by id.
func (s *Store) ListEntities(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Entity], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts.Normalize()

	s.mu.RLock()
	matched := make([]types.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		if opts.Filter.MatchesEntity(&e) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return paginate(matched, opts), nil
}

// ListEdges returns one page of edges ordered by (source, target, kind).
func (s *Store) ListEdges(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Edge], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts.Normalize()

	s.mu.RLock()
	matched := make([]types.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		if opts.Filter.MatchesEdge(&e) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Kind < b.Kind
	})
	return paginate(matched, opts), nil
}

func paginate[T any](items []T, opts storage.ListOptions) *storage.PaginatedResult[T] {
	start := min(opts.Offset(), len(items))
	end := min(start+opts.Limit, len(items))
	return &storage.PaginatedResult[T]{
		Items:    items[start:end],
		Total:    len(items),
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  end < len(items),
	}
}

// UpsertEntities creates or replaces entities by id.
func (s *Store) UpsertEntities(ctx context.Context, entities []types.Entity) error {
	for i := range entities {
		if entities[i].ID == "" {
			return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		s.entities[e.ID] = e
	}
	return nil
}

// UpsertEdges creates or replaces edges by (source, target, kind).
func (s *Store) UpsertEdges(ctx context.Context, edges []types.Edge) error {
	for i := range edges {
		if edges[i].Source == "" || edges[i].Target == "" {
			return fmt.Errorf("%w: edge endpoints are required", storage.ErrInvalidInput)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range edges {
		s.edges[edgeKey{e.Source, e.Target, e.Kind}] = e
	}
	return nil
}

// UpsertIntroductionPath stores the best path for (source, target).
func (s *Store) UpsertIntroductionPath(ctx context.Context, rec storage.IntroductionPathRecord) error {
	if rec.SourceEntityID == "" || rec.TargetEntityID == "" {
		return fmt.Errorf("%w: source and target are required", storage.ErrInvalidInput)
	}
	if rec.ComputedAt.IsZero() {
		rec.ComputedAt = time.Now()
	}
	rec.Path = rec.Path.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[[2]string{rec.SourceEntityID, rec.TargetEntityID}] = rec
	return nil
}

// GetIntroductionPath returns the stored path for (source, target).
func (s *Store) GetIntroductionPath(ctx context.Context, sourceID, targetID string) (*storage.IntroductionPathRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.paths[[2]string{sourceID, targetID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	rec.Path = rec.Path.Clone()
	return &rec, nil
}

// IntroductionPaths returns every stored record ordered by (source, target).
func (s *Store) IntroductionPaths() []storage.IntroductionPathRecord {
	s.mu.RLock()
	out := make([]storage.IntroductionPathRecord, 0, len(s.paths))
	for _, rec := range s.paths {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceEntityID != out[j].SourceEntityID {
			return out[i].SourceEntityID < out[j].SourceEntityID
		}
		return out[i].TargetEntityID < out[j].TargetEntityID
	})
	return out
}

// SaveNetworkInsights replaces the singleton insights record.
func (s *Store) SaveNetworkInsights(ctx context.Context, id string, payload []byte) error {
	if id == "" {
		return fmt.Errorf("%w: insights id is required", storage.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insights = append([]byte(nil), payload...)
	return nil
}

// GetNetworkInsights returns the stored insights payload.
func (s *Store) GetNetworkInsights(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.insights == nil {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), s.insights...), nil
}
