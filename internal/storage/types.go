package storage

import (
	"errors"
	"time"

	"github.com/scrypster/relgraph/pkg/types"
)

var (
	// ErrNotFound is returned for a missing entity, edge or stored result.
	ErrNotFound = errors.New("storage: not found")

	// ErrInvalidInput rejects malformed ids, scores or query parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSnapshotUnavailable indicates that entities or edges could not be
	// retrieved from the backing store. It is the only failure that aborts an
	// analysis session.
	ErrSnapshotUnavailable = errors.New("graph snapshot unavailable")

	// ErrGraphBoundsExceeded stops a path search that used up its node, edge
	// or time budget. Callers return the partial result.
	ErrGraphBoundsExceeded = errors.New("traversal budget exceeded")
)

// PaginatedResult is one page of a list call.
type PaginatedResult[T any] struct {
	Items    []T
	Total    int // rows across all pages; negative when the source cannot count cheaply
	Page     int // 1-indexed
	PageSize int
	HasMore  bool
}

// Filter restricts which entities and edges a snapshot contains.
// Zero values mean "no restriction".
type Filter struct {
	// EntityTypes keeps only entities of these types.
	EntityTypes []types.EntityType

	// InternalOnly keeps only entities flagged is_internal.
	InternalOnly bool

	// EdgeKinds keeps only edges of these kinds.
	EdgeKinds []types.EdgeKind

	// MinStrength drops edges whose stored strength is below this value.
	// Edges without a stored strength are kept.
	MinStrength float64
}

// Page size limits for ListEntities and ListEdges.
const (
	DefaultPageSize = 500
	MaxPageSize     = 5000
)

// ListOptions selects one page of rows, ordered by id.
type ListOptions struct {
	Page   int // 1-indexed
	Limit  int // rows per page
	Filter Filter
}

// Normalize clamps Page and Limit into range.
func (o *ListOptions) Normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	switch {
	case o.Limit < 1:
		o.Limit = DefaultPageSize
	case o.Limit > MaxPageSize:
		o.Limit = MaxPageSize
	}
}

// Offset is the number of rows before the page.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// MatchesEntity reports whether e passes the entity part of the filter.
func (f Filter) MatchesEntity(e *types.Entity) bool {
	if f.InternalOnly && !e.IsInternal {
		return false
	}
	if len(f.EntityTypes) == 0 {
		return true
	}
	for _, t := range f.EntityTypes {
		if t == e.Type {
			return true
		}
	}
	return false
}

// MatchesEdge reports whether e passes the edge part of the filter.
func (f Filter) MatchesEdge(e *types.Edge) bool {
	if f.MinStrength > 0 && e.StrengthScore != nil && *e.StrengthScore < f.MinStrength {
		return false
	}
	if len(f.EdgeKinds) == 0 {
		return true
	}
	for _, k := range f.EdgeKinds {
		if k == e.Kind {
			return true
		}
	}
	return false
}

// GraphBounds is the budget of one path query. Normalize fills zero fields
// with defaults and caps the rest.
type GraphBounds struct {
	MaxHops  int           // path length; default 4, at most 8
	MaxNodes int           // entities expanded; default 50k, at most 1M
	MaxEdges int           // adjacency entries scanned; default 250k, at most 5M
	Timeout  time.Duration // default 2s, at most 1m
}

func (g *GraphBounds) Normalize() {
	g.MaxHops = clampInt(g.MaxHops, 4, 8)
	g.MaxNodes = clampInt(g.MaxNodes, 50_000, 1_000_000)
	g.MaxEdges = clampInt(g.MaxEdges, 250_000, 5_000_000)
	switch {
	case g.Timeout <= 0:
		g.Timeout = 2 * time.Second
	case g.Timeout > time.Minute:
		g.Timeout = time.Minute
	}
}

// clampInt returns def for v < 1 and hi for v > hi.
func clampInt(v, def, hi int) int {
	switch {
	case v < 1:
		return def
	case v > hi:
		return hi
	}
	return v
}

// IntroductionPathRecord is the persisted form of the best introduction path
// between two entities, keyed by (SourceEntityID, TargetEntityID).
type IntroductionPathRecord struct {
	SourceEntityID string
	TargetEntityID string
	Path           types.Path
	Score          float64
	ComputedAt     time.Time
}
