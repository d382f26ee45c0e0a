// Package storage provides composable storage interfaces for the relationship
// graph engine.
//
// The engine only reads entities and edges (GraphSource) and writes derived
// results (ResultStore). Ingestion, schema ownership beyond these tables, and
// transactions belong to the surrounding system.
package storage

import (
	"context"

	"github.com/scrypster/relgraph/pkg/types"
)

// GraphSource lists entities and edges page by page.
// Implementations must return rows in a stable order (by ID) so that pages
// fetched concurrently can be reassembled deterministically.
type GraphSource interface {
	// ListEntities returns one page of entities matching opts.Filter.
	ListEntities(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Entity], error)

	// ListEdges returns one page of edges matching opts.Filter.
	// Edges are returned regardless of whether their endpoints pass the
	// entity filter; dangling edges are dropped when the index is built.
	ListEdges(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Edge], error)
}

// GraphWriter seeds a store with entities and edges (upsert semantics).
// The engine itself never calls it; fixtures, tests and the CLI import use it.
type GraphWriter interface {
	UpsertEntities(ctx context.Context, entities []types.Entity) error
	UpsertEdges(ctx context.Context, edges []types.Edge) error
}

// ResultStore persists engine outputs idempotently (upsert by key).
type ResultStore interface {
	// UpsertIntroductionPath stores the best path for (source, target).
	UpsertIntroductionPath(ctx context.Context, rec IntroductionPathRecord) error

	// GetIntroductionPath returns ErrNotFound if no record exists.
	GetIntroductionPath(ctx context.Context, sourceID, targetID string) (*IntroductionPathRecord, error)

	// SaveNetworkInsights replaces the singleton insights record.
	// The payload is the JSON-encoded insights document.
	SaveNetworkInsights(ctx context.Context, id string, payload []byte) error

	// GetNetworkInsights returns ErrNotFound if nothing was saved yet.
	GetNetworkInsights(ctx context.Context) ([]byte, error)
}
