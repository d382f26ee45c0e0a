// Package neo4j provides a graph source backed by Neo4j or Memgraph.
//
// Entities are (:Entity) nodes and edges are [:RELATES] relationships whose
// kind and scores are relationship properties:
//
//	(:Entity {id, name, type, is_internal, ...})-[:RELATES {kind, strength_score, ...}]->(:Entity)
package neo4j

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/scrypster/relgraph/internal/storage"
	"github.com/scrypster/relgraph/pkg/types"
)

// Querier runs a Cypher query and returns all records.
type Querier interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error)
}

// Driver is a Querier over a neo4j driver connection.
type Driver struct {
	driver neo4j.DriverWithContext
}

// Connect opens a driver and verifies connectivity.
func Connect(ctx context.Context, uri, username, password string) (*Driver, error) {
	d, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to create driver: %w", err)
	}
	if err := d.VerifyConnectivity(ctx); err != nil {
		_ = d.Close(ctx)
		return nil, fmt.Errorf("neo4j: failed to connect to %s: %w", uri, err)
	}
	return &Driver{driver: d}, nil
}

// ExecuteQuery runs query with an eager result transformer.
func (d *Driver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	res, err := neo4j.ExecuteQuery(ctx, d.driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to execute query: %w", err)
	}
	return res, nil
}

// Close closes the driver.
func (d *Driver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

// Source implements storage.GraphSource and storage.GraphWriter over a
// Querier.
type Source struct {
	q      Querier
	logger *slog.Logger
}

var (
	_ storage.GraphSource = (*Source)(nil)
	_ storage.GraphWriter = (*Source)(nil)
)

// NewSource creates a Source.
func NewSource(q Querier, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{q: q, logger: logger.With("component", "neo4j")}
}

// BuildIndices creates the id index. Failures are logged; the index may
// already exist.
func (s *Source) BuildIndices(ctx context.Context) {
	if _, err := s.q.ExecuteQuery(ctx, "CREATE INDEX ON :Entity(id)", nil); err != nil {
		s.logger.Warn("failed to create entity index", "error", err)
	}
}

const entityFilter = `
WHERE (NOT $internal_only OR e.is_internal = true)
  AND (size($types) = 0 OR e.type IN $types)`

const edgeFilter = `
WHERE (size($kinds) = 0 OR r.kind IN $kinds)
  AND ($min_strength <= 0 OR r.strength_score IS NULL OR r.strength_score >= $min_strength)`

// ListEntities returns one page of entities ordered by id.
func (s *Source) ListEntities(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Entity], error) {
	opts.Normalize()
	params := filterParams(opts)

	total, err := s.count(ctx, "MATCH (e:Entity)"+entityFilter+" RETURN count(e) AS total", params)
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to count entities: %w", err)
	}

	res, err := s.q.ExecuteQuery(ctx, `
MATCH (e:Entity)`+entityFilter+`
RETURN e.id AS id, e.name AS name, e.type AS type,
       e.is_internal AS is_internal, e.is_portfolio AS is_portfolio, e.is_pipeline AS is_pipeline,
       e.importance AS importance, e.embedding AS embedding,
       e.linkedin_url AS linkedin_url, e.title AS title, e.location AS location, e.industries AS industries
ORDER BY e.id SKIP $skip LIMIT $limit`, params)
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to list entities: %w", err)
	}

	entities := make([]types.Entity, 0, len(res.Records))
	for _, rec := range res.Records {
		r := record{rec}
		e := types.Entity{
			ID:          r.str("id"),
			Name:        r.str("name"),
			Type:        types.EntityType(r.str("type")),
			IsInternal:  r.boolean("is_internal"),
			IsPortfolio: r.boolean("is_portfolio"),
			IsPipeline:  r.boolean("is_pipeline"),
			Importance:  r.float("importance"),
			Embedding:   r.floats("embedding"),
		}
		enr := types.Enrichment{
			LinkedInURL: r.str("linkedin_url"),
			Title:       r.str("title"),
			Location:    r.str("location"),
			Industries:  r.strs("industries"),
		}
		if enr.LinkedInURL != "" || enr.Title != "" || enr.Location != "" || len(enr.Industries) > 0 {
			e.Enrichment = &enr
		}
		if e.ID == "" {
			s.logger.Warn("skipping entity without id")
			continue
		}
		entities = append(entities, e)
	}

	return &storage.PaginatedResult[types.Entity]{
		Items:    entities,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(res.Records) < total,
	}, nil
}

// ListEdges returns one page of edges ordered by (source, target, kind).
func (s *Source) ListEdges(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Edge], error) {
	opts.Normalize()
	params := filterParams(opts)

	total, err := s.count(ctx, "MATCH (:Entity)-[r:RELATES]->(:Entity)"+edgeFilter+" RETURN count(r) AS total", params)
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to count edges: %w", err)
	}

	res, err := s.q.ExecuteQuery(ctx, `
MATCH (a:Entity)-[r:RELATES]->(b:Entity)`+edgeFilter+`
RETURN a.id AS source, b.id AS target, r.kind AS kind, r.id AS id,
       r.strength_score AS strength_score, r.interaction_count AS interaction_count,
       r.confidence_score AS confidence_score
ORDER BY a.id, b.id, r.kind SKIP $skip LIMIT $limit`, params)
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to list edges: %w", err)
	}

	edges := make([]types.Edge, 0, len(res.Records))
	for _, rec := range res.Records {
		r := record{rec}
		edges = append(edges, types.Edge{
			ID:               r.str("id"),
			Source:           r.str("source"),
			Target:           r.str("target"),
			Kind:             types.EdgeKind(r.str("kind")),
			StrengthScore:    r.optFloat("strength_score"),
			InteractionCount: int(r.integer("interaction_count")),
			ConfidenceScore:  r.optFloat("confidence_score"),
		})
	}

	return &storage.PaginatedResult[types.Edge]{
		Items:    edges,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(res.Records) < total,
	}, nil
}

// UpsertEntities merges entities by id.
func (s *Source) UpsertEntities(ctx context.Context, entities []types.Entity) error {
	rows := make([]map[string]interface{}, 0, len(entities))
	for i := range entities {
		e := &entities[i]
		if e.ID == "" {
			return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
		}
		row := map[string]interface{}{
			"id":           e.ID,
			"name":         e.Name,
			"type":         string(e.Type),
			"is_internal":  e.IsInternal,
			"is_portfolio": e.IsPortfolio,
			"is_pipeline":  e.IsPipeline,
			"importance":   e.Importance,
			"embedding":    toAnyFloats(e.Embedding),
		}
		if enr := e.Enrichment; enr != nil {
			row["linkedin_url"] = enr.LinkedInURL
			row["title"] = enr.Title
			row["location"] = enr.Location
			row["industries"] = toAnyStrings(enr.Industries)
		}
		rows = append(rows, row)
	}

	_, err := s.q.ExecuteQuery(ctx, `
UNWIND $rows AS row
MERGE (e:Entity {id: row.id})
SET e += row`, map[string]interface{}{"rows": toAnyMaps(rows)})
	if err != nil {
		return fmt.Errorf("neo4j: failed to upsert entities: %w", err)
	}
	return nil
}

// UpsertEdges merges edges by (source, target, kind). Both endpoints must
// already exist.
func (s *Source) UpsertEdges(ctx context.Context, edges []types.Edge) error {
	rows := make([]map[string]interface{}, 0, len(edges))
	for i := range edges {
		e := &edges[i]
		if e.Source == "" || e.Target == "" {
			return fmt.Errorf("%w: edge endpoints are required", storage.ErrInvalidInput)
		}
		row := map[string]interface{}{
			"source":            e.Source,
			"target":            e.Target,
			"kind":              string(e.Kind),
			"id":                e.ID,
			"interaction_count": int64(e.InteractionCount),
			"strength_score":    nil,
			"confidence_score":  nil,
		}
		if e.StrengthScore != nil {
			row["strength_score"] = *e.StrengthScore
		}
		if e.ConfidenceScore != nil {
			row["confidence_score"] = *e.ConfidenceScore
		}
		rows = append(rows, row)
	}

	_, err := s.q.ExecuteQuery(ctx, `
UNWIND $rows AS row
MATCH (a:Entity {id: row.source}), (b:Entity {id: row.target})
MERGE (a)-[r:RELATES {kind: row.kind}]->(b)
SET r.id = row.id,
    r.strength_score = row.strength_score,
    r.interaction_count = row.interaction_count,
    r.confidence_score = row.confidence_score`, map[string]interface{}{"rows": toAnyMaps(rows)})
	if err != nil {
		return fmt.Errorf("neo4j: failed to upsert edges: %w", err)
	}
	return nil
}

func (s *Source) count(ctx context.Context, query string, params map[string]interface{}) (int, error) {
	res, err := s.q.ExecuteQuery(ctx, query, params)
	if err != nil {
		return 0, err
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	return int(record{res.Records[0]}.integer("total")), nil
}

func filterParams(opts storage.ListOptions) map[string]interface{} {
	f := opts.Filter
	entityTypes := make([]interface{}, len(f.EntityTypes))
	for i, t := range f.EntityTypes {
		entityTypes[i] = string(t)
	}
	kinds := make([]interface{}, len(f.EdgeKinds))
	for i, k := range f.EdgeKinds {
		kinds[i] = string(k)
	}
	return map[string]interface{}{
		"internal_only": f.InternalOnly,
		"types":         entityTypes,
		"kinds":         kinds,
		"min_strength":  f.MinStrength,
		"skip":          int64(opts.Offset()),
		"limit":         int64(opts.Limit),
	}
}

// record reads loosely typed property values. Missing or null values read as
// zero values.
type record struct {
	*neo4j.Record
}

func (r record) value(key string) interface{} {
	v, _ := r.Get(key)
	return v
}

func (r record) str(key string) string {
	s, _ := r.value(key).(string)
	return s
}

func (r record) boolean(key string) bool {
	b, _ := r.value(key).(bool)
	return b
}

func (r record) integer(key string) int64 {
	switch v := r.value(key).(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func (r record) float(key string) float64 {
	if f := r.optFloat(key); f != nil {
		return *f
	}
	return 0
}

func (r record) optFloat(key string) *float64 {
	switch v := r.value(key).(type) {
	case float64:
		return types.Score(v)
	case int64:
		return types.Score(float64(v))
	}
	return nil
}

func (r record) floats(key string) []float32 {
	list, _ := r.value(key).([]interface{})
	if len(list) == 0 {
		return nil
	}
	out := make([]float32, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case float64:
			out = append(out, float32(v))
		case int64:
			out = append(out, float32(v))
		}
	}
	return out
}

func (r record) strs(key string) []string {
	list, _ := r.value(key).([]interface{})
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func toAnyFloats(v []float32) []interface{} {
	out := make([]interface{}, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func toAnyStrings(v []string) []interface{} {
	out := make([]interface{}, len(v))
	for i, s := range v {
		out[i] = s
	}
	return out
}

func toAnyMaps(rows []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out
}
